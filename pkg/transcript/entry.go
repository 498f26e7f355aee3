package transcript

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Status is the backend-reported lifecycle of an entry. The session loop never
// transitions it; it only checks whether a step left tool calls pending.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
	StatusInProgress Status = "in_progress"
)

// Entry is one element of a transcript. Exactly one of the concrete types
// below implements it: *Prompt, *Reasoning, *ToolCalls, *ToolOutput,
// *Response.
type Entry interface {
	EntryID() string
	entry()
}

// NewID returns a fresh entry identity.
func NewID() string {
	return uuid.NewString()
}

// Prompt records one user turn: the raw input, optional caller-supplied
// context, and the rendered text that was actually sent to the backend.
// Created once per turn, never mutated.
type Prompt struct {
	ID       string         `json:"id"`
	Input    string         `json:"input"`
	Context  *PromptContext `json:"context,omitempty"`
	Rendered string         `json:"rendered"`
}

// PromptContext carries arbitrary caller side-information plus link metadata
// extracted from the input.
type PromptContext struct {
	Items []ContextItem `json:"items,omitempty"`
	Links []Link        `json:"links,omitempty"`
}

// ContextItem is one piece of caller-supplied context for a turn.
type ContextItem struct {
	Title string `json:"title,omitempty"`
	Body  any    `json:"body,omitempty"`
}

// Link is preview metadata for a URL found in the user input.
type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Reasoning is a model thinking step: human-readable summary fragments plus
// an optional opaque continuation token the backend can resume from.
type Reasoning struct {
	ID               string   `json:"id"`
	Summary          []string `json:"summary,omitempty"`
	EncryptedContent string   `json:"encrypted_content,omitempty"`
	Status           Status   `json:"status"`
}

// ToolCall is a single tool invocation requested by the model. CallID is the
// backend correlation key linking the call to its eventual output; it is
// distinct from the entry identity.
type ToolCall struct {
	ID        string          `json:"id"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Status    Status          `json:"status"`
}

// ToolCalls groups the tool invocations the model requested in one step.
type ToolCalls struct {
	ID    string     `json:"id"`
	Calls []ToolCall `json:"calls"`
}

// ToolOutput is the result of executing one tool call, correlated to its
// originating ToolCall by CallID.
type ToolOutput struct {
	ID      string  `json:"id"`
	CallID  string  `json:"call_id"`
	Name    string  `json:"name"`
	Status  Status  `json:"status"`
	Content Segment `json:"content"`
}

// Response is the model's natural-language output for a step.
type Response struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Segments []Segment `json:"segments"`
}

// Segment is one piece of response or tool-output content: free-form text or
// a structured JSON payload.
type Segment struct {
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// Text builds a plain-text segment.
func Text(s string) Segment {
	return Segment{Text: s}
}

// Structured builds a structured segment from raw JSON.
func Structured(raw json.RawMessage) Segment {
	return Segment{JSON: raw}
}

// IsStructured reports whether the segment carries a JSON payload.
func (s Segment) IsStructured() bool {
	return len(s.JSON) > 0
}

func (p *Prompt) EntryID() string     { return p.ID }
func (r *Reasoning) EntryID() string  { return r.ID }
func (t *ToolCalls) EntryID() string  { return t.ID }
func (t *ToolOutput) EntryID() string { return t.ID }
func (r *Response) EntryID() string   { return r.ID }

func (*Prompt) entry()     {}
func (*Reasoning) entry()  {}
func (*ToolCalls) entry()  {}
func (*ToolOutput) entry() {}
func (*Response) entry()   {}
