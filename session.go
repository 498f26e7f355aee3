// Package session orchestrates multi-turn, tool-using conversations with a
// generative-model backend. A session owns one transcript, drives the
// step/tool loop until the model produces a final response, and accumulates
// token usage across turns.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Protocol-Lattice/go-session/pkg/concurrent"
	"github.com/Protocol-Lattice/go-session/pkg/embed"
	"github.com/Protocol-Lattice/go-session/pkg/models"
	"github.com/Protocol-Lattice/go-session/pkg/preview"
	"github.com/Protocol-Lattice/go-session/pkg/prompt"
	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Session is a stateful conversation against one adapter. It is owned by a
// single caller; concurrent turns on the same session are not supported.
type Session struct {
	adapter    models.Adapter
	catalog    *Catalog
	transcript *transcript.Transcript
	usage      *transcript.Usage
	cfg        config
	log        *slog.Logger
}

// New builds a session over the given adapter.
func New(adapter models.Adapter, opts ...Option) (*Session, error) {
	if adapter == nil {
		return nil, errors.New("session: adapter is nil")
	}
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	catalog, err := NewCatalog(cfg.tools...)
	if err != nil {
		return nil, err
	}
	return &Session{
		adapter:    adapter,
		catalog:    catalog,
		transcript: transcript.New(),
		cfg:        cfg,
		log:        cfg.loggerValue(),
	}, nil
}

// Transcript exposes the conversation record. Callers must treat it as
// read-only; only the session appends.
func (s *Session) Transcript() *transcript.Transcript { return s.transcript }

// Usage returns the tokens accumulated across every turn so far, or nil when
// no adapter has reported any.
func (s *Session) Usage() *transcript.Usage { return s.usage }

// ResetUsage drops the accumulated token counts.
func (s *Session) ResetUsage() { s.usage = nil }

// ClearTranscript drops the conversation record, keeping tools and options.
func (s *Session) ClearTranscript() { s.transcript.Clear() }

// Restore replaces the transcript, typically with one loaded from a store.
func (s *Session) Restore(t *transcript.Transcript) {
	if t != nil {
		s.transcript = t
	}
}

// Turn is the caller-facing result of one respond call: the final text, the
// entries this turn appended after the prompt (in append order), and the
// usage the turn's steps reported.
type Turn struct {
	Content string
	Entries []transcript.Entry
	Usage   *transcript.Usage
}

// Respond runs one full turn: it appends the user prompt, loops through
// adapter steps and tool executions, and returns the final response text.
func (s *Session) Respond(ctx context.Context, input string) (string, error) {
	return s.RespondWithContext(ctx, input)
}

// RespondWithContext runs one turn with caller-supplied context items riding
// along in the prompt.
func (s *Session) RespondWithContext(ctx context.Context, input string, items ...transcript.ContextItem) (string, error) {
	turn, err := s.RespondTurn(ctx, input, items...)
	if err != nil {
		return "", err
	}
	return turn.Content, nil
}

// RespondTurn runs one turn and returns the full turn result.
func (s *Session) RespondTurn(ctx context.Context, input string, items ...transcript.ContextItem) (*Turn, error) {
	added, usage, err := s.turn(ctx, input, items, nil, "")
	if err != nil {
		return nil, err
	}
	text := transcript.JoinText(added)
	if text == "" {
		return nil, ErrEmptyMessageContent
	}
	return &Turn{Content: text, Entries: added, Usage: usage}, nil
}

// RespondAs runs one structured turn and decodes the structured response into
// T. The schema describes T on the wire; name labels it for backends that
// require a named schema.
func RespondAs[T any](ctx context.Context, s *Session, input string, schema map[string]any, name string) (T, error) {
	var zero T
	added, _, err := s.turn(ctx, input, nil, schema, name)
	if err != nil {
		return zero, err
	}
	raw := structuredPayload(added)
	if raw == nil {
		return zero, ErrNoStructuredResponse
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("session: decode structured response: %w", err)
	}
	return out, nil
}

// turn drives the step loop. It returns the entries this turn appended after
// the prompt and the usage its steps reported, both in append order.
func (s *Session) turn(ctx context.Context, input string, items []transcript.ContextItem, schema map[string]any, schemaName string) ([]transcript.Entry, *transcript.Usage, error) {
	p, err := s.buildPrompt(ctx, input, items)
	if err != nil {
		return nil, nil, err
	}
	s.transcript.Append(p)

	var (
		added     []transcript.Entry
		turnUsage *transcript.Usage
	)
	maxSteps := s.cfg.maxStepsValue()

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		s.log.Debug("adapter step", "step", step, "entries", s.transcript.Len())

		req := models.Request{
			Transcript:   s.transcript,
			Model:        s.cfg.model,
			Tools:        s.catalog.Specs(),
			Options:      s.cfg.genOptions,
			OutputSchema: schema,
			OutputName:   schemaName,
		}
		ch, err := s.adapter.Respond(ctx, req)
		if err != nil {
			return nil, nil, err
		}

		stepEntries, stepUsage, err := s.drain(ctx, ch)
		added = append(added, stepEntries...)
		turnUsage = transcript.SumUsage(turnUsage, stepUsage)
		s.usage = transcript.SumUsage(s.usage, stepUsage)
		if err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// A structured response ends the turn even if tool calls arrived in
		// the same step; the model has already produced its answer.
		if schema != nil && structuredPayload(stepEntries) != nil {
			return added, turnUsage, nil
		}

		pending := s.pendingCalls(stepEntries)
		if len(pending) > 0 {
			outputs, err := s.executeCalls(ctx, pending)
			added = append(added, outputs...)
			if err != nil {
				return nil, nil, err
			}
			continue
		}

		if hasResponse(stepEntries) {
			return added, turnUsage, nil
		}
	}
	if schema != nil {
		return nil, nil, fmt.Errorf("%w: %w (%d steps)", ErrNoStructuredResponse, ErrStepLimit, maxSteps)
	}
	return nil, nil, fmt.Errorf("%w (%d steps)", ErrStepLimit, maxSteps)
}

// pendingCalls collects the tool calls this step requested that have no
// correlated output yet. Only the step's own entries are considered: a call
// left output-less by an earlier failed turn stays in the transcript as a
// valid partial record and must not be re-executed.
func (s *Session) pendingCalls(stepEntries []transcript.Entry) []transcript.ToolCall {
	var pending []transcript.ToolCall
	for _, e := range stepEntries {
		calls, ok := e.(*transcript.ToolCalls)
		if !ok {
			continue
		}
		for _, call := range calls.Calls {
			if _, ok := s.transcript.OutputForCall(call.CallID); !ok {
				pending = append(pending, call)
			}
		}
	}
	return pending
}

// drain appends every streamed entry to the transcript as it arrives and
// collects usage reports. It returns this step's entries, the step's merged
// usage, and the first terminal error, keeping whatever was appended before
// the failure.
func (s *Session) drain(ctx context.Context, ch <-chan models.Update) ([]transcript.Entry, *transcript.Usage, error) {
	var (
		entries []transcript.Entry
		usage   *transcript.Usage
	)
	for u := range ch {
		switch {
		case u.Entry != nil:
			s.transcript.Append(u.Entry)
			entries = append(entries, u.Entry)
		case u.Usage != nil:
			usage = transcript.SumUsage(usage, u.Usage)
		case u.Err != nil:
			return entries, usage, u.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return entries, usage, err
	}
	return entries, usage, nil
}

// executeCalls runs the pending tool calls with bounded parallelism and
// appends one output per call, preserving call order. Recoverable problems
// become structured error payloads; anything else fails the turn after every
// call has finished.
func (s *Session) executeCalls(ctx context.Context, calls []transcript.ToolCall) ([]transcript.Entry, error) {
	results := concurrent.Map(ctx, calls, s.cfg.parallelism,
		func(ctx context.Context, call transcript.ToolCall) (transcript.Segment, error) {
			tool, ok := s.catalog.Lookup(call.Name)
			if !ok {
				return transcript.Segment{}, &UnknownToolError{Name: call.Name, CallID: call.CallID}
			}
			s.log.Debug("tool call", "tool", call.Name, "call_id", call.CallID)

			out, err := tool.Call(ctx, call.Arguments)
			if err != nil {
				var problem *tools.Problem
				if errors.As(err, &problem) {
					return transcript.Structured(problem.Payload()), nil
				}
				return transcript.Segment{}, &ToolExecError{Name: call.Name, CallID: call.CallID, Err: err}
			}
			return transcript.Structured(out), nil
		})

	var (
		added    []transcript.Entry
		firstErr error
	)
	for i, res := range results {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		out := &transcript.ToolOutput{
			ID:      transcript.NewID(),
			CallID:  calls[i].CallID,
			Name:    calls[i].Name,
			Status:  transcript.StatusCompleted,
			Content: res.Value,
		}
		s.transcript.Append(out)
		added = append(added, out)
	}
	return added, firstErr
}

// buildPrompt assembles the turn's prompt entry: ranked context items, link
// previews, and a deterministic rendering of the whole thing.
func (s *Session) buildPrompt(ctx context.Context, input string, items []transcript.ContextItem) (*transcript.Prompt, error) {
	items, err := s.rankItems(ctx, input, items)
	if err != nil {
		return nil, err
	}
	links := preview.Resolve(ctx, s.cfg.previewer, input)

	p := &transcript.Prompt{ID: transcript.NewID(), Input: input}
	if len(items) > 0 || len(links) > 0 {
		p.Context = &transcript.PromptContext{Items: items, Links: links}
	}
	if s.cfg.systemPrompt != "" || p.Context != nil {
		render := s.cfg.renderer
		if render == nil {
			render = renderPrompt
		}
		p.Rendered = render(s.cfg.systemPrompt, input, items, links)
	}
	return p, nil
}

// rankItems keeps the context items most relevant to the input when an
// embedder is wired and the caller supplied more than the limit.
func (s *Session) rankItems(ctx context.Context, input string, items []transcript.ContextItem) ([]transcript.ContextItem, error) {
	limit := s.cfg.contextLimitValue()
	if s.cfg.embedder == nil || len(items) <= limit {
		return items, nil
	}

	passages := make([]string, len(items))
	for i, item := range items {
		passages[i] = itemText(item)
	}
	ranked, err := embed.Rank(ctx, s.cfg.embedder, input, passages)
	if err != nil {
		return nil, fmt.Errorf("session: rank context items: %w", err)
	}
	kept := make([]transcript.ContextItem, 0, limit)
	for _, r := range ranked[:limit] {
		kept = append(kept, items[r.Index])
	}
	return kept, nil
}

func itemText(item transcript.ContextItem) string {
	body := ""
	switch b := item.Body.(type) {
	case string:
		body = b
	default:
		if raw, err := json.Marshal(b); err == nil {
			body = string(raw)
		}
	}
	if item.Title != "" {
		return item.Title + "\n" + body
	}
	return body
}

func renderPrompt(system, input string, items []transcript.ContextItem, links []transcript.Link) string {
	var nodes []prompt.Node
	if system != "" {
		nodes = append(nodes, prompt.Text(system))
	}
	if len(items) > 0 {
		children := make([]prompt.Node, 0, len(items))
		for _, item := range items {
			attrs := map[string]string{}
			if item.Title != "" {
				attrs["title"] = item.Title
			}
			children = append(children, prompt.Tag("item", attrs, prompt.Text(itemText(item))))
		}
		nodes = append(nodes, prompt.Section("Context", children...))
	}
	if len(links) > 0 {
		children := make([]prompt.Node, 0, len(links))
		for _, link := range links {
			attrs := map[string]string{"url": link.URL}
			if link.Title != "" {
				attrs["title"] = link.Title
			}
			var body []prompt.Node
			if link.Description != "" {
				body = append(body, prompt.Text(link.Description))
			}
			children = append(children, prompt.Tag("link", attrs, body...))
		}
		nodes = append(nodes, prompt.Section("Links", children...))
	}
	nodes = append(nodes, prompt.Text(input))
	return prompt.Render(nodes...)
}

// structuredPayload returns the first structured response segment among the
// entries, or nil.
func structuredPayload(entries []transcript.Entry) json.RawMessage {
	for _, e := range entries {
		resp, ok := e.(*transcript.Response)
		if !ok {
			continue
		}
		for _, seg := range resp.Segments {
			if seg.IsStructured() {
				return seg.JSON
			}
		}
	}
	return nil
}

func hasResponse(entries []transcript.Entry) bool {
	for _, e := range entries {
		if _, ok := e.(*transcript.Response); ok {
			return true
		}
	}
	return false
}
