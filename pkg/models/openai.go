package models

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// OpenAI is a chat-completions adapter with tool calling and structured
// (JSON-schema) responses.
type OpenAI struct {
	Client *openai.Client
}

// NewOpenAI constructs a client reading OPENAI_API_KEY from the environment.
func NewOpenAI() *OpenAI {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	return &OpenAI{Client: openai.NewClient(apiKey)}
}

var _ Adapter = (*OpenAI)(nil)

func (o *OpenAI) Respond(ctx context.Context, req Request) (<-chan Update, error) {
	if err := validateOptions(req); err != nil {
		return nil, err
	}
	if req.OutputSchema != nil && req.OutputName == "" {
		return nil, &ConfigError{Model: req.Model, Reason: "structured responses need an output schema name"}
	}

	wire, err := o.buildRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Update)
	go func() {
		defer close(ch)

		resp, err := o.Client.CreateChatCompletion(ctx, wire)
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, ch, Update{Err: err})
			}
			return
		}
		if len(resp.Choices) == 0 {
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no choices"}})
			return
		}

		choice := resp.Choices[0]
		status := transcript.StatusCompleted
		if choice.FinishReason == openai.FinishReasonLength {
			status = transcript.StatusIncomplete
		}

		msg := choice.Message
		if msg.Content != "" {
			segment := transcript.Text(msg.Content)
			if req.OutputSchema != nil {
				if !json.Valid([]byte(msg.Content)) {
					emit(ctx, ch, Update{Err: &ProtocolError{
						Reason: "structured response is not valid JSON",
						Raw:    json.RawMessage(msg.Content),
					}})
					return
				}
				segment = transcript.Structured(json.RawMessage(msg.Content))
			}
			if !emit(ctx, ch, Update{Entry: &transcript.Response{
				ID:       transcript.NewID(),
				Status:   status,
				Segments: []transcript.Segment{segment},
			}}) {
				return
			}
		}

		if len(msg.ToolCalls) > 0 {
			calls := make([]transcript.ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, transcript.ToolCall{
					ID:        transcript.NewID(),
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
					Status:    status,
				})
			}
			if !emit(ctx, ch, Update{Entry: &transcript.ToolCalls{ID: transcript.NewID(), Calls: calls}}) {
				return
			}
		} else if msg.Content == "" {
			raw, _ := json.Marshal(msg)
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no content", Raw: raw}})
			return
		}

		emit(ctx, ch, Update{Usage: openaiUsage(resp.Usage)})
	}()
	return ch, nil
}

func (o *OpenAI) buildRequest(req Request) (openai.ChatCompletionRequest, error) {
	wire := openai.ChatCompletionRequest{
		Model: req.Model,
		Stop:  req.Options.StopSequences,
	}
	if req.Options.MaxOutputTokens > 0 {
		wire.MaxTokens = req.Options.MaxOutputTokens
	}
	if req.Options.Temperature != nil {
		wire.Temperature = float32(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		wire.TopP = float32(*req.Options.TopP)
	}

	for entry := range req.Transcript.All() {
		switch e := entry.(type) {
		case *transcript.Prompt:
			wire.Messages = append(wire.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: promptText(e),
			})
		case *transcript.Response:
			wire.Messages = append(wire.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: segmentText(e.Segments),
			})
		case *transcript.ToolCalls:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, call := range e.Calls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			wire.Messages = append(wire.Messages, msg)
		case *transcript.ToolOutput:
			wire.Messages = append(wire.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: e.CallID,
				Content:    outputText(e),
			})
		case *transcript.Reasoning:
			// No chat-completions wire representation; the backend resumes
			// reasoning on its own.
		}
	}

	for _, spec := range req.Tools {
		wire.Tools = append(wire.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}

	if req.OutputSchema != nil {
		wire.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.OutputName,
				Schema: rawSchema(StrictSchema(req.OutputSchema)),
				Strict: true,
			},
		}
	}
	return wire, nil
}

// rawSchema satisfies the json.Marshaler the response-format field expects.
type rawSchema map[string]any

func (s rawSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// StrictSchema rewrites a JSON schema for the strict structured-output mode:
// every object property joins the required list, and properties that were
// previously optional become nullable so their absence stays expressible.
func StrictSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}

	props, ok := out["properties"].(map[string]any)
	if !ok {
		return out
	}

	previouslyRequired := map[string]bool{}
	if required, ok := out["required"].([]any); ok {
		for _, name := range required {
			if s, ok := name.(string); ok {
				previouslyRequired[s] = true
			}
		}
	}

	newProps := make(map[string]any, len(props))
	required := make([]any, 0, len(props))
	for name, raw := range props {
		required = append(required, name)
		prop, ok := raw.(map[string]any)
		if !ok {
			newProps[name] = raw
			continue
		}
		prop = StrictSchema(prop)
		if !previouslyRequired[name] {
			prop = nullableSchema(prop)
		}
		newProps[name] = prop
	}
	sortAnyStrings(required)

	out["properties"] = newProps
	out["required"] = required
	out["additionalProperties"] = false
	return out
}

func nullableSchema(prop map[string]any) map[string]any {
	out := make(map[string]any, len(prop))
	for k, v := range prop {
		out[k] = v
	}
	switch t := out["type"].(type) {
	case string:
		if t != "null" {
			out["type"] = []any{t, "null"}
		}
	case []any:
		for _, v := range t {
			if v == "null" {
				return out
			}
		}
		out["type"] = append(append([]any(nil), t...), "null")
	}
	return out
}

func sortAnyStrings(values []any) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0; j-- {
			a, _ := values[j-1].(string)
			b, _ := values[j].(string)
			if a <= b {
				break
			}
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
}

func promptText(p *transcript.Prompt) string {
	if p.Rendered != "" {
		return p.Rendered
	}
	return p.Input
}

func segmentText(segments []transcript.Segment) string {
	var parts []string
	for _, seg := range segments {
		switch {
		case seg.Text != "":
			parts = append(parts, seg.Text)
		case seg.IsStructured():
			parts = append(parts, string(seg.JSON))
		}
	}
	return strings.Join(parts, "\n")
}

func outputText(out *transcript.ToolOutput) string {
	if out.Content.IsStructured() {
		return string(out.Content.JSON)
	}
	return out.Content.Text
}

func openaiUsage(u openai.Usage) *transcript.Usage {
	usage := &transcript.Usage{
		InputTokens:  transcript.Count(int64(u.PromptTokens)),
		OutputTokens: transcript.Count(int64(u.CompletionTokens)),
		TotalTokens:  transcript.Count(int64(u.TotalTokens)),
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = transcript.Count(int64(u.PromptTokensDetails.CachedTokens))
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = transcript.Count(int64(u.CompletionTokensDetails.ReasoningTokens))
	}
	return usage
}
