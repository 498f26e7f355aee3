package models

import (
	"context"
	"encoding/json"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

const anthropicDefaultMaxTokens = 1024

// Anthropic is a Messages-API adapter with tool use. Thinking blocks map to
// reasoning entries; the signature rides along as the opaque continuation
// token.
type Anthropic struct {
	Client *anthropic.Client
}

// NewAnthropic constructs a client reading ANTHROPIC_API_KEY from the
// environment.
func NewAnthropic() *Anthropic {
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &Anthropic{Client: &cl}
}

var _ Adapter = (*Anthropic)(nil)

func (a *Anthropic) Respond(ctx context.Context, req Request) (<-chan Update, error) {
	if err := validateOptions(req); err != nil {
		return nil, err
	}
	if req.OutputSchema != nil {
		return nil, &ConfigError{Model: req.Model, Reason: "the messages API has no structured-output mode"}
	}

	params := a.buildParams(req)

	ch := make(chan Update)
	go func() {
		defer close(ch)

		msg, err := a.Client.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, ch, Update{Err: err})
			}
			return
		}

		status := transcript.StatusCompleted
		if msg.StopReason == anthropic.StopReasonMaxTokens {
			status = transcript.StatusIncomplete
		}

		var (
			calls    []transcript.ToolCall
			segments []transcript.Segment
		)
		for _, block := range msg.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				segments = append(segments, transcript.Text(b.Text))
			case anthropic.ThinkingBlock:
				if !emit(ctx, ch, Update{Entry: &transcript.Reasoning{
					ID:               transcript.NewID(),
					Summary:          []string{b.Thinking},
					EncryptedContent: b.Signature,
					Status:           status,
				}}) {
					return
				}
			case anthropic.RedactedThinkingBlock:
				if !emit(ctx, ch, Update{Entry: &transcript.Reasoning{
					ID:               transcript.NewID(),
					EncryptedContent: b.Data,
					Status:           status,
				}}) {
					return
				}
			case anthropic.ToolUseBlock:
				calls = append(calls, transcript.ToolCall{
					ID:        transcript.NewID(),
					CallID:    b.ID,
					Name:      b.Name,
					Arguments: json.RawMessage(b.Input),
					Status:    status,
				})
			}
		}

		if len(segments) > 0 {
			if !emit(ctx, ch, Update{Entry: &transcript.Response{
				ID:       transcript.NewID(),
				Status:   status,
				Segments: segments,
			}}) {
				return
			}
		}
		if len(calls) > 0 {
			if !emit(ctx, ch, Update{Entry: &transcript.ToolCalls{ID: transcript.NewID(), Calls: calls}}) {
				return
			}
		}
		if len(segments) == 0 && len(calls) == 0 {
			raw, _ := json.Marshal(msg.Content)
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no content", Raw: raw}})
			return
		}

		emit(ctx, ch, Update{Usage: &transcript.Usage{
			InputTokens:  transcript.Count(msg.Usage.InputTokens),
			OutputTokens: transcript.Count(msg.Usage.OutputTokens),
			CachedTokens: transcript.Count(msg.Usage.CacheReadInputTokens),
		}})
	}()
	return ch, nil
}

func (a *Anthropic) buildParams(req Request) anthropic.MessageNewParams {
	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.Options.MaxOutputTokens > 0 {
		maxTokens = int64(req.Options.MaxOutputTokens)
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(req.Model),
		MaxTokens:     maxTokens,
		StopSequences: req.Options.StopSequences,
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = anthropic.Float(*req.Options.TopP)
	}

	for entry := range req.Transcript.All() {
		switch e := entry.(type) {
		case *transcript.Prompt:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(promptText(e))))
		case *transcript.Response:
			if text := segmentText(e.Segments); text != "" {
				params.Messages = append(params.Messages,
					anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			}
		case *transcript.ToolCalls:
			var blocks []anthropic.ContentBlockParamUnion
			for _, call := range e.Calls {
				var input any
				if len(call.Arguments) > 0 {
					_ = json.Unmarshal(call.Arguments, &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.CallID, input, call.Name))
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		case *transcript.ToolOutput:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(e.CallID, outputText(e), false)))
		case *transcript.Reasoning:
			// Thinking cannot be replayed without the original block order;
			// the backend reconstructs its own state from the messages.
		}
	}

	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: anthropicTool(spec),
		})
	}
	return params
}

func anthropicTool(spec tools.Spec) *anthropic.ToolParam {
	return &anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: spec.InputSchema["properties"],
			Required:   schemaRequired(spec.InputSchema),
		},
	}
}

// schemaRequired extracts the required-property list from a JSON schema.
func schemaRequired(schema map[string]any) []string {
	raw, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names
}
