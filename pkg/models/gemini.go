package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Gemini is a generative-language adapter with function calling and JSON-mode
// structured responses. The backend carries no call identifiers of its own, so
// the adapter synthesizes them and correlates replayed outputs by tool name.
type Gemini struct {
	Client *genai.Client
}

// NewGemini constructs a client reading GOOGLE_API_KEY (or GEMINI_API_KEY)
// from the environment.
func NewGemini(ctx context.Context) (*Gemini, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("models: missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("models: gemini init: %w", err)
	}
	return &Gemini{Client: client}, nil
}

var _ Adapter = (*Gemini)(nil)

func (g *Gemini) Respond(ctx context.Context, req Request) (<-chan Update, error) {
	if err := validateOptions(req); err != nil {
		return nil, err
	}

	model := g.Client.GenerativeModel(req.Model)
	if req.Options.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Options.MaxOutputTokens))
	}
	if req.Options.Temperature != nil {
		model.SetTemperature(float32(*req.Options.Temperature))
	}
	if req.Options.TopP != nil {
		model.SetTopP(float32(*req.Options.TopP))
	}
	model.StopSequences = req.Options.StopSequences

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			schema, err := geminiSchema(spec.InputSchema)
			if err != nil {
				return nil, &ConfigError{Model: req.Model, Reason: fmt.Sprintf("tool %s: %v", spec.Name, err)}
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if req.OutputSchema != nil {
		schema, err := geminiSchema(req.OutputSchema)
		if err != nil {
			return nil, &ConfigError{Model: req.Model, Reason: fmt.Sprintf("output schema: %v", err)}
		}
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = schema
	}

	contents, err := geminiContents(req.Transcript)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, &ConfigError{Model: req.Model, Reason: "transcript holds nothing to send"}
	}

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	ch := make(chan Update)
	go func() {
		defer close(ch)

		resp, err := chat.SendMessage(ctx, last.Parts...)
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, ch, Update{Err: err})
			}
			return
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no candidates"}})
			return
		}

		cand := resp.Candidates[0]
		status := transcript.StatusCompleted
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			status = transcript.StatusIncomplete
		}

		var (
			calls    []transcript.ToolCall
			segments []transcript.Segment
		)
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if req.OutputSchema != nil {
					if !json.Valid([]byte(p)) {
						emit(ctx, ch, Update{Err: &ProtocolError{
							Reason: "structured response is not valid JSON",
							Raw:    json.RawMessage(p),
						}})
						return
					}
					segments = append(segments, transcript.Structured(json.RawMessage(p)))
				} else {
					segments = append(segments, transcript.Text(string(p)))
				}
			case genai.FunctionCall:
				args, err := json.Marshal(p.Args)
				if err != nil {
					emit(ctx, ch, Update{Err: &ProtocolError{Reason: "function call arguments do not encode", Err: err}})
					return
				}
				calls = append(calls, transcript.ToolCall{
					ID:        transcript.NewID(),
					CallID:    transcript.NewID(),
					Name:      p.Name,
					Arguments: args,
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
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no content"}})
			return
		}

		if meta := resp.UsageMetadata; meta != nil {
			emit(ctx, ch, Update{Usage: &transcript.Usage{
				InputTokens:  transcript.Count(int64(meta.PromptTokenCount)),
				OutputTokens: transcript.Count(int64(meta.CandidatesTokenCount)),
				TotalTokens:  transcript.Count(int64(meta.TotalTokenCount)),
				CachedTokens: transcript.Count(int64(meta.CachedContentTokenCount)),
			}})
		}
	}()
	return ch, nil
}

// geminiContents folds the transcript into chat contents. Tool outputs replay
// as function responses correlated by tool name, since that is all the wire
// format keeps.
func geminiContents(t *transcript.Transcript) ([]*genai.Content, error) {
	var contents []*genai.Content
	appendPart := func(role string, part genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	for entry := range t.All() {
		switch e := entry.(type) {
		case *transcript.Prompt:
			appendPart("user", genai.Text(promptText(e)))
		case *transcript.Response:
			if text := segmentText(e.Segments); text != "" {
				appendPart("model", genai.Text(text))
			}
		case *transcript.ToolCalls:
			for _, call := range e.Calls {
				args := map[string]any{}
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &args); err != nil {
						return nil, fmt.Errorf("models: replay tool call %s: %w", call.Name, err)
					}
				}
				appendPart("model", genai.FunctionCall{Name: call.Name, Args: args})
			}
		case *transcript.ToolOutput:
			resp := map[string]any{}
			if e.Content.IsStructured() {
				if err := json.Unmarshal(e.Content.JSON, &resp); err != nil {
					resp = map[string]any{"result": string(e.Content.JSON)}
				}
			} else {
				resp = map[string]any{"result": e.Content.Text}
			}
			appendPart("user", genai.FunctionResponse{Name: e.Name, Response: resp})
		case *transcript.Reasoning:
			// Not representable on this wire.
		}
	}
	return contents, nil
}

// geminiSchema converts a JSON-schema map into the backend's typed schema.
func geminiSchema(schema map[string]any) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	out := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		typ, err := geminiType(t)
		if err != nil {
			return nil, err
		}
		out.Type = typ
	}
	if d, ok := schema["description"].(string); ok {
		out.Description = d
	}
	if f, ok := schema["format"].(string); ok {
		out.Format = f
	}
	if values, ok := schema["enum"].([]any); ok {
		for _, v := range values {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		converted, err := geminiSchema(items)
		if err != nil {
			return nil, err
		}
		out.Items = converted
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %s is not a schema object", name)
			}
			converted, err := geminiSchema(prop)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = converted
		}
	}
	out.Required = schemaRequired(schema)
	return out, nil
}

func geminiType(t string) (genai.Type, error) {
	switch t {
	case "object":
		return genai.TypeObject, nil
	case "string":
		return genai.TypeString, nil
	case "number":
		return genai.TypeNumber, nil
	case "integer":
		return genai.TypeInteger, nil
	case "boolean":
		return genai.TypeBoolean, nil
	case "array":
		return genai.TypeArray, nil
	default:
		return genai.TypeUnspecified, fmt.Errorf("unsupported schema type %q", t)
	}
}
