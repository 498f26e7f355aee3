package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Ollama is a local-model adapter over the generate endpoint. It flattens the
// transcript into a single prompt; tool calling and structured responses are
// rejected before any request goes out.
type Ollama struct {
	Client *ollama.Client
}

// NewOllama constructs a client against OLLAMA_HOST, defaulting to the local
// daemon.
func NewOllama() (*Ollama, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("models: invalid OLLAMA_HOST %q: %w", host, err)
	}
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &Ollama{Client: ollama.NewClient(u, httpClient)}, nil
}

var _ Adapter = (*Ollama)(nil)

func (o *Ollama) Respond(ctx context.Context, req Request) (<-chan Update, error) {
	if err := validateOptions(req); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 {
		return nil, &ConfigError{Model: req.Model, Reason: "the generate endpoint does not support tools"}
	}
	if req.OutputSchema != nil {
		return nil, &ConfigError{Model: req.Model, Reason: "the generate endpoint does not support structured responses"}
	}

	wire := &ollama.GenerateRequest{
		Model:  req.Model,
		Prompt: flattenTranscript(req.Transcript),
	}
	options := map[string]any{}
	if req.Options.MaxOutputTokens > 0 {
		options["num_predict"] = req.Options.MaxOutputTokens
	}
	if req.Options.Temperature != nil {
		options["temperature"] = *req.Options.Temperature
	}
	if req.Options.TopP != nil {
		options["top_p"] = *req.Options.TopP
	}
	if len(req.Options.StopSequences) > 0 {
		options["stop"] = req.Options.StopSequences
	}
	if len(options) > 0 {
		wire.Options = options
	}

	ch := make(chan Update)
	go func() {
		defer close(ch)

		var (
			text strings.Builder
			last ollama.GenerateResponse
		)
		err := o.Client.Generate(ctx, wire, func(gr ollama.GenerateResponse) error {
			if gr.Response != "" {
				text.WriteString(gr.Response)
			}
			last = gr
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, ch, Update{Err: err})
			}
			return
		}
		if text.Len() == 0 {
			emit(ctx, ch, Update{Err: &ProtocolError{Reason: "backend returned no content"}})
			return
		}

		status := transcript.StatusCompleted
		if last.DoneReason == "length" {
			status = transcript.StatusIncomplete
		}
		if !emit(ctx, ch, Update{Entry: &transcript.Response{
			ID:       transcript.NewID(),
			Status:   status,
			Segments: []transcript.Segment{transcript.Text(text.String())},
		}}) {
			return
		}

		emit(ctx, ch, Update{Usage: &transcript.Usage{
			InputTokens:  transcript.Count(int64(last.Metrics.PromptEvalCount)),
			OutputTokens: transcript.Count(int64(last.Metrics.EvalCount)),
		}})
	}()
	return ch, nil
}

// flattenTranscript renders the conversation as alternating labelled blocks,
// the only shape the generate endpoint understands.
func flattenTranscript(t *transcript.Transcript) string {
	var b strings.Builder
	for entry := range t.All() {
		switch e := entry.(type) {
		case *transcript.Prompt:
			fmt.Fprintf(&b, "User: %s\n", promptText(e))
		case *transcript.Response:
			if text := segmentText(e.Segments); text != "" {
				fmt.Fprintf(&b, "Assistant: %s\n", text)
			}
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
