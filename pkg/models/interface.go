// Package models abstracts the generative-model backends a session can talk
// to. Each adapter translates the transcript to its backend's wire format,
// validates generation options before any network call, and streams back the
// entries and usage reports of exactly one step.
package models

import (
	"context"
	"fmt"

	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Request carries everything an adapter needs for one step. The transcript is
// read-only context for building the outbound request; adapters must never
// mutate it. The latest Prompt entry is already part of the transcript.
type Request struct {
	Transcript *transcript.Transcript
	Model      string
	Tools      []tools.Spec
	Options    Options

	// OutputSchema, when non-nil, requests a structured response conforming
	// to the schema. OutputName names the schema for backends that need one.
	OutputSchema map[string]any
	OutputName   string
}

// Options are the generation knobs shared across backends. Each adapter
// validates them against the chosen model before issuing a network call.
type Options struct {
	MaxOutputTokens int
	Temperature     *float64
	TopP            *float64
	StopSequences   []string
}

// Update is one element of an adapter's response stream: a transcript entry
// to append, a usage report to merge, or a terminal error. Exactly one field
// is set.
type Update struct {
	Entry transcript.Entry
	Usage *transcript.Usage
	Err   error
}

// Adapter is the backend boundary. Respond issues one generation step for
// the given transcript and streams its updates in append order. The stream
// closes normally when the step is done; turn-fatal failures arrive as a
// final Update with Err set. A non-nil error return means the request never
// left the process (configuration errors).
type Adapter interface {
	Respond(ctx context.Context, req Request) (<-chan Update, error)
}

// NewAdapter constructs a backend adapter by provider name.
func NewAdapter(ctx context.Context, provider string) (Adapter, error) {
	switch provider {
	case "openai":
		return NewOpenAI(), nil
	case "anthropic", "claude":
		return NewAnthropic(), nil
	case "gemini", "google":
		return NewGemini(ctx)
	case "ollama":
		return NewOllama()
	default:
		return nil, fmt.Errorf("models: unknown provider: %s", provider)
	}
}

// validateOptions covers the option checks shared by every backend.
func validateOptions(req Request) *ConfigError {
	if req.Model == "" {
		return &ConfigError{Model: req.Model, Reason: "model name is empty"}
	}
	if req.Transcript == nil {
		return &ConfigError{Model: req.Model, Reason: "request carries no transcript"}
	}
	if req.Options.MaxOutputTokens < 0 {
		return &ConfigError{Model: req.Model, Reason: "max output tokens must not be negative"}
	}
	if t := req.Options.Temperature; t != nil && (*t < 0 || *t > 2) {
		return &ConfigError{Model: req.Model, Reason: fmt.Sprintf("temperature %v outside [0, 2]", *t)}
	}
	if p := req.Options.TopP; p != nil && (*p < 0 || *p > 1) {
		return &ConfigError{Model: req.Model, Reason: fmt.Sprintf("top_p %v outside [0, 1]", *p)}
	}
	return nil
}

// emit sends an update unless the consumer's context is gone. Cancellation is
// silent: the stream just stops producing.
func emit(ctx context.Context, ch chan<- Update, u Update) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- u:
		return true
	}
}
