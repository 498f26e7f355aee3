// Package tools defines the contract every callable tool implements and a
// typed constructor that keeps application tools strongly typed while the
// wire stays raw JSON.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Spec describes how a tool is presented to the model.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool is the untyped contract the session loop drives. Call receives the raw
// argument payload the model produced and returns the raw output forwarded
// back to it. A *Problem return is recoverable: the session substitutes it as
// the tool's output instead of aborting the turn. Any other error is
// unrecoverable and fails the turn.
type Tool interface {
	Spec() Spec
	Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// Resolvable is a tool that can additionally project a finished call/output
// pair into an application-defined resolved value. All tools handed to one
// resolver share the same R.
type Resolvable[R any] interface {
	Tool
	ResolveRun(call transcript.ToolCall, output *transcript.ToolOutput) (R, error)
}

// Run pairs a call's typed arguments with its typed output, when the output
// exists. It is resolver-facing sugar, never persisted.
type Run[Args, Out any] struct {
	Call   transcript.ToolCall
	Args   Args
	Output *Out
}

// DecodeError reports that a tool call's arguments or output could not be
// decoded into the tool's typed shape. The raw payload rides along for
// diagnostics.
type DecodeError struct {
	Tool   string
	CallID string
	What   string // "arguments" or "output"
	Raw    json.RawMessage
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tools: decode %s of %s (call %s): %v", e.What, e.Tool, e.CallID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Func adapts a typed Go function into a Tool. Args and Out are the tool's
// typed argument and output shapes; R is the resolved value its projection
// produces.
type Func[Args, Out, R any] struct {
	name        string
	description string
	schema      map[string]any
	call        func(context.Context, Args) (Out, error)
	resolve     func(Run[Args, Out]) (R, error)
}

// New builds a typed tool. The schema is the machine-readable parameter
// description sent to the backend; deriving one from Args is the caller's
// concern.
func New[Args, Out, R any](name, description string, schema map[string]any, call func(context.Context, Args) (Out, error)) *Func[Args, Out, R] {
	return &Func[Args, Out, R]{
		name:        name,
		description: description,
		schema:      schema,
		call:        call,
	}
}

// WithResolver installs the projection invoked by a resolver pass. Without
// one, ResolveRun returns the zero R.
func (t *Func[Args, Out, R]) WithResolver(fn func(Run[Args, Out]) (R, error)) *Func[Args, Out, R] {
	t.resolve = fn
	return t
}

func (t *Func[Args, Out, R]) Spec() Spec {
	return Spec{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.schema,
	}
}

// Call decodes the raw arguments, runs the typed function, and re-encodes the
// output. A *Problem raised by the function passes through untouched so the
// session can treat it as recoverable.
func (t *Func[Args, Out, R]) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var typed Args
	if len(args) > 0 {
		if err := json.Unmarshal(args, &typed); err != nil {
			return nil, &DecodeError{Tool: t.name, What: "arguments", Raw: args, Err: err}
		}
	}

	out, err := t.call(ctx, typed)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("tools: encode %s output: %w", t.name, err)
	}
	return encoded, nil
}

// ResolveRun decodes the call and its correlated output into the typed run
// and invokes the projection. A missing output yields a run with a nil
// Output, never a decode failure.
func (t *Func[Args, Out, R]) ResolveRun(call transcript.ToolCall, output *transcript.ToolOutput) (R, error) {
	var zero R

	run := Run[Args, Out]{Call: call}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &run.Args); err != nil {
			return zero, &DecodeError{Tool: t.name, CallID: call.CallID, What: "arguments", Raw: call.Arguments, Err: err}
		}
	}

	if output != nil {
		raw := output.Content.JSON
		if raw == nil && output.Content.Text != "" {
			raw = json.RawMessage(output.Content.Text)
		}
		if len(raw) > 0 {
			var out Out
			if err := json.Unmarshal(raw, &out); err != nil {
				return zero, &DecodeError{Tool: t.name, CallID: call.CallID, What: "output", Raw: raw, Err: err}
			}
			run.Output = &out
		}
	}

	if t.resolve == nil {
		return zero, nil
	}
	return t.resolve(run)
}
