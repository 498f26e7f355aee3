package session

import (
	"errors"
	"fmt"
)

// ErrEmptyMessageContent reports a turn that finished without any final
// response text to hand back.
var ErrEmptyMessageContent = errors.New("session: response carries no text content")

// ErrNoStructuredResponse reports a structured turn that finished without a
// structured response entry.
var ErrNoStructuredResponse = errors.New("session: no structured response in turn")

// ErrStepLimit reports a turn that hit the step ceiling while the model was
// still requesting tools.
var ErrStepLimit = errors.New("session: step limit reached before a final response")

// UnknownToolError reports a model call against a tool the session does not
// carry. The turn fails rather than inventing an output.
type UnknownToolError struct {
	Name   string
	CallID string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("session: unknown tool %s (call %s)", e.Name, e.CallID)
}

// ToolExecError reports an unrecoverable tool failure. Recoverable failures
// never surface here; they become structured outputs the model can read.
type ToolExecError struct {
	Name   string
	CallID string
	Err    error
}

func (e *ToolExecError) Error() string {
	return fmt.Sprintf("session: tool %s (call %s) failed: %v", e.Name, e.CallID, e.Err)
}

func (e *ToolExecError) Unwrap() error { return e.Err }
