package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrScriptExhausted reports that a scripted adapter ran out of steps while
// the session still expected another one.
var ErrScriptExhausted = errors.New("models: script exhausted")

// ConfigError reports generation options that are invalid for the chosen
// model. Adapters return it before issuing any network call.
type ConfigError struct {
	Model  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("models: invalid options: %s", e.Reason)
	}
	return fmt.Sprintf("models: invalid options for %s: %s", e.Model, e.Reason)
}

// ProtocolError reports a backend response the session cannot use: no content
// where content was required, structured content that failed to decode, or a
// refusal. Raw carries the offending payload for diagnostics.
type ProtocolError struct {
	Reason string
	Raw    json.RawMessage
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("models: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("models: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
