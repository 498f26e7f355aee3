package tools

import (
	"encoding/json"
	"fmt"
)

// Problem is the recoverable tool failure signal. A tool returns *Problem
// when the failure should be fed back to the model as the call's output so
// the conversation can continue; any other error aborts the turn. The
// classification is caller-signaled on purpose: the session never guesses
// which arbitrary errors are safe to forward.
type Problem struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func (p *Problem) Error() string {
	if p.Code == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.Code, p.Message)
}

// Problemf builds a recoverable problem with a formatted message.
func Problemf(code, format string, args ...any) *Problem {
	return &Problem{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Payload renders the problem as the structured output substituted for the
// failed call.
func (p *Problem) Payload() json.RawMessage {
	data, err := json.Marshal(struct {
		Error *Problem `json:"error"`
	}{Error: p})
	if err != nil {
		// Problem bodies are plain maps and strings; this cannot fail in
		// practice, but fall back to something the model can still read.
		return json.RawMessage(fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, p.Code, p.Message))
	}
	return data
}
