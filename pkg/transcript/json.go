package transcript

import (
	"encoding/json"
	"fmt"
)

// Entry kind tags used in the serialized form.
const (
	kindPrompt     = "prompt"
	kindReasoning  = "reasoning"
	kindToolCalls  = "tool_calls"
	kindToolOutput = "tool_output"
	kindResponse   = "response"
)

type entryEnvelope struct {
	Kind string `json:"kind"`
}

// MarshalEntry serializes a single entry with its kind tag.
func MarshalEntry(e Entry) ([]byte, error) {
	var kind string
	switch e.(type) {
	case *Prompt:
		kind = kindPrompt
	case *Reasoning:
		kind = kindReasoning
	case *ToolCalls:
		kind = kindToolCalls
	case *ToolOutput:
		kind = kindToolOutput
	case *Response:
		kind = kindResponse
	default:
		return nil, fmt.Errorf("transcript: unknown entry type %T", e)
	}

	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	// Prepend the kind tag without re-encoding the body.
	tagged := make([]byte, 0, len(body)+len(kind)+10)
	tagged = append(tagged, []byte(`{"kind":"`+kind+`"`)...)
	if string(body) != "{}" {
		tagged = append(tagged, ',')
		tagged = append(tagged, body[1:]...)
	} else {
		tagged = append(tagged, '}')
	}
	return tagged, nil
}

// UnmarshalEntry deserializes a single tagged entry.
func UnmarshalEntry(data []byte) (Entry, error) {
	var env entryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("transcript: decode entry envelope: %w", err)
	}

	var e Entry
	switch env.Kind {
	case kindPrompt:
		e = &Prompt{}
	case kindReasoning:
		e = &Reasoning{}
	case kindToolCalls:
		e = &ToolCalls{}
	case kindToolOutput:
		e = &ToolOutput{}
	case kindResponse:
		e = &Response{}
	default:
		return nil, fmt.Errorf("transcript: unknown entry kind %q", env.Kind)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("transcript: decode %s entry: %w", env.Kind, err)
	}
	return e, nil
}

// MarshalJSON encodes the transcript as an array of tagged entries.
func (t *Transcript) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(t.entries))
	for _, e := range t.entries {
		data, err := MarshalEntry(e)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes an array of tagged entries, replacing any existing
// content.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("transcript: decode entry list: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		e, err := UnmarshalEntry(item)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	t.entries = entries
	return nil
}
