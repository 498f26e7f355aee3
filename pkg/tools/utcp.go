package tools

import (
	"context"
	"encoding/json"
	"fmt"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
)

// UTCPTool exposes a tool registered on a UTCP client through the local Tool
// contract, so remote tools join the session loop like native ones.
type UTCPTool struct {
	client utcp.UtcpClientInterface
	spec   Spec
}

// NewUTCPTool wraps one UTCP tool definition.
func NewUTCPTool(client utcp.UtcpClientInterface, def utcptools.Tool) (*UTCPTool, error) {
	if client == nil {
		return nil, fmt.Errorf("tools: utcp client is nil")
	}
	if def.Name == "" {
		return nil, fmt.Errorf("tools: utcp tool name is empty")
	}
	return &UTCPTool{
		client: client,
		spec: Spec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: map[string]any{
				"type":       def.Inputs.Type,
				"properties": def.Inputs.Properties,
				"required":   def.Inputs.Required,
			},
		},
	}, nil
}

func (t *UTCPTool) Spec() Spec { return t.spec }

// Call forwards the raw arguments to the UTCP client. Remote failures are
// unrecoverable here; a provider that wants the model to see an error must
// return a structured payload instead of failing the call.
func (t *UTCPTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	payload := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, &DecodeError{Tool: t.spec.Name, What: "arguments", Raw: args, Err: err}
		}
	}

	result, err := t.client.CallTool(ctx, t.spec.Name, payload)
	if err != nil {
		return nil, fmt.Errorf("tools: utcp call %s: %w", t.spec.Name, err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("tools: encode utcp result of %s: %w", t.spec.Name, err)
	}
	return encoded, nil
}
