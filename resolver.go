package session

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Resolver projects finished tool runs out of a transcript into typed
// application values. All of its tools share one resolved type R; resolving a
// transcript yields the values in call order.
type Resolver[R any] struct {
	tools map[string]tools.Resolvable[R]
}

// NewResolver builds a resolver over the given tools.
func NewResolver[R any](ts ...tools.Resolvable[R]) (*Resolver[R], error) {
	r := &Resolver[R]{tools: make(map[string]tools.Resolvable[R], len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("session: resolvable tool is nil")
		}
		key := strings.ToLower(strings.TrimSpace(t.Spec().Name))
		if key == "" {
			return nil, fmt.Errorf("session: resolvable tool name is empty")
		}
		if _, exists := r.tools[key]; exists {
			return nil, fmt.Errorf("session: tool %s already registered", t.Spec().Name)
		}
		r.tools[key] = t
	}
	return r, nil
}

// Resolve projects the call with the given id. The output may be missing (an
// in-flight call); the tool's projection decides what that means.
func (r *Resolver[R]) Resolve(t *transcript.Transcript, callID string) (R, error) {
	var zero R
	for _, entry := range t.Entries() {
		calls, ok := entry.(*transcript.ToolCalls)
		if !ok {
			continue
		}
		for _, call := range calls.Calls {
			if call.CallID != callID {
				continue
			}
			return r.resolveCall(t, call)
		}
	}
	return zero, fmt.Errorf("session: no tool call with id %s", callID)
}

// ResolveAll projects every call made by a tool this resolver knows, in call
// order. Calls against other tools are skipped.
func (r *Resolver[R]) ResolveAll(t *transcript.Transcript) ([]R, error) {
	var resolved []R
	for _, entry := range t.Entries() {
		calls, ok := entry.(*transcript.ToolCalls)
		if !ok {
			continue
		}
		for _, call := range calls.Calls {
			if _, known := r.lookup(call.Name); !known {
				continue
			}
			value, err := r.resolveCall(t, call)
			if err != nil {
				return resolved, err
			}
			resolved = append(resolved, value)
		}
	}
	return resolved, nil
}

func (r *Resolver[R]) resolveCall(t *transcript.Transcript, call transcript.ToolCall) (R, error) {
	var zero R
	tool, ok := r.lookup(call.Name)
	if !ok {
		return zero, &UnknownToolError{Name: call.Name, CallID: call.CallID}
	}
	output, _ := t.OutputForCall(call.CallID)
	return tool.ResolveRun(call, output)
}

func (r *Resolver[R]) lookup(name string) (tools.Resolvable[R], bool) {
	t, ok := r.tools[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}
