package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Sim is a deterministic, non-network adapter that replays a caller-supplied
// script. Its transcripts are structurally indistinguishable from a real
// adapter's output: same entry shapes, synthesized identifiers, completed
// status. Code written against real transcripts works unmodified against
// simulated ones.
type Sim struct {
	mu     sync.Mutex
	steps  []SimStep
	next   int
	calls  int
	delay  time.Duration
	callID int
}

type simKind int

const (
	simReasoning simKind = iota
	simToolRun
	simToolCalls
	simResponse
	simStructured
	simUsage
)

// SimStep is one scripted action. Build steps with the Sim* constructors.
type SimStep struct {
	kind      simKind
	fragments []string
	tool      tools.Tool
	args      any
	name      string
	text      string
	value     any
	usage     *transcript.Usage
}

// SimReasoning emits a reasoning entry with the given summary fragments.
func SimReasoning(fragments ...string) SimStep {
	return SimStep{kind: simReasoning, fragments: fragments}
}

// SimToolRun emits a tool-call entry for the mock tool and synthesizes the
// correlated output by invoking it with the given arguments. A mock that
// raises a recoverable problem yields a structured error payload as the
// output instead of failing the turn.
func SimToolRun(tool tools.Tool, args any) SimStep {
	return SimStep{kind: simToolRun, tool: tool, args: args}
}

// SimToolCalls emits only a tool-call entry, leaving execution to the
// session loop. The stream ends after it so the loop can run the tool and
// come back for the next step.
func SimToolCalls(name string, args any) SimStep {
	return SimStep{kind: simToolCalls, name: name, args: args}
}

// SimResponse emits a response entry carrying the given text and ends the
// step.
func SimResponse(text string) SimStep {
	return SimStep{kind: simResponse, text: text}
}

// SimStructured emits a response entry carrying v as a structured segment and
// ends the step.
func SimStructured(v any) SimStep {
	return SimStep{kind: simStructured, value: v}
}

// SimUsage emits a usage report.
func SimUsage(u transcript.Usage) SimStep {
	return SimStep{kind: simUsage, usage: &u}
}

// NewSim builds a scripted adapter over the given steps.
func NewSim(steps ...SimStep) *Sim {
	return &Sim{steps: append([]SimStep(nil), steps...)}
}

// WithDelay inserts an artificial pause before each scripted step.
func (s *Sim) WithDelay(d time.Duration) *Sim {
	s.delay = d
	return s
}

// Extend appends steps to the script, letting one sim serve several turns.
func (s *Sim) Extend(steps ...SimStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Calls reports how many adapter steps have been issued so far.
func (s *Sim) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ Adapter = (*Sim)(nil)

// Respond drains script steps into the stream until one of them ends the
// adapter turn: a response, or tool calls left for the session to execute.
func (s *Sim) Respond(ctx context.Context, req Request) (<-chan Update, error) {
	if err := validateOptions(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	ch := make(chan Update)
	go func() {
		defer close(ch)
		for {
			s.mu.Lock()
			if s.next >= len(s.steps) {
				s.mu.Unlock()
				emit(ctx, ch, Update{Err: fmt.Errorf("%w at step %d", ErrScriptExhausted, s.next+1)})
				return
			}
			step := s.steps[s.next]
			s.next++
			s.mu.Unlock()

			if s.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.delay):
				}
			}

			done, err := s.play(ctx, ch, step)
			if err != nil {
				emit(ctx, ch, Update{Err: err})
				return
			}
			if done {
				return
			}
		}
	}()
	return ch, nil
}

// play emits the entries of one step. It reports whether the step ends the
// adapter turn.
func (s *Sim) play(ctx context.Context, ch chan<- Update, step SimStep) (bool, error) {
	switch step.kind {
	case simReasoning:
		entry := &transcript.Reasoning{
			ID:      transcript.NewID(),
			Summary: append([]string(nil), step.fragments...),
			Status:  transcript.StatusCompleted,
		}
		return false, s.send(ctx, ch, entry)

	case simToolRun:
		args, err := marshalArgs(step.args)
		if err != nil {
			return false, err
		}
		spec := step.tool.Spec()
		call := transcript.ToolCall{
			ID:        transcript.NewID(),
			CallID:    s.nextCallID(),
			Name:      spec.Name,
			Arguments: args,
			Status:    transcript.StatusCompleted,
		}
		if err := s.send(ctx, ch, &transcript.ToolCalls{ID: transcript.NewID(), Calls: []transcript.ToolCall{call}}); err != nil {
			return false, err
		}

		output, err := step.tool.Call(ctx, args)
		if err != nil {
			var problem *tools.Problem
			if !errors.As(err, &problem) {
				return false, err
			}
			output = problem.Payload()
		}
		return false, s.send(ctx, ch, &transcript.ToolOutput{
			ID:      transcript.NewID(),
			CallID:  call.CallID,
			Name:    spec.Name,
			Status:  transcript.StatusCompleted,
			Content: transcript.Structured(output),
		})

	case simToolCalls:
		args, err := marshalArgs(step.args)
		if err != nil {
			return false, err
		}
		entry := &transcript.ToolCalls{ID: transcript.NewID(), Calls: []transcript.ToolCall{{
			ID:        transcript.NewID(),
			CallID:    s.nextCallID(),
			Name:      step.name,
			Arguments: args,
			Status:    transcript.StatusCompleted,
		}}}
		return true, s.send(ctx, ch, entry)

	case simResponse:
		entry := &transcript.Response{
			ID:       transcript.NewID(),
			Status:   transcript.StatusCompleted,
			Segments: []transcript.Segment{transcript.Text(step.text)},
		}
		return true, s.send(ctx, ch, entry)

	case simStructured:
		raw, err := json.Marshal(step.value)
		if err != nil {
			return false, fmt.Errorf("models: encode scripted structured response: %w", err)
		}
		entry := &transcript.Response{
			ID:       transcript.NewID(),
			Status:   transcript.StatusCompleted,
			Segments: []transcript.Segment{transcript.Structured(raw)},
		}
		return true, s.send(ctx, ch, entry)

	case simUsage:
		if !emit(ctx, ch, Update{Usage: step.usage}) {
			return true, nil
		}
		return false, nil

	default:
		return false, fmt.Errorf("models: unknown scripted step kind %d", step.kind)
	}
}

func (s *Sim) send(ctx context.Context, ch chan<- Update, entry transcript.Entry) error {
	if !emit(ctx, ch, Update{Entry: entry}) {
		return ctx.Err()
	}
	return nil
}

func (s *Sim) nextCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID++
	return fmt.Sprintf("sim_call_%d", s.callID)
}

func marshalArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("models: encode scripted tool arguments: %w", err)
	}
	return data, nil
}
