package session

import (
	"context"
	"errors"
	"testing"

	"github.com/Protocol-Lattice/go-session/pkg/models"
	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// calculation is the application-facing record a resolved calculator run
// produces.
type calculation struct {
	Expression string
	Result     float64
	Finished   bool
}

func resolvableCalculator() tools.Resolvable[calculation] {
	return tools.NewCalculator[calculation]().WithResolver(
		func(run tools.Run[tools.CalculatorArgs, tools.CalculatorOutput]) (calculation, error) {
			c := calculation{
				Expression: run.Call.Name,
				Finished:   run.Output != nil,
			}
			if run.Output != nil {
				c.Result = run.Output.Result
			}
			return c, nil
		})
}

func TestResolverProjectsFinishedRuns(t *testing.T) {
	sim := models.NewSim(
		models.SimToolCalls("calculator", map[string]any{"a": 6, "b": 7, "op": "*"}),
		models.SimResponse("42"),
	)
	calc := resolvableCalculator()
	s := newTestSession(t, sim, WithTools(calc))

	if _, err := s.Respond(context.Background(), "6*7?"); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	resolver, err := NewResolver[calculation](calc)
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	runs, err := resolver.ResolveAll(s.Transcript())
	if err != nil {
		t.Fatalf("ResolveAll returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 resolved run, got %d", len(runs))
	}
	if !runs[0].Finished || runs[0].Result != 42 {
		t.Fatalf("unexpected resolved run: %+v", runs[0])
	}
}

func TestResolverByCallID(t *testing.T) {
	calc := resolvableCalculator()

	tr := transcript.New()
	tr.Append(&transcript.ToolCalls{ID: transcript.NewID(), Calls: []transcript.ToolCall{{
		ID:        transcript.NewID(),
		CallID:    "call_7",
		Name:      "calculator",
		Arguments: []byte(`{"a":1,"b":2,"op":"+"}`),
		Status:    transcript.StatusCompleted,
	}}})

	resolver, err := NewResolver[calculation](calc)
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}

	// No output yet: the run resolves as unfinished.
	run, err := resolver.Resolve(tr, "call_7")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if run.Finished {
		t.Fatalf("run without output must resolve as unfinished")
	}

	tr.Append(&transcript.ToolOutput{
		ID:      transcript.NewID(),
		CallID:  "call_7",
		Name:    "calculator",
		Status:  transcript.StatusCompleted,
		Content: transcript.Structured([]byte(`{"result":3}`)),
	})
	run, err = resolver.Resolve(tr, "call_7")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !run.Finished || run.Result != 3 {
		t.Fatalf("unexpected resolved run: %+v", run)
	}
}

func TestResolverUnknownCallID(t *testing.T) {
	resolver, err := NewResolver[calculation](resolvableCalculator())
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	if _, err := resolver.Resolve(transcript.New(), "nope"); err == nil {
		t.Fatalf("expected an error for a missing call id")
	}
}

func TestResolveAllSkipsForeignTools(t *testing.T) {
	tr := transcript.New()
	tr.Append(&transcript.ToolCalls{ID: transcript.NewID(), Calls: []transcript.ToolCall{{
		ID:        transcript.NewID(),
		CallID:    "call_1",
		Name:      "some_other_tool",
		Arguments: []byte(`{}`),
		Status:    transcript.StatusCompleted,
	}}})

	resolver, err := NewResolver[calculation](resolvableCalculator())
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	runs, err := resolver.ResolveAll(tr)
	if err != nil {
		t.Fatalf("ResolveAll returned error: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("foreign tools must be skipped, got %d runs", len(runs))
	}
}

func TestNewResolverRejectsDuplicates(t *testing.T) {
	_, err := NewResolver[calculation](resolvableCalculator(), resolvableCalculator())
	if err == nil {
		t.Fatalf("expected an error for duplicate tool names")
	}
}

func TestResolverDecodeFailureSurfaces(t *testing.T) {
	tr := transcript.New()
	tr.Append(&transcript.ToolCalls{ID: transcript.NewID(), Calls: []transcript.ToolCall{{
		ID:        transcript.NewID(),
		CallID:    "call_bad",
		Name:      "calculator",
		Arguments: []byte(`{"a":"not a number"}`),
		Status:    transcript.StatusCompleted,
	}}})

	resolver, err := NewResolver[calculation](resolvableCalculator())
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	_, err = resolver.Resolve(tr, "call_bad")
	var decode *tools.DecodeError
	if !errors.As(err, &decode) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}
