package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

func TestCalculatorCall(t *testing.T) {
	tool := NewCalculator[string]()
	out, err := tool.Call(context.Background(), json.RawMessage(`{"a":2,"b":2,"op":"+"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	var decoded CalculatorOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Result != 4 {
		t.Fatalf("unexpected result: %v", decoded.Result)
	}
}

func TestCalculatorRecoverableProblems(t *testing.T) {
	tool := NewCalculator[string]()

	_, err := tool.Call(context.Background(), json.RawMessage(`{"a":1,"b":0,"op":"/"}`))
	var problem *Problem
	if !errors.As(err, &problem) {
		t.Fatalf("expected *Problem, got %v", err)
	}
	if problem.Code != "division_by_zero" {
		t.Fatalf("unexpected problem code: %s", problem.Code)
	}

	if _, err := tool.Call(context.Background(), json.RawMessage(`{"a":1,"b":2,"op":"^"}`)); !errors.As(err, &problem) {
		t.Fatalf("expected recoverable problem for unknown operator, got %v", err)
	}
}

func TestCallDecodeError(t *testing.T) {
	tool := NewCalculator[string]()
	_, err := tool.Call(context.Background(), json.RawMessage(`{"a":"not a number"}`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decodeErr.What != "arguments" {
		t.Fatalf("unexpected decode target: %s", decodeErr.What)
	}
}

func TestResolveRunWithOutput(t *testing.T) {
	tool := NewCalculator[float64]().WithResolver(func(run Run[CalculatorArgs, CalculatorOutput]) (float64, error) {
		if run.Output == nil {
			return 0, errors.New("missing output")
		}
		return run.Output.Result, nil
	})

	call := transcript.ToolCall{
		CallID:    "call_1",
		Name:      "calculator",
		Arguments: json.RawMessage(`{"a":2,"b":2,"op":"+"}`),
		Status:    transcript.StatusCompleted,
	}
	output := &transcript.ToolOutput{
		CallID:  "call_1",
		Name:    "calculator",
		Status:  transcript.StatusCompleted,
		Content: transcript.Structured(json.RawMessage(`{"result":4}`)),
	}

	got, err := tool.ResolveRun(call, output)
	if err != nil {
		t.Fatalf("ResolveRun returned error: %v", err)
	}
	if got != 4 {
		t.Fatalf("unexpected resolved value: %v", got)
	}
}

func TestResolveRunWithoutOutput(t *testing.T) {
	sawNil := false
	tool := NewCalculator[string]().WithResolver(func(run Run[CalculatorArgs, CalculatorOutput]) (string, error) {
		sawNil = run.Output == nil
		return "pending", nil
	})

	call := transcript.ToolCall{CallID: "call_1", Name: "calculator", Arguments: json.RawMessage(`{"a":1,"b":1,"op":"+"}`)}
	got, err := tool.ResolveRun(call, nil)
	if err != nil {
		t.Fatalf("ResolveRun returned error: %v", err)
	}
	if !sawNil || got != "pending" {
		t.Fatalf("expected nil-output run, got %q (sawNil=%v)", got, sawNil)
	}
}

func TestResolveRunDefaultsToZero(t *testing.T) {
	tool := NewCalculator[string]()
	got, err := tool.ResolveRun(transcript.ToolCall{CallID: "c", Name: "calculator"}, nil)
	if err != nil {
		t.Fatalf("ResolveRun returned error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected zero value without resolver, got %q", got)
	}
}

func TestProblemPayload(t *testing.T) {
	p := Problemf("division_by_zero", "cannot divide %v by zero", 1)
	var decoded struct {
		Error Problem `json:"error"`
	}
	if err := json.Unmarshal(p.Payload(), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Error.Code != "division_by_zero" {
		t.Fatalf("unexpected payload: %s", p.Payload())
	}
}

func TestClock(t *testing.T) {
	tool := NewClock[string]()
	out, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	var decoded ClockOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, decoded.Now); err != nil {
		t.Fatalf("expected RFC3339 time, got %q", decoded.Now)
	}

	var problem *Problem
	if _, err := tool.Call(context.Background(), json.RawMessage(`{"timezone":"Nowhere/Atlantis"}`)); !errors.As(err, &problem) {
		t.Fatalf("expected recoverable problem for bad timezone, got %v", err)
	}
}
