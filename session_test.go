package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-session/pkg/models"
	"github.com/Protocol-Lattice/go-session/pkg/tools"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

type calcRun = tools.Run[tools.CalculatorArgs, tools.CalculatorOutput]

func newTestSession(t *testing.T, adapter models.Adapter, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithModel("sim")}, opts...)
	s, err := New(adapter, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func TestRespondToolLoop(t *testing.T) {
	sim := models.NewSim(
		models.SimToolCalls("calculator", map[string]any{"a": 2, "b": 2, "op": "+"}),
		models.SimResponse("4"),
	)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	before := s.Transcript().Len()
	text, err := s.Respond(context.Background(), "2+2?")
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if text != "4" {
		t.Fatalf("unexpected response: %q", text)
	}

	// One prompt plus tool calls, the executed output, and the response.
	added := s.Transcript().Len() - before
	if added != 4 {
		t.Fatalf("expected 4 appended entries, got %d", added)
	}
	entries := s.Transcript().Entries()
	if _, ok := entries[before].(*transcript.Prompt); !ok {
		t.Fatalf("expected a prompt first, got %T", entries[before])
	}
	calls, ok := entries[before+1].(*transcript.ToolCalls)
	if !ok {
		t.Fatalf("expected tool calls, got %T", entries[before+1])
	}
	output, ok := entries[before+2].(*transcript.ToolOutput)
	if !ok {
		t.Fatalf("expected a tool output, got %T", entries[before+2])
	}
	if output.CallID != calls.Calls[0].CallID {
		t.Fatalf("output %q not correlated to call %q", output.CallID, calls.Calls[0].CallID)
	}
	var result tools.CalculatorOutput
	if err := json.Unmarshal(output.Content.JSON, &result); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if result.Result != 4 {
		t.Fatalf("unexpected tool result: %v", result.Result)
	}
	if _, ok := entries[before+3].(*transcript.Response); !ok {
		t.Fatalf("expected a response last, got %T", entries[before+3])
	}
	if len(s.Transcript().PendingCalls()) != 0 {
		t.Fatalf("turn finished with pending calls")
	}
	if sim.Calls() != 2 {
		t.Fatalf("expected 2 adapter steps, got %d", sim.Calls())
	}
}

func TestRespondTurnReportsEntriesAndUsage(t *testing.T) {
	sim := models.NewSim(
		models.SimToolCalls("calculator", map[string]any{"a": 2, "b": 3, "op": "+"}),
		models.SimUsage(transcript.Usage{InputTokens: transcript.Count(7), OutputTokens: transcript.Count(1)}),
		models.SimResponse("5"),
	)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	turn, err := s.RespondTurn(context.Background(), "2+3?")
	if err != nil {
		t.Fatalf("RespondTurn returned error: %v", err)
	}
	if turn.Content != "5" {
		t.Fatalf("unexpected content: %q", turn.Content)
	}
	// The prompt does not count; the turn added calls, an output and a response.
	if len(turn.Entries) != 3 {
		t.Fatalf("expected 3 turn entries, got %d", len(turn.Entries))
	}
	if _, ok := turn.Entries[0].(*transcript.ToolCalls); !ok {
		t.Fatalf("expected tool calls first, got %T", turn.Entries[0])
	}
	if _, ok := turn.Entries[1].(*transcript.ToolOutput); !ok {
		t.Fatalf("expected a tool output second, got %T", turn.Entries[1])
	}
	if _, ok := turn.Entries[2].(*transcript.Response); !ok {
		t.Fatalf("expected a response last, got %T", turn.Entries[2])
	}
	if turn.Usage == nil || *turn.Usage.InputTokens != 7 || *turn.Usage.OutputTokens != 1 {
		t.Fatalf("unexpected turn usage: %+v", turn.Usage)
	}

	// A second turn's usage starts fresh while the session total keeps growing.
	sim.Extend(
		models.SimUsage(transcript.Usage{InputTokens: transcript.Count(4)}),
		models.SimResponse("done"),
	)
	next, err := s.RespondTurn(context.Background(), "thanks")
	if err != nil {
		t.Fatalf("second RespondTurn returned error: %v", err)
	}
	if *next.Usage.InputTokens != 4 {
		t.Fatalf("turn usage leaked across turns: %+v", next.Usage)
	}
	if *s.Usage().InputTokens != 11 {
		t.Fatalf("lifetime usage not accumulated: %+v", s.Usage())
	}
}

func TestRespondAppendsInStreamOrder(t *testing.T) {
	sim := models.NewSim(
		models.SimReasoning("think first"),
		models.SimToolRun(tools.NewCalculator[calcRun](), tools.CalculatorArgs{A: 3, B: 4, Op: "*"}),
		models.SimResponse("12"),
	)
	s := newTestSession(t, sim)

	if _, err := s.Respond(context.Background(), "3*4?"); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	var kinds []string
	for entry := range s.Transcript().All() {
		switch entry.(type) {
		case *transcript.Prompt:
			kinds = append(kinds, "prompt")
		case *transcript.Reasoning:
			kinds = append(kinds, "reasoning")
		case *transcript.ToolCalls:
			kinds = append(kinds, "calls")
		case *transcript.ToolOutput:
			kinds = append(kinds, "output")
		case *transcript.Response:
			kinds = append(kinds, "response")
		}
	}
	want := []string{"prompt", "reasoning", "calls", "output", "response"}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected entry kinds: %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("entry %d: got %s, want %s (all: %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestRespondRecoverableProblemContinues(t *testing.T) {
	sim := models.NewSim(
		models.SimToolCalls("calculator", map[string]any{"a": 1, "b": 0, "op": "/"}),
		models.SimResponse("cannot divide by zero"),
	)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	text, err := s.Respond(context.Background(), "1/0?")
	if err != nil {
		t.Fatalf("a recoverable tool problem must not fail the turn: %v", err)
	}
	if text != "cannot divide by zero" {
		t.Fatalf("unexpected response: %q", text)
	}

	var output *transcript.ToolOutput
	for entry := range s.Transcript().All() {
		if o, ok := entry.(*transcript.ToolOutput); ok {
			output = o
		}
	}
	if output == nil {
		t.Fatalf("no tool output appended")
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(output.Content.JSON, &payload); err != nil {
		t.Fatalf("decode problem payload: %v", err)
	}
	if payload.Error.Code != "division_by_zero" {
		t.Fatalf("unexpected problem code: %q", payload.Error.Code)
	}
}

func TestRespondUnknownToolFailsTurn(t *testing.T) {
	sim := models.NewSim(
		models.SimToolCalls("missing_tool", map[string]any{}),
		models.SimResponse("unreachable"),
	)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	_, err := s.Respond(context.Background(), "call something odd")
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected an unknown-tool failure, got %v", err)
	}
	if unknown.Name != "missing_tool" {
		t.Fatalf("unexpected tool name: %q", unknown.Name)
	}
}

func TestRespondNextTurnSkipsStaleFailedCall(t *testing.T) {
	sim := models.NewSim(models.SimToolCalls("missing_tool", map[string]any{}))
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	_, err := s.Respond(context.Background(), "call something odd")
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected an unknown-tool failure, got %v", err)
	}

	// The failed call stays output-less in the transcript. That is a valid
	// partial record; the next turn must not pick it up again.
	sim.Extend(models.SimResponse("hello"))
	text, err := s.Respond(context.Background(), "hi")
	if err != nil {
		t.Fatalf("next turn must not re-execute the stale call: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected response: %q", text)
	}
	if got := len(s.Transcript().PendingCalls()); got != 1 {
		t.Fatalf("the stale call should stay uncorrelated, got %d pending", got)
	}
}

func TestRespondStepLimit(t *testing.T) {
	// An adapter that always asks for another tool call never converges.
	loop := make([]models.SimStep, 0, 8)
	for i := 0; i < 8; i++ {
		loop = append(loop, models.SimToolCalls("calculator", map[string]any{"a": 1, "b": 1, "op": "+"}))
	}
	sim := models.NewSim(loop...)
	s := newTestSession(t, sim,
		WithTools(tools.NewCalculator[calcRun]()),
		WithMaxSteps(3),
	)

	_, err := s.Respond(context.Background(), "loop forever")
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected the step limit to fire, got %v", err)
	}
	if sim.Calls() != 3 {
		t.Fatalf("expected exactly 3 adapter steps, got %d", sim.Calls())
	}
}

func TestRespondEmptyText(t *testing.T) {
	sim := models.NewSim(models.SimResponse(""))
	s := newTestSession(t, sim)

	_, err := s.Respond(context.Background(), "say nothing")
	if !errors.Is(err, ErrEmptyMessageContent) {
		t.Fatalf("expected ErrEmptyMessageContent, got %v", err)
	}
}

func TestRespondUsageAccumulates(t *testing.T) {
	sim := models.NewSim(
		models.SimUsage(transcript.Usage{InputTokens: transcript.Count(10), OutputTokens: transcript.Count(2)}),
		models.SimToolCalls("calculator", map[string]any{"a": 1, "b": 1, "op": "+"}),
		models.SimUsage(transcript.Usage{InputTokens: transcript.Count(14), OutputTokens: transcript.Count(3)}),
		models.SimResponse("2"),
	)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()))

	if _, err := s.Respond(context.Background(), "1+1?"); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	usage := s.Usage()
	if usage == nil {
		t.Fatalf("no usage accumulated")
	}
	if *usage.InputTokens != 24 || *usage.OutputTokens != 5 {
		t.Fatalf("unexpected usage totals: %+v", usage)
	}
	if usage.ReasoningTokens != nil {
		t.Fatalf("unreported counters must stay nil, got %v", *usage.ReasoningTokens)
	}

	s.ResetUsage()
	if s.Usage() != nil {
		t.Fatalf("usage should be nil after reset")
	}
}

func TestRespondAsStructured(t *testing.T) {
	type forecast struct {
		City string `json:"city"`
		Sky  string `json:"sky"`
	}
	sim := models.NewSim(models.SimStructured(forecast{City: "Lisbon", Sky: "clear"}))
	s := newTestSession(t, sim)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
			"sky":  map[string]any{"type": "string"},
		},
		"required": []any{"city", "sky"},
	}
	got, err := RespondAs[forecast](context.Background(), s, "forecast for Lisbon", schema, "forecast")
	if err != nil {
		t.Fatalf("RespondAs returned error: %v", err)
	}
	if got.City != "Lisbon" || got.Sky != "clear" {
		t.Fatalf("unexpected structured value: %+v", got)
	}
}

func TestRespondAsWithoutStructuredResponse(t *testing.T) {
	sim := models.NewSim(models.SimResponse("just text"))
	s := newTestSession(t, sim)

	_, err := RespondAs[map[string]any](context.Background(), s, "give me JSON",
		map[string]any{"type": "object"}, "anything")
	if !errors.Is(err, ErrNoStructuredResponse) {
		t.Fatalf("expected ErrNoStructuredResponse, got %v", err)
	}
}

func TestRespondAsBudgetExhausted(t *testing.T) {
	// Every step asks for another tool call; no structured segment ever comes.
	loop := make([]models.SimStep, 0, 3)
	for i := 0; i < 3; i++ {
		loop = append(loop, models.SimToolCalls("calculator", map[string]any{"a": 1, "b": 1, "op": "+"}))
	}
	sim := models.NewSim(loop...)
	s := newTestSession(t, sim, WithTools(tools.NewCalculator[calcRun]()), WithMaxSteps(3))

	_, err := RespondAs[map[string]any](context.Background(), s, "give me JSON",
		map[string]any{"type": "object"}, "anything")
	if !errors.Is(err, ErrNoStructuredResponse) {
		t.Fatalf("expected ErrNoStructuredResponse, got %v", err)
	}
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("the exhausted budget should still be visible: %v", err)
	}
}

func TestRespondCancellation(t *testing.T) {
	sim := models.NewSim(models.SimResponse("late")).WithDelay(50 * time.Millisecond)
	s := newTestSession(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Respond(ctx, "never mind")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRespondMultiTurnKeepsTranscript(t *testing.T) {
	sim := models.NewSim(
		models.SimResponse("hello"),
		models.SimResponse("again"),
	)
	s := newTestSession(t, sim)

	if _, err := s.Respond(context.Background(), "hi"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := s.Respond(context.Background(), "hi again"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if s.Transcript().Len() != 4 {
		t.Fatalf("expected 4 entries across two turns, got %d", s.Transcript().Len())
	}

	s.ClearTranscript()
	if s.Transcript().Len() != 0 {
		t.Fatalf("transcript should be empty after clear")
	}
}

func TestRespondWithContextRendersPrompt(t *testing.T) {
	sim := models.NewSim(models.SimResponse("ok"))
	s := newTestSession(t, sim, WithSystemPrompt("Answer briefly."))

	_, err := s.RespondWithContext(context.Background(), "what is up?",
		transcript.ContextItem{Title: "note", Body: "the user likes short answers"})
	if err != nil {
		t.Fatalf("RespondWithContext returned error: %v", err)
	}

	p, ok := s.Transcript().At(0).(*transcript.Prompt)
	if !ok {
		t.Fatalf("expected a prompt first, got %T", s.Transcript().At(0))
	}
	if p.Input != "what is up?" {
		t.Fatalf("unexpected input: %q", p.Input)
	}
	if p.Context == nil || len(p.Context.Items) != 1 {
		t.Fatalf("context items not attached: %+v", p.Context)
	}
	if p.Rendered == "" {
		t.Fatalf("prompt was not rendered")
	}
}

func TestConfigErrorFailsFast(t *testing.T) {
	sim := models.NewSim(models.SimResponse("never"))
	s, err := New(sim) // no model name
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = s.Respond(context.Background(), "hi")
	var cfg *models.ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if sim.Calls() != 0 {
		t.Fatalf("validation must reject before a step is issued, got %d calls", sim.Calls())
	}
}
