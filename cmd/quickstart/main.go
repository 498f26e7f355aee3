// Command quickstart runs a scripted conversation end to end: a tool-using
// turn against the simulation adapter, a resolver pass over the finished
// transcript, and a save/load round trip through the in-memory store.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	session "github.com/Protocol-Lattice/go-session"
	"github.com/Protocol-Lattice/go-session/pkg/models"
	"github.com/Protocol-Lattice/go-session/pkg/store"
	"github.com/Protocol-Lattice/go-session/pkg/tools"
)

type calcRun = tools.Run[tools.CalculatorArgs, tools.CalculatorOutput]

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	calc := tools.NewCalculator[calcRun]().WithResolver(
		func(run calcRun) (calcRun, error) { return run, nil })

	sim := models.NewSim(
		models.SimReasoning("the user wants arithmetic, use the calculator"),
		models.SimToolCalls("calculator", map[string]any{"a": 2, "b": 2, "op": "+"}),
		models.SimResponse("2 + 2 = 4"),
	)

	s, err := session.New(sim,
		session.WithModel("sim-quickstart"),
		session.WithTools(calc),
		session.WithSystemPrompt("You are a terse arithmetic assistant."),
		session.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}

	answer, err := s.Respond(ctx, "What is 2 + 2?")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("answer:", answer)

	resolver, err := session.NewResolver[calcRun](calc)
	if err != nil {
		log.Fatal(err)
	}
	runs, err := resolver.ResolveAll(s.Transcript())
	if err != nil {
		log.Fatal(err)
	}
	for _, run := range runs {
		fmt.Printf("resolved: %v %s %v -> %v\n", run.Args.A, run.Args.Op, run.Args.B, run.Output.Result)
	}

	st := store.NewInMemoryStore()
	if err := st.Save(ctx, "quickstart", s.Transcript()); err != nil {
		log.Fatal(err)
	}
	loaded, err := st.Load(ctx, "quickstart")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stored entries:", loaded.Len())
}
