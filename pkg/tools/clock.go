package tools

import (
	"context"
	"time"
)

// ClockArgs selects the timezone to report; empty means UTC.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty"`
}

// ClockOutput is the current time in RFC3339 form.
type ClockOutput struct {
	Now string `json:"now"`
}

// NewClock returns a tool reporting the current time. An unknown timezone is
// recoverable: the model is told and can retry with a valid one.
func NewClock[R any]() *Func[ClockArgs, ClockOutput, R] {
	return New[ClockArgs, ClockOutput, R](
		"clock",
		"Returns the current time, optionally in a named IANA timezone.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{"type": "string", "description": "IANA timezone name, e.g. Europe/Warsaw. Defaults to UTC."},
			},
		},
		func(_ context.Context, args ClockArgs) (ClockOutput, error) {
			loc := time.UTC
			if args.Timezone != "" {
				parsed, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return ClockOutput{}, Problemf("unknown_timezone", "unknown timezone %q", args.Timezone)
				}
				loc = parsed
			}
			return ClockOutput{Now: time.Now().In(loc).Format(time.RFC3339)}, nil
		},
	)
}
