package tools

import (
	"context"
	"math"
)

// CalculatorArgs is the typed argument shape of the calculator tool.
type CalculatorArgs struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Op string  `json:"op"`
}

// CalculatorOutput carries the computed result.
type CalculatorOutput struct {
	Result float64 `json:"result"`
}

// NewCalculator returns a tool evaluating one binary arithmetic operation.
// Division by zero and unknown operators are recoverable problems: the model
// sees them as structured output and can correct itself.
func NewCalculator[R any]() *Func[CalculatorArgs, CalculatorOutput, R] {
	return New[CalculatorArgs, CalculatorOutput, R](
		"calculator",
		"Evaluates a single arithmetic operation on two numbers.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a":  map[string]any{"type": "number", "description": "Left operand."},
				"b":  map[string]any{"type": "number", "description": "Right operand."},
				"op": map[string]any{"type": "string", "description": "One of +, -, *, /.", "enum": []any{"+", "-", "*", "/"}},
			},
			"required": []any{"a", "b", "op"},
		},
		func(_ context.Context, args CalculatorArgs) (CalculatorOutput, error) {
			var result float64
			switch args.Op {
			case "+":
				result = args.A + args.B
			case "-":
				result = args.A - args.B
			case "*":
				result = args.A * args.B
			case "/":
				if math.Abs(args.B) < 1e-12 {
					return CalculatorOutput{}, Problemf("division_by_zero", "cannot divide %v by zero", args.A)
				}
				result = args.A / args.B
			default:
				return CalculatorOutput{}, Problemf("unsupported_operator", "unsupported operator %q", args.Op)
			}
			return CalculatorOutput{Result: result}, nil
		},
	)
}
