// Package calculator provides an arithmetic tool backed by expr-lang.
// Expressions are compiled without an environment and with only the numeric
// builtins enabled, so the model cannot reach variables or functions beyond
// plain math.
package calculator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/nevindra/lumen"
)

const (
	name        = "calculator"
	description = "Evaluates a math expression and returns the result. Input must be a complete expression of numbers and operators, for example: (12 + 5) * 3. Supports + - * / % ** and abs, ceil, floor, round, min, max."

	maxNodes = 256
)

var numericBuiltins = []string{"abs", "ceil", "floor", "round", "min", "max"}

// Tool evaluates arithmetic expressions.
type Tool struct{}

var _ lumen.Tool = (*Tool)(nil)

// New creates a calculator tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string        { return name }
func (t *Tool) Description() string { return description }

// Execute evaluates input. An expression that fails to compile, run, or yield
// a finite number is reported in the returned text, never as an error, so the
// agent sees the failure as its observation.
func (t *Tool) Execute(_ context.Context, input string) (string, error) {
	src := clean(input)
	v, err := Eval(src)
	if err != nil {
		return fmt.Sprintf("calculation failed: %q is not a valid math expression (%v). Use only numbers and operators (+, -, *, /, %%, (), .).", src, err), nil
	}
	return "result: " + format(v), nil
}

// Eval compiles and runs a single arithmetic expression.
func Eval(src string) (float64, error) {
	if src == "" {
		return 0, fmt.Errorf("empty expression")
	}
	opts := []expr.Option{expr.DisableAllBuiltins(), expr.MaxNodes(maxNodes)}
	for _, b := range numericBuiltins {
		opts = append(opts, expr.EnableBuiltin(b))
	}
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, err
	}

	var f float64
	switch v := out.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, fmt.Errorf("result is %T, not a number", out)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("result is not finite")
	}
	return f, nil
}

// clean strips the wrappers models tend to put around an expression.
func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'")
	return strings.TrimSpace(s)
}

func format(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
