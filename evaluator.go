package qpe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrNoCounts          = errors.New("backend returned no counts")
	ErrDegenerateOutcome = errors.New("most frequent outcome is zero")
)

// Evaluator is the black-box f(x) the solver searches a fixed point of.
type Evaluator interface {
	Evaluate(ctx context.Context, n int, estimate float64) (float64, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, n int, estimate float64) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, n int, estimate float64) (float64, error) {
	return f(ctx, n, estimate)
}

/*
PhaseEvaluator runs PhaseEstimation(n, estimate) on a backend and turns the
most frequent outcome into a value for π. The bit-string is read reversed,
so clbit 0 is the most significant bit of v, and the result is 2^(n-1)/v.
*/
type PhaseEvaluator struct {
	backend Backend
	shots   int
}

func NewPhaseEvaluator(backend Backend, shots int) *PhaseEvaluator {
	return &PhaseEvaluator{
		backend: backend,
		shots:   shots,
	}
}

func (pe *PhaseEvaluator) Evaluate(ctx context.Context, n int, estimate float64) (float64, error) {
	counts, err := pe.backend.Run(ctx, PhaseEstimation(n, estimate), pe.shots)
	if err != nil {
		return 0, fmt.Errorf("backend %s: %w", pe.backend.Name(), err)
	}

	return MeasuredValue(n, counts)
}

// MeasuredValue reduces a counts histogram to 2^(n-1)/v.
func MeasuredValue(n int, counts Counts) (float64, error) {
	outcome, _ := counts.MostFrequent()
	if outcome == "" {
		return 0, ErrNoCounts
	}

	v, err := strconv.ParseUint(reverse(outcome), 2, 64)
	if err != nil {
		return 0, fmt.Errorf("outcome %q: %w", outcome, err)
	}

	if v == 0 {
		return 0, fmt.Errorf("%w: %s", ErrDegenerateOutcome, outcome)
	}

	return math.Ldexp(1, n-1) / float64(v), nil
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
