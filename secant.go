package qpe

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/theapemachine/errnie"
)

var (
	ErrZeroDenominator = errors.New("secant denominator is zero")
	ErrNonFinite       = errors.New("secant step is not finite")
	ErrInvalidQubits   = errors.New("qubit count must be at least 1")
)

// Status tells a converged solve apart from one that ran out of iterations.
type Status int

const (
	StatusConverged Status = iota
	StatusNotConverged
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusNotConverged:
		return "not_converged"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Step is one pass of the solver loop.
type Step struct {
	Qubits    int     `json:"qubits" yaml:"qubits"`
	Iteration int     `json:"iteration" yaml:"iteration"`
	Estimate  float64 `json:"estimate" yaml:"estimate"`
	Measured  float64 `json:"measured" yaml:"measured"`
}

/*
Result is the outcome of one solve. For StatusConverged, Measured is the
fixed-point value and Iterations the loop count at which it was detected.
For StatusNotConverged, Estimate is the last estimate and Iterations the
cap that was used up. StatusFailed carries the error text in Error.
*/
type Result struct {
	Qubits     int     `json:"qubits" yaml:"qubits"`
	Status     Status  `json:"status" yaml:"status"`
	Estimate   float64 `json:"estimate" yaml:"estimate"`
	Measured   float64 `json:"measured" yaml:"measured"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	Error      string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Converged reports whether the solve found a fixed point.
func (r *Result) Converged() bool {
	return r != nil && r.Status == StatusConverged
}

/*
SecantStep applies one secant update to g(x) = f(x) - x:

	x_new = x - (x - xPrev) / (g(x) - g(xPrev)) * g(x)

A root already hit (g(x) == 0) returns x unchanged. A zero denominator with
g(x) != 0 is an error rather than an infinity or NaN.
*/
func SecantStep(x, xPrev, fx, fxPrev float64) (float64, error) {
	gx := fx - x
	if gx == 0 {
		return x, nil
	}

	denominator := fx - x - fxPrev + xPrev
	if denominator == 0 {
		return 0, fmt.Errorf("%w: x=%v x_prev=%v f(x)=%v f(x_prev)=%v", ErrZeroDenominator, x, xPrev, fx, fxPrev)
	}

	// Explicit conversion: no FMA, identical iterates on every GOARCH.
	next := x - float64((x-xPrev)/denominator*gx)
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, next)
	}

	return next, nil
}

/*
Solver searches for x with f(x) = x by the secant method, starting from the
two seed estimates in its config.
*/
type Solver struct {
	config   SolverConfig
	observer func(Step)
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithObserver registers a callback that receives every Step.
func WithObserver(observer func(Step)) SolverOption {
	return func(s *Solver) {
		s.observer = observer
	}
}

func NewSolver(config SolverConfig, opts ...SolverOption) *Solver {
	s := &Solver{config: config}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

/*
Solve runs the secant loop for n qubits. Both seeds are evaluated first;
then each pass checks convergence before stepping, so a solve that
converges on pass k reports k iterations. Exhausting the cap is not an
error: the Result says StatusNotConverged. Evaluator failures, a zero
denominator and cancellation return StatusFailed together with the error.
*/
func (s *Solver) Solve(ctx context.Context, eval Evaluator, n int) (*Result, error) {
	result := &Result{Qubits: n, Status: StatusFailed}

	if n < 1 {
		return s.fail(result, fmt.Errorf("%w: got %d", ErrInvalidQubits, n))
	}

	estimate, estimateLast := s.config.InitialEstimate, s.config.SecondEstimate
	result.Estimate = estimate

	measured, err := eval.Evaluate(ctx, n, estimate)
	if err != nil {
		return s.fail(result, err)
	}

	measuredLast, err := eval.Evaluate(ctx, n, estimateLast)
	if err != nil {
		return s.fail(result, err)
	}

	result.Measured = measured

	for k := 0; k < s.config.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			result.Iterations = k
			return s.fail(result, err)
		}

		s.observe(Step{Qubits: n, Iteration: k, Estimate: estimate, Measured: measured})

		if s.within(measured, measuredLast) && s.within(estimate, estimateLast) {
			result.Status = StatusConverged
			result.Iterations = k
			errnie.Info("using %d qubits, after %d iterations, the estimate of pi is %v", n, k, estimate)
			return result, nil
		}

		next, err := SecantStep(estimate, estimateLast, measured, measuredLast)
		if err != nil {
			result.Iterations = k
			return s.fail(result, err)
		}

		estimateLast, measuredLast = estimate, measured
		estimate = next
		result.Estimate = estimate

		if measured, err = eval.Evaluate(ctx, n, estimate); err != nil {
			result.Iterations = k + 1
			return s.fail(result, err)
		}
		result.Measured = measured
	}

	result.Status = StatusNotConverged
	result.Iterations = s.config.MaxIterations
	errnie.Info("using %d qubits: failed to converge after %d iterations", n, s.config.MaxIterations)

	return result, nil
}

// within compares with the configured absolute tolerance; zero means exact.
func (s *Solver) within(a, b float64) bool {
	return math.Abs(a-b) <= s.config.Tolerance
}

func (s *Solver) observe(step Step) {
	if s.observer != nil {
		s.observer(step)
	}
}

func (s *Solver) fail(result *Result, err error) (*Result, error) {
	result.Status = StatusFailed
	result.Error = err.Error()
	return result, fmt.Errorf("solve n=%d: %w", result.Qubits, err)
}
