package qpe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
	"golang.org/x/sync/errgroup"
)

// ProgressGroup is the broadcast group solver steps are published on.
const ProgressGroup = "progress"

/*
Report collects the results of one sweep in ascending qubit order, along with
what is needed to reproduce it.
*/
type Report struct {
	RunID      string                 `json:"run_id" yaml:"run_id"`
	Backend    string                 `json:"backend" yaml:"backend"`
	Shots      int                    `json:"shots" yaml:"shots"`
	Seed       uint64                 `json:"seed" yaml:"seed"`
	StartedAt  time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time              `json:"finished_at" yaml:"finished_at"`
	Results    []*Result              `json:"results" yaml:"results"`
	Metrics    map[string]interface{} `json:"metrics" yaml:"metrics"`
}

// Converged counts the results that found a fixed point.
func (r *Report) Converged() int {
	total := 0
	for _, result := range r.Results {
		if result.Converged() {
			total++
		}
	}
	return total
}

// EvaluatorFactory builds the evaluator a single qubit count is solved with.
type EvaluatorFactory func(n int) (Evaluator, error)

// SolveError keeps the partial result of a failed solve next to its cause.
type SolveError struct {
	Result *Result
	Err    error
}

func (e *SolveError) Error() string {
	return e.Err.Error()
}

func (e *SolveError) Unwrap() error {
	return e.Err
}

/*
Runner solves every qubit count of a sweep as its own pool job. Jobs share
nothing but the backend circuit breaker, so each n is free to run on any
worker in any order.
*/
type Runner struct {
	config     *Config
	seed       uint64
	breaker    *CircuitBreaker
	evaluators EvaluatorFactory
	progress   func(Step)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEvaluatorFactory replaces the simulated phase-estimation evaluator.
func WithEvaluatorFactory(factory EvaluatorFactory) RunnerOption {
	return func(r *Runner) {
		r.evaluators = factory
	}
}

// WithProgress receives solver steps as they happen. Slow consumers miss steps.
func WithProgress(fn func(Step)) RunnerOption {
	return func(r *Runner) {
		r.progress = fn
	}
}

func NewRunner(config *Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:  config,
		seed:    config.Seed,
		breaker: NewCircuitBreaker(config.BreakerFailures, config.BreakerReset, 1),
	}

	if r.seed == 0 {
		r.seed = rand.Uint64()
	}

	r.evaluators = r.phaseEvaluator

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Seed is the base seed the per-qubit backends derive from.
func (r *Runner) Seed() uint64 {
	return r.seed
}

// phaseEvaluator gives every n its own backend and random stream.
func (r *Runner) phaseEvaluator(n int) (Evaluator, error) {
	backend, err := NewBackend(r.config.Backend, r.seed+uint64(n))
	if err != nil {
		return nil, err
	}
	return NewPhaseEvaluator(Guard(backend, r.breaker), r.config.Shots), nil
}

/*
Run executes the sweep. A failing qubit count is recorded in its Result and
the others carry on; only an invalid config or a cancelled context makes Run
itself return an error.
*/
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	qubits := r.config.Qubits()
	report := &Report{
		RunID:     uuid.New().String(),
		Backend:   r.config.Backend,
		Shots:     r.config.Shots,
		Seed:      r.seed,
		StartedAt: time.Now(),
		Results:   make([]*Result, len(qubits)),
	}

	errnie.Info(
		"sweep %s - qubits %d..%d, backend %s, shots %d, workers %d",
		report.RunID, r.config.MinQubits, r.config.MaxQubits, r.config.Backend, r.config.Shots, r.config.Workers,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewQ(ctx, r.config.Workers, &PoolConfig{
		SchedulingTimeout: r.config.SchedulingTimeout,
		RetryAttempts:     r.config.Retries,
		RetryBackoff:      r.config.RetryBackoff,
		QueueSize:         len(qubits),
	})

	progress := pool.CreateBroadcastGroup(ProgressGroup, 0)
	var relay sync.WaitGroup

	if r.progress != nil {
		steps := pool.Subscribe(ProgressGroup, 64)
		relay.Add(1)
		go func() {
			defer relay.Done()
			for qv := range steps {
				if step, ok := qv.Value.(Step); ok {
					r.progress(step)
				}
			}
		}()
	}

	publish := WithObserver(func(step Step) {
		progress.Send(QuantumValue{Value: step, CreatedAt: time.Now()})
	})

	pending := make([]chan QuantumValue, len(qubits))

	for i, n := range qubits {
		eval, err := r.evaluators(n)
		if err != nil {
			cancel()
			pool.Close()
			relay.Wait()
			return nil, fmt.Errorf("evaluator for n=%d: %w", n, err)
		}

		solver := NewSolver(r.config.SolverConfig, publish)

		pending[i] = pool.Schedule(fmt.Sprintf("%s/n=%d", report.RunID, n), func() (any, error) {
			result, err := solver.Solve(ctx, eval, n)
			if err != nil {
				return nil, &SolveError{Result: result, Err: err}
			}
			return result, nil
		}, WithRetryFilter(r.retryable))
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, n := range qubits {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case qv := <-pending[i]:
				report.Results[i] = collect(n, qv)
				return nil
			}
		})
	}

	err := g.Wait()

	report.Metrics = pool.Metrics().ExportMetrics()
	pool.Close()
	relay.Wait()

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", report.RunID, err)
	}

	report.FinishedAt = time.Now()
	errnie.Info("sweep %s - %d of %d converged", report.RunID, report.Converged(), len(qubits))

	return report, nil
}

/*
retryable allows another attempt only where one could turn out differently:
shot noise on a sampling backend, or a breaker that may have half-opened.
Everything else repeats exactly.
*/
func (r *Runner) retryable(err error) bool {
	if !Retryable(err) {
		return false
	}
	if errors.Is(err, ErrBreakerOpen) {
		return true
	}
	return Sampling(r.config.Backend) &&
		(errors.Is(err, ErrDegenerateOutcome) || errors.Is(err, ErrZeroDenominator))
}

// collect turns a pool value into the Result for n.
func collect(n int, qv QuantumValue) *Result {
	if qv.Error == nil {
		if result, ok := qv.Value.(*Result); ok {
			return result
		}
		return &Result{Qubits: n, Status: StatusFailed, Error: fmt.Sprintf("unexpected job value %T", qv.Value)}
	}

	result := &Result{Qubits: n}

	var solveErr *SolveError
	if errors.As(qv.Error, &solveErr) && solveErr.Result != nil {
		*result = *solveErr.Result
	}

	result.Status = StatusFailed
	result.Error = qv.Error.Error()
	return result
}
