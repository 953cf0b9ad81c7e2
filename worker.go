package qpe

import (
	"fmt"
	"time"

	"github.com/theapemachine/errnie"
)

// Worker processes jobs
type Worker struct {
	id   int
	pool *Q
	jobs chan Job
}

/*
run offers the worker's inbox to the pool, takes one job, stores its result
and repeats until the pool's context ends.
*/
func (w *Worker) run() {
	for {
		select {
		case <-w.pool.ctx.Done():
			return
		case w.pool.workers <- w.jobs:
		}

		select {
		case <-w.pool.ctx.Done():
			return
		case job := <-w.jobs:
			result, err := w.processJob(job)
			w.pool.space.Store(job.ID, result, err, job.TTL)
		}
	}
}

func (w *Worker) processJob(job Job) (any, error) {
	if err := w.checkCircuitBreaker(job.CircuitID); err != nil {
		w.pool.metrics.recordJobExecution(job.StartTime, false)
		return nil, err
	}

	result, err := w.executeWithRetries(job)
	w.pool.metrics.recordJobExecution(job.StartTime, err == nil)

	if err != nil {
		return nil, err
	}

	w.recordSuccess(job.CircuitID)
	return result, nil
}

func (w *Worker) executeWithRetries(job Job) (any, error) {
	if job.RetryPolicy == nil || job.RetryPolicy.MaxAttempts < 1 {
		job.RetryPolicy = &RetryPolicy{MaxAttempts: 1}
	}

	for job.Attempt = 0; job.Attempt < job.RetryPolicy.MaxAttempts; job.Attempt++ {
		if job.Attempt > 0 {
			w.pool.metrics.recordRetry()
			var delay time.Duration
			if job.RetryPolicy.Strategy != nil {
				delay = job.RetryPolicy.Strategy.NextDelay(job.Attempt)
			}
			errnie.Info("job %s retrying attempt %d after %v", job.ID, job.Attempt+1, delay)

			select {
			case <-w.pool.ctx.Done():
				return nil, fmt.Errorf("job %s: %w", job.ID, w.pool.ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := job.Fn()
		if err == nil {
			return result, nil
		}

		job.LastError = err
		errnie.Info("job %s attempt %d failed with error: %v", job.ID, job.Attempt+1, err)
		w.recordFailure(job.CircuitID)

		if job.RetryPolicy.Filter != nil && !job.RetryPolicy.Filter(err) {
			break
		}
	}
	return nil, fmt.Errorf("all retries failed for job %s: %w", job.ID, job.LastError)
}

func (w *Worker) checkCircuitBreaker(circuitID string) error {
	if breaker := w.pool.breaker(circuitID); breaker != nil {
		if !breaker.Allow() {
			return fmt.Errorf("%w: %s", ErrBreakerOpen, circuitID)
		}
	}
	return nil
}

func (w *Worker) recordSuccess(circuitID string) {
	if breaker := w.pool.breaker(circuitID); breaker != nil {
		breaker.RecordSuccess()
	}
}

func (w *Worker) recordFailure(circuitID string) {
	if breaker := w.pool.breaker(circuitID); breaker != nil {
		breaker.RecordFailure()
	}
}
