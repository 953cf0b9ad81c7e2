package qpe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/theapemachine/errnie"
)

/*
Q is a fixed-size worker pool. Scheduled jobs queue on a channel, a manager
goroutine hands each one to the next idle worker, and results land in the
QuantumSpace where Schedule's caller awaits them.
*/
type Q struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	workers    chan chan Job
	jobs       chan Job
	space      *QuantumSpace
	metrics    *Metrics
	breakers   map[string]*CircuitBreaker
	breakersMu sync.RWMutex
	config     *PoolConfig
	closeOnce  sync.Once
}

// PoolConfig holds the pool's own settings.
type PoolConfig struct {
	SchedulingTimeout time.Duration
	CleanupInterval   time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
	QueueSize         int // defaults to ten slots per worker
}

func NewPoolConfig() *PoolConfig {
	return &PoolConfig{
		SchedulingTimeout: 10 * time.Second,
		CleanupInterval:   time.Minute,
		RetryAttempts:     3,
		RetryBackoff:      time.Second,
	}
}

func (c *PoolConfig) withDefaults() *PoolConfig {
	defaults := NewPoolConfig()
	if c == nil {
		return defaults
	}

	out := *c
	if out.SchedulingTimeout <= 0 {
		out.SchedulingTimeout = defaults.SchedulingTimeout
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = defaults.CleanupInterval
	}
	if out.RetryAttempts < 1 {
		out.RetryAttempts = 1
	}
	return &out
}

// NewQ starts a pool with the given number of workers.
func NewQ(ctx context.Context, workers int, config *PoolConfig) *Q {
	config = config.withDefaults()

	if workers < 1 {
		workers = 1
	}

	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = workers * 10
	}

	ctx, cancel := context.WithCancel(ctx)
	q := &Q{
		ctx:      ctx,
		cancel:   cancel,
		breakers: make(map[string]*CircuitBreaker),
		jobs:     make(chan Job, queueSize),
		workers:  make(chan chan Job, workers),
		space:    NewQuantumSpace(config.CleanupInterval),
		metrics:  NewMetrics(),
		config:   config,
	}

	for i := 0; i < workers; i++ {
		q.startWorker(i)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.manage()
	}()

	return q
}

// Pool management
func (q *Q) manage() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			select {
			case <-q.ctx.Done():
				q.space.Store(job.ID, nil, fmt.Errorf("job %s: %w", job.ID, q.ctx.Err()), job.TTL)
				return
			case workerChan := <-q.workers:
				select {
				case workerChan <- job:
				case <-q.ctx.Done():
					q.space.Store(job.ID, nil, fmt.Errorf("job %s: %w", job.ID, q.ctx.Err()), job.TTL)
					return
				}
			}

			q.metrics.mu.Lock()
			q.metrics.JobQueueSize = len(q.jobs)
			q.metrics.mu.Unlock()
		}
	}
}

/*
Schedule queues fn under id and returns a channel that yields its result.
Jobs retry by the pool's policy unless an option overrides it. When the
queue stays full past the scheduling timeout the channel yields an error.
*/
func (q *Q) Schedule(id string, fn func() (any, error), opts ...JobOption) chan QuantumValue {
	job := Job{
		ID: id,
		Fn: fn,
		RetryPolicy: &RetryPolicy{
			MaxAttempts: q.config.RetryAttempts,
			Strategy:    &ExponentialBackoff{Initial: q.config.RetryBackoff},
			Filter:      Retryable,
		},
		StartTime: time.Now(),
	}

	for _, opt := range opts {
		opt(&job)
	}

	if err := q.ctx.Err(); err != nil {
		q.metrics.recordSchedulingFailure()
		return failed(fmt.Errorf("job %s not scheduled: %w", id, err))
	}

	if job.CircuitID != "" {
		breaker := q.circuitBreaker(job)
		if breaker != nil && !breaker.Allow() {
			return failed(fmt.Errorf("%w: %s", ErrBreakerOpen, job.CircuitID))
		}
	}

	timer := time.NewTimer(q.config.SchedulingTimeout)
	defer timer.Stop()

	select {
	case q.jobs <- job:
		return q.space.Await(id)
	case <-q.ctx.Done():
		q.metrics.recordSchedulingFailure()
		return failed(fmt.Errorf("job %s not scheduled: %w", id, q.ctx.Err()))
	case <-timer.C:
		q.metrics.recordSchedulingFailure()
		return failed(fmt.Errorf("job %s scheduling timeout after %v", id, q.config.SchedulingTimeout))
	}
}

func failed(err error) chan QuantumValue {
	ch := make(chan QuantumValue, 1)
	ch <- QuantumValue{Error: err, CreatedAt: time.Now()}
	close(ch)
	return ch
}

func (q *Q) CreateBroadcastGroup(id string, ttl time.Duration) *BroadcastGroup {
	return q.space.CreateBroadcastGroup(id, ttl)
}

func (q *Q) Subscribe(groupID string, buffer int) chan QuantumValue {
	return q.space.Subscribe(groupID, buffer)
}

// Metrics exposes the pool's counters.
func (q *Q) Metrics() *Metrics {
	return q.metrics
}

func (q *Q) startWorker(id int) {
	worker := &Worker{
		id:   id,
		pool: q,
		jobs: make(chan Job),
	}

	q.metrics.mu.Lock()
	q.metrics.WorkerCount++
	q.metrics.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		worker.run()
	}()
}

func (q *Q) circuitBreaker(job Job) *CircuitBreaker {
	if job.CircuitID == "" {
		return nil
	}

	q.breakersMu.Lock()
	defer q.breakersMu.Unlock()

	breaker, exists := q.breakers[job.CircuitID]
	if !exists && job.CircuitConfig != nil {
		breaker = NewCircuitBreaker(
			job.CircuitConfig.MaxFailures,
			job.CircuitConfig.ResetTimeout,
			job.CircuitConfig.HalfOpenMax,
		)
		q.breakers[job.CircuitID] = breaker
	}

	return breaker
}

func (q *Q) breaker(circuitID string) *CircuitBreaker {
	if circuitID == "" {
		return nil
	}

	q.breakersMu.RLock()
	defer q.breakersMu.RUnlock()
	return q.breakers[circuitID]
}

// drain fails jobs still queued when the manager stopped.
func (q *Q) drain() {
	for {
		select {
		case job := <-q.jobs:
			q.space.Store(job.ID, nil, fmt.Errorf("job %s: %w", job.ID, q.ctx.Err()), job.TTL)
		default:
			return
		}
	}
}

// Close cancels in-flight work and waits for every pool goroutine to exit.
func (q *Q) Close() {
	if q == nil {
		return
	}

	q.closeOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
		q.drain()
		q.space.Close()
		errnie.Info("quantum pool closed")
	})
}
