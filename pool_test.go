package qpe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

const testTimeout = 5 * time.Second

func await(ch chan QuantumValue) QuantumValue {
	select {
	case qv := <-ch:
		return qv
	case <-time.After(testTimeout):
		return QuantumValue{Error: errors.New("timed out waiting for job")}
	}
}

func TestQuantumPool(t *testing.T) {
	Convey("Given a new quantum pool", t, func() {
		q := NewQ(context.Background(), 2, &PoolConfig{
			SchedulingTimeout: time.Second,
			RetryAttempts:     1,
		})

		Reset(func() {
			q.Close()
		})

		Convey("When scheduling a simple job", func() {
			value := await(q.Schedule("test-job", func() (any, error) {
				return "success", nil
			}))

			So(value.Error, ShouldBeNil)
			So(value.Value, ShouldEqual, "success")
		})

		Convey("When scheduling a job with retries", func() {
			attempts := 0
			value := await(q.Schedule("retry-job", func() (any, error) {
				attempts++
				if attempts < 3 {
					return nil, errors.New("temporary error")
				}
				return "success after retry", nil
			}, WithRetry(3, &ExponentialBackoff{Initial: time.Millisecond})))

			So(value.Error, ShouldBeNil)
			So(value.Value, ShouldEqual, "success after retry")
			So(attempts, ShouldEqual, 3)
			So(q.Metrics().ExportMetrics()["retries"], ShouldEqual, int64(2))
		})

		Convey("When every attempt fails", func() {
			value := await(q.Schedule("doomed-job", func() (any, error) {
				return nil, errors.New("permanent error")
			}, WithRetry(2, &ExponentialBackoff{Initial: time.Millisecond})))

			So(value.Error, ShouldNotBeNil)
			So(value.Error.Error(), ShouldContainSubstring, "all retries failed for job doomed-job")
			So(value.Error.Error(), ShouldContainSubstring, "permanent error")
		})

		Convey("When a job is cancelled it should not be retried", func() {
			attempts := 0
			value := await(q.Schedule("cancelled-job", func() (any, error) {
				attempts++
				return nil, context.Canceled
			}, WithRetry(5, &ExponentialBackoff{Initial: time.Millisecond})))

			So(errors.Is(value.Error, context.Canceled), ShouldBeTrue)
			So(attempts, ShouldEqual, 1)
		})

		Convey("When a retry filter rejects the error", func() {
			attempts := 0
			value := await(q.Schedule("filtered-job", func() (any, error) {
				attempts++
				return nil, ErrInvalidCircuit
			},
				WithRetry(4, &ExponentialBackoff{Initial: time.Millisecond}),
				WithRetryFilter(func(err error) bool { return !errors.Is(err, ErrInvalidCircuit) }),
			))

			So(errors.Is(value.Error, ErrInvalidCircuit), ShouldBeTrue)
			So(attempts, ShouldEqual, 1)
		})

		Convey("When using a circuit breaker", func() {
			failures := 0
			value := await(q.Schedule("circuit-job", func() (any, error) {
				failures++
				return nil, errors.New("failure")
			},
				WithRetry(2, &ExponentialBackoff{Initial: time.Millisecond}),
				WithCircuitBreaker("test-circuit", 2, time.Minute),
			))

			So(value.Error, ShouldNotBeNil)
			So(failures, ShouldEqual, 2)
			So(q.breaker("test-circuit").State(), ShouldEqual, CircuitOpen)

			Convey("Further jobs on that circuit should be refused", func() {
				value := await(q.Schedule("refused-job", func() (any, error) {
					failures++
					return "unreachable", nil
				}, WithCircuitBreaker("test-circuit", 2, time.Minute)))

				So(errors.Is(value.Error, ErrBreakerOpen), ShouldBeTrue)
				So(failures, ShouldEqual, 2)
			})
		})

		Convey("When using broadcast groups", func() {
			group := q.CreateBroadcastGroup("test-group", time.Minute)
			sub1 := q.Subscribe("test-group", 1)
			sub2 := q.Subscribe("test-group", 1)

			group.Send(QuantumValue{Value: "broadcast test", CreatedAt: time.Now()})

			So(await(sub1).Value, ShouldEqual, "broadcast test")
			So(await(sub2).Value, ShouldEqual, "broadcast test")

			Convey("Closing the pool should end the subscriptions", func() {
				q.Close()

				_, open := <-sub1
				So(open, ShouldBeFalse)
			})
		})

		Convey("When many jobs are scheduled", func() {
			results := make([]chan QuantumValue, 20)
			for i := range results {
				results[i] = q.Schedule(fmt.Sprintf("load-test-%d", i), func() (any, error) {
					return i * i, nil
				})
			}

			Convey("Each should resolve to its own value", func() {
				for i, ch := range results {
					value := await(ch)
					So(value.Error, ShouldBeNil)
					So(value.Value, ShouldEqual, i*i)
				}

				metrics := q.Metrics().ExportMetrics()
				So(metrics["jobs"], ShouldEqual, int64(20))
				So(metrics["failed_jobs"], ShouldEqual, int64(0))
				So(metrics["success_rate"], ShouldEqual, 1.0)
				So(metrics["worker_count"], ShouldEqual, 2)
			})
		})
	})
}

func TestQuantumPoolClose(t *testing.T) {
	Convey("Given a pool that has been closed", t, func() {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		q := NewQ(context.Background(), 3, nil)
		So(await(q.Schedule("before", func() (any, error) { return 1, nil })).Value, ShouldEqual, 1)

		q.Close()
		q.Close()

		Convey("Scheduling should fail instead of hanging", func() {
			value := await(q.Schedule("after", func() (any, error) { return 2, nil }))
			So(errors.Is(value.Error, context.Canceled), ShouldBeTrue)
			So(q.Metrics().ExportMetrics()["scheduling_failures"], ShouldEqual, int64(1))
		})
	})
}

func TestQuantumPoolSchedulingTimeout(t *testing.T) {
	Convey("Given a pool whose only worker is busy and whose queue is full", t, func() {
		release := make(chan struct{})
		q := NewQ(context.Background(), 1, &PoolConfig{
			SchedulingTimeout: 20 * time.Millisecond,
			QueueSize:         1,
		})

		Reset(func() {
			close(release)
			q.Close()
		})

		block := func() (any, error) {
			<-release
			return nil, nil
		}

		q.Schedule("busy", block)
		q.Schedule("held-by-manager", block)
		time.Sleep(20 * time.Millisecond)
		q.Schedule("buffered", block)
		overflow := q.Schedule("overflow", block)

		Convey("A job that cannot be queued should time out", func() {
			value := await(overflow)
			So(value.Error, ShouldNotBeNil)
			So(value.Error.Error(), ShouldContainSubstring, "scheduling timeout")
		})
	})
}

func TestExponentialBackoff(t *testing.T) {
	Convey("Given an exponential backoff", t, func() {
		backoff := &ExponentialBackoff{Initial: 10 * time.Millisecond}

		Convey("Delays should double per attempt", func() {
			So(backoff.NextDelay(1), ShouldEqual, 10*time.Millisecond)
			So(backoff.NextDelay(2), ShouldEqual, 20*time.Millisecond)
			So(backoff.NextDelay(4), ShouldEqual, 80*time.Millisecond)
		})

		Convey("Cancellation should not be retryable", func() {
			So(Retryable(errors.New("boom")), ShouldBeTrue)
			So(Retryable(fmt.Errorf("wrapped: %w", context.Canceled)), ShouldBeFalse)
			So(Retryable(context.DeadlineExceeded), ShouldBeFalse)
		})
	})
}
