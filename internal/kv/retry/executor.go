package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/kvguard/internal/kv/event"
	"github.com/vietddude/kvguard/internal/kv/faults"
)

// Op is one attemptable unit of work.
type Op func(ctx context.Context) error

// ExhaustedError wraps the last underlying error after the retry budget
// ran out.
type ExhaustedError struct {
	Op       string
	Attempts int
	LastKind faults.Kind
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts (last: %s): %v",
		e.Op, e.Attempts, e.LastKind, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Executor runs operations under a shared Policy. Safe for concurrent
// use; backoff sleeps suspend only the calling operation.
type Executor struct {
	policy Policy
	clock  Clock
	pub    event.Publisher
	log    *slog.Logger

	// onConnFailure is invoked when an attempt fails in a way that
	// condemns the shared connection, so the lifecycle manager can
	// schedule a reconnect.
	onConnFailure func(error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock substitutes the clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithPublisher wires lifecycle event emission.
func WithPublisher(p event.Publisher) Option {
	return func(e *Executor) { e.pub = p }
}

// WithConnFailureHook registers the connection-failure callback.
func WithConnFailureHook(fn func(error)) Option {
	return func(e *Executor) { e.onConnFailure = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates an executor for the given policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy.withDefaults(),
		clock:  SystemClock(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs fn under the retry policy. Attempt 1 runs immediately.
// Retryable and Timeout failures back off and retry; Fatal failures
// abort on first occurrence. The overall deadline is measured from the
// first attempt and never reset; an in-flight attempt is not
// pre-empted, but nothing is scheduled after the deadline passes.
// Cancellation of ctx during a backoff wait returns ctx.Err promptly.
func (e *Executor) Do(ctx context.Context, op string, fn Op) error {
	start := e.clock.Now()
	var deadline time.Time
	if e.policy.Deadline > 0 {
		deadline = start.Add(e.policy.Deadline)
	}

	var lastErr error
	var lastKind faults.Kind

	for attempt := 1; ; attempt++ {
		attemptStart := e.clock.Now()
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.log.Debug("operation recovered",
					"op", op, "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		lastKind = faults.Classify(err)
		e.log.Debug("operation attempt failed",
			"op", op,
			"attempt", attempt,
			"kind", lastKind.String(),
			"elapsed", e.clock.Now().Sub(attemptStart),
			"error", err,
		)

		if faults.ConnectionFailing(err) && e.onConnFailure != nil {
			e.onConnFailure(err)
		}

		if lastKind == faults.Fatal {
			return err
		}
		if ctx.Err() != nil {
			// Cancelled mid-attempt: the result is discarded and no
			// further attempts are scheduled.
			return ctx.Err()
		}
		if attempt >= e.policy.MaxAttempts {
			return e.exhaust(op, attempt, lastKind, lastErr)
		}

		delay := e.policy.Jittered(e.policy.Delay(attempt))
		if !deadline.IsZero() && e.clock.Now().Add(delay).After(deadline) {
			return e.exhaust(op, attempt, lastKind, lastErr)
		}
		if err := e.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (e *Executor) exhaust(op string, attempts int, kind faults.Kind, lastErr error) error {
	if e.pub != nil {
		e.pub.Publish(event.RetryExhausted(op, attempts, lastErr))
	}
	e.log.Warn("retry budget exhausted",
		"op", op, "attempts", attempts, "error", lastErr)
	return &ExhaustedError{Op: op, Attempts: attempts, LastKind: kind, Err: lastErr}
}
