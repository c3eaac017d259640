package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vietddude/kvguard/internal/kv/event"
)

// fakeClock advances instantly and records every sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// onSleep, if set, runs at the start of each sleep. Used to cancel
	// a context mid-backoff.
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.onSleep()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recordPub captures published events synchronously.
type recordPub struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordPub) Publish(ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordPub) all() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

var errReset = fmt.Errorf("write: %w", syscall.ECONNRESET)

func newTestExecutor(p Policy, clock Clock, pub event.Publisher) *Executor {
	return NewExecutor(p, WithClock(clock), WithPublisher(pub))
}

func TestDo_RetryableThenSuccess(t *testing.T) {
	clock := newFakeClock()
	pub := &recordPub{}
	exec := newTestExecutor(Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}, clock, pub)

	attempts := 0
	err := exec.Do(context.Background(), "get", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errReset
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}

	sleeps := clock.recorded()
	if len(sleeps) != 2 || sleeps[0] != 1*time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("expected backoffs [1s 2s], got %v", sleeps)
	}
	if len(pub.all()) != 0 {
		t.Errorf("expected no events on success, got %v", pub.all())
	}
}

func TestDo_FatalAbortsImmediately(t *testing.T) {
	clock := newFakeClock()
	pub := &recordPub{}
	exec := newTestExecutor(Policy{MaxAttempts: 5, BaseDelay: time.Second}, clock, pub)

	fatal := errors.New("ERR wrong number of arguments")
	attempts := 0
	err := exec.Do(context.Background(), "set", func(ctx context.Context) error {
		attempts++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error surfaced, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
	if len(clock.recorded()) != 0 {
		t.Errorf("expected no backoff waits, got %v", clock.recorded())
	}
	if len(pub.all()) != 0 {
		t.Errorf("expected no RetryExhausted event for fatal failure, got %v", pub.all())
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	clock := newFakeClock()
	pub := &recordPub{}
	exec := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Second}, clock, pub)

	attempts := 0
	err := exec.Do(context.Background(), "get", func(ctx context.Context) error {
		attempts++
		return errReset
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Errorf("expected last error preserved in chain, got %v", err)
	}

	events := pub.all()
	if len(events) != 1 || events[0].Type != event.TypeRetryExhausted {
		t.Fatalf("expected one RetryExhausted event, got %v", events)
	}
	if events[0].Attempts != 3 || events[0].Op != "get" {
		t.Errorf("event carries wrong context: %+v", events[0])
	}
}

func TestDo_DeadlineStopsRetries(t *testing.T) {
	clock := newFakeClock()
	exec := newTestExecutor(Policy{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		Deadline:    2500 * time.Millisecond,
	}, clock, nil)

	attempts := 0
	err := exec.Do(context.Background(), "get", func(ctx context.Context) error {
		attempts++
		return errReset
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	// Attempt 1 at t=0, sleep 1s, attempt 2 at t=1s; the next 2s wait
	// would land past the 2.5s deadline, so no third attempt runs.
	if attempts != 2 {
		t.Errorf("expected 2 attempts under deadline, got %d", attempts)
	}
}

func TestDo_TimeoutCountsTowardBudget(t *testing.T) {
	clock := newFakeClock()
	exec := newTestExecutor(Policy{MaxAttempts: 2, BaseDelay: time.Second}, clock, nil)

	attempts := 0
	err := exec.Do(context.Background(), "get", func(ctx context.Context) error {
		attempts++
		return context.DeadlineExceeded
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected timeouts to consume the retry budget, got %d attempts", attempts)
	}
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = cancel

	exec := newTestExecutor(Policy{MaxAttempts: 5, BaseDelay: time.Second}, clock, nil)

	attempts := 0
	err := exec.Do(ctx, "get", func(ctx context.Context) error {
		attempts++
		return errReset
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected no attempts after cancellation, got %d", attempts)
	}
}

func TestDo_ConnFailureHook(t *testing.T) {
	clock := newFakeClock()
	var hookCalls int
	exec := NewExecutor(Policy{MaxAttempts: 2, BaseDelay: time.Second},
		WithClock(clock),
		WithConnFailureHook(func(err error) { hookCalls++ }),
	)

	_ = exec.Do(context.Background(), "get", func(ctx context.Context) error {
		return errReset
	})
	if hookCalls != 2 {
		t.Errorf("expected connection-failure hook once per transport failure, got %d", hookCalls)
	}

	hookCalls = 0
	_ = exec.Do(context.Background(), "get", func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	if hookCalls != 0 {
		t.Errorf("timeouts must not condemn the connection, hook ran %d times", hookCalls)
	}
}
