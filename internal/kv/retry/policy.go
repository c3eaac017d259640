// Package retry executes operations with bounded retries, exponential
// backoff with jitter, and deadline enforcement.
package retry

import (
	"math/rand/v2"
	"time"
)

// Policy defines retry behavior. Immutable, shared read-only by all
// operations.
type Policy struct {
	// MaxAttempts bounds total attempts, the first one included.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff regardless of attempt count.
	MaxDelay time.Duration

	// Jitter randomizes each delay by ±Jitter (0.2 means ±20%).
	Jitter float64

	// Deadline is the wall-clock budget measured from the first
	// attempt. Zero means no overall deadline.
	Deadline time.Duration
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
	Jitter:      0.2,
	Deadline:    2 * time.Minute,
}

// Delay returns the pre-jitter backoff after the given attempt
// (1-indexed): min(base * 2^(attempt-1), max). Monotonically
// non-decreasing in attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	// Shift in steps so large attempt counts saturate instead of
	// overflowing.
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d < 0 {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Jittered perturbs d by ±Jitter.
func (p Policy) Jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	jittered := float64(d) + (rand.Float64()*2-1)*spread
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}
