package retry

import (
	"testing"
	"time"
)

func TestPolicy_DelayMonotonicAndCapped(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second}

	var prev time.Duration
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("delay at attempt %d exceeds cap: %v", attempt, d)
		}
		prev = d
	}
}

func TestPolicy_DelayDoubling(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Jittered(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second, Jitter: 0.2}

	d := 1 * time.Second
	for i := 0; i < 100; i++ {
		j := p.Jittered(d)
		if j < 800*time.Millisecond || j > 1200*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of %v", j, d)
		}
	}
}

func TestPolicy_JitterZeroIsIdentity(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second}
	if got := p.Jittered(3 * time.Second); got != 3*time.Second {
		t.Errorf("Jittered without jitter factor = %v, want 3s", got)
	}
}
