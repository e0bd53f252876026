package inference

import (
	"testing"
	"time"
)

func TestBackoffLinearGrowthWithCap(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, Max: 30 * time.Second, MaxAttempts: 10}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 10 * time.Second},
		{10, 20 * time.Second},
		{15, 30 * time.Second}, // capped
		{16, 30 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Fatalf("delay(%d): want=%v got=%v", c.attempt, c.want, got)
		}
	}
}

func TestBackoffAttemptFloor(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 10 * time.Second}
	if got := p.Delay(0); got != time.Second {
		t.Fatalf("delay(0): want=%v got=%v", time.Second, got)
	}
	if got := p.Delay(-3); got != time.Second {
		t.Fatalf("delay(-3): want=%v got=%v", time.Second, got)
	}
}

func TestBackoffExhausted(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 10}
	for attempt := 1; attempt <= 10; attempt++ {
		if p.Exhausted(attempt) {
			t.Fatalf("attempt %d should not exhaust the policy", attempt)
		}
	}
	if !p.Exhausted(11) {
		t.Fatal("attempt 11 should exhaust the policy")
	}

	unbounded := BackoffPolicy{Base: time.Second}
	if unbounded.Exhausted(1000) {
		t.Fatal("zero MaxAttempts means never exhausted")
	}
}
