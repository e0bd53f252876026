package inference

import "time"

// BackoffPolicy is the retry policy for the inference connection: linear
// delay growth capped at Max, with a bounded attempt count. Exceeding
// MaxAttempts is terminal for the connection.
type BackoffPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before the given reconnect attempt. Attempts are
// numbered from 1.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base * time.Duration(attempt)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Exhausted reports whether the given attempt exceeds the bound.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
