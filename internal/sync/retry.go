package sync

import (
	"math"
	"time"
)

// RetryPolicy spaces out sync passes while the server keeps rejecting
// them. The queue itself never drops items; this only slows the polling
// so a dead uplink is not hammered.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the pause before the next pass after `failures`
// consecutive fully-failed passes (1-based), with clamping.
func (r RetryPolicy) NextDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(failures-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
