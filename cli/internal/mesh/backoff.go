package mesh

import "time"

// Backoff spaces out negotiation restarts: the n-th restart waits
// Base * 2^n, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Wait returns how long an attempt that follows the given number of
// restarts may run before the next restart.
func (b Backoff) Wait(restarts int) time.Duration {
	d := b.Base
	for i := 0; i < restarts && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}
