// Package resilience provides retry and consecutive-failure tripping for
// calls against the source site.
package resilience

import (
	"sync"

	"github.com/rotisserie/eris"
)

// ErrTripped is returned once a Breaker has seen too many consecutive failures.
var ErrTripped = eris.New("too many consecutive failures")

// Breaker counts consecutive failures and trips once a threshold is reached.
// Unlike a classic circuit breaker it never closes again: a tripped breaker
// means the source is unreachable for the rest of the run.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	tripped     bool
	onTrip      func(consecutive int)
}

// NewBreaker creates a Breaker. A threshold of 0 disables tripping.
func NewBreaker(threshold int, onTrip func(consecutive int)) *Breaker {
	if threshold < 0 {
		threshold = 0
	}
	return &Breaker{threshold: threshold, onTrip: onTrip}
}

// Record notes the outcome of one call and reports whether the breaker is
// tripped afterwards. Any success resets the consecutive count.
func (b *Breaker) Record(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutive = 0
		return b.tripped
	}

	b.consecutive++
	if !b.tripped && b.threshold > 0 && b.consecutive >= b.threshold {
		b.tripped = true
		if b.onTrip != nil {
			b.onTrip(b.consecutive)
		}
	}
	return b.tripped
}

// Allow returns ErrTripped once the breaker has tripped.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return ErrTripped
	}
	return nil
}

// Tripped reports whether the threshold has been reached.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Consecutive returns the current run of failures.
func (b *Breaker) Consecutive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
