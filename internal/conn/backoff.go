package conn

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes the reconnection delay sequence: 1s
// initial, doubling to a 60s cap, with jitter, resetting to zero on the
// next successful Ready transition.
type Backoff struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	current time.Duration
	rand    *rand.Rand
}

// NewBackoff returns a Backoff using the package defaults.
func NewBackoff() *Backoff {
	return &Backoff{
		initial: InitialBackoff,
		max:     MaxBackoff,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}
	jitter := time.Duration(b.rand.Int63n(int64(b.current) / 2))
	return b.current/2 + jitter
}

// Reset zeroes the sequence; called when a connection reaches Ready.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}
