package retry

import (
	"sync"
	"time"
)

// BreakerSet maintains one circuit breaker per external-call identity
// (stage name, and target host where a stage talks to several). After
// Threshold consecutive failed outcomes within Window, the breaker opens
// and calls fail fast without attempting I/O until Cooldown elapses.
type BreakerSet struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration

	mu     sync.Mutex
	states map[string]*breakerState

	now func() time.Time // injectable for tests
}

type breakerState struct {
	failures  []time.Time // consecutive failures, oldest first
	openUntil time.Time
}

// NewBreakerSet creates a breaker set.
func NewBreakerSet(threshold int, window, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		states:    make(map[string]*breakerState),
		now:       time.Now,
	}
}

// Allow reports whether a call with the given identity may proceed.
// Once the cool-down has elapsed the next call is attempted normally.
func (b *BreakerSet) Allow(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok {
		return true
	}
	return !b.now().Before(st.openUntil)
}

// RecordSuccess resets the consecutive-failure count for the identity.
func (b *BreakerSet) RecordSuccess(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.states[id]; ok {
		st.failures = st.failures[:0]
	}
}

// RecordFailure registers a failed outcome. When the threshold of
// consecutive failures within the sliding window is reached the breaker
// opens for the cool-down period.
func (b *BreakerSet) RecordFailure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st, ok := b.states[id]
	if !ok {
		st = &breakerState{}
		b.states[id] = st
	}

	// Drop failures that slid out of the window.
	cutoff := now.Add(-b.window)
	kept := st.failures[:0]
	for _, t := range st.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.failures = append(kept, now)

	if len(st.failures) >= b.threshold {
		st.openUntil = now.Add(b.cooldown)
		st.failures = st.failures[:0]
	}
}
