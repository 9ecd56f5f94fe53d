package client

import (
	"sync/atomic"
	"time"
)

// cooldownGate admits at most one caller per window. It replaces a
// process-wide "already handling" flag with a compare-and-set on the time
// of the last admission, so concurrent completions race on a single CAS
// and the window reopens without a timer.
type cooldownGate struct {
	window time.Duration
	now    func() time.Time
	last   atomic.Int64 // unix nanos of the last admission; 0 means never
}

func newCooldownGate(window time.Duration, now func() time.Time) *cooldownGate {
	return &cooldownGate{window: window, now: now}
}

// tryAcquire reports whether the caller won the gate for the current window.
func (g *cooldownGate) tryAcquire() bool {
	for {
		prev := g.last.Load()
		now := g.now().UnixNano()
		if prev != 0 && now-prev < int64(g.window) {
			return false
		}
		if g.last.CompareAndSwap(prev, now) {
			return true
		}
	}
}
