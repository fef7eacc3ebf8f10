// Package watch runs the live detection pipeline: it ingests samples from a
// WebSocket feed, fans them out to the streaming detector, the recorder and
// the meters, and pushes results to the live server, Redis and notifiers.
package watch

import (
	"sync"
	"time"
)

// StallWatch observes per-series sample arrival times and decides when a
// series has gone silent for longer than the staleness window. Detection is
// split into Observe (called on every sample) and Sweep (called on a timer)
// so the decision logic stays clock-free and testable.
type StallWatch struct {
	// After is the staleness window. A series with no sample for longer
	// than After is considered stalled.
	After time.Duration

	// OnStall is called once when a series crosses the staleness window.
	OnStall func(series string, gap time.Duration)

	// OnRecover is called once when a stalled series delivers again.
	OnRecover func(series string, gap time.Duration)

	mu      sync.Mutex
	seen    map[string]time.Time
	stalled map[string]bool
}

// NewStallWatch creates a watch with the given staleness window.
func NewStallWatch(after time.Duration) *StallWatch {
	return &StallWatch{
		After:   after,
		seen:    make(map[string]time.Time),
		stalled: make(map[string]bool),
	}
}

// Observe records a sample arrival. If the series was stalled it recovers
// and OnRecover fires with the length of the silence.
func (sw *StallWatch) Observe(series string, now time.Time) {
	sw.mu.Lock()
	wasStalled := sw.stalled[series]
	var gap time.Duration
	if wasStalled {
		gap = now.Sub(sw.seen[series])
		sw.stalled[series] = false
	}
	sw.seen[series] = now
	hook := sw.OnRecover
	sw.mu.Unlock()

	if wasStalled && hook != nil {
		hook(series, gap)
	}
}

// Sweep checks every known series against the staleness window, firing
// OnStall for fresh stalls, and returns how many series are stalled now.
func (sw *StallWatch) Sweep(now time.Time) int {
	type stall struct {
		series string
		gap    time.Duration
	}
	var fresh []stall

	sw.mu.Lock()
	count := 0
	for series, last := range sw.seen {
		gap := now.Sub(last)
		if gap <= sw.After {
			continue
		}
		count++
		if !sw.stalled[series] {
			sw.stalled[series] = true
			fresh = append(fresh, stall{series, gap})
		}
	}
	hook := sw.OnStall
	sw.mu.Unlock()

	if hook != nil {
		for _, st := range fresh {
			hook(st.series, st.gap)
		}
	}
	return count
}

// StalledCount returns how many series are currently marked stalled.
func (sw *StallWatch) StalledCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	n := 0
	for _, v := range sw.stalled {
		if v {
			n++
		}
	}
	return n
}
