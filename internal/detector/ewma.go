package detector

// EWMA tracks an exponentially-weighted moving average.
// O(1) per update, no window storage needed.
type EWMA struct {
	alpha   float64
	current float64
	count   int
}

// NewEWMA creates a tracker with the given smoothing factor. The first
// sample seeds the average unchanged; larger alpha weights recent samples
// more heavily.
func NewEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha}
}

func (e *EWMA) Name() string { return "EWMA" }

func (e *EWMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		// Seed: first sample becomes the trend as-is
		e.current = v
		return
	}

	// EWMA formula: trend = alpha*v + (1-alpha)*trend_prev
	e.current = e.alpha*v + (1-e.alpha)*e.current
}

func (e *EWMA) Value() float64 { return e.current }
func (e *EWMA) Ready() bool    { return e.count > 0 }

// Peek computes what Value() would be after one more sample without mutating state.
func (e *EWMA) Peek(v float64) float64 {
	if e.count == 0 {
		return v // would seed
	}
	return e.alpha*v + (1-e.alpha)*e.current
}

// Reset clears the tracker state for reuse.
func (e *EWMA) Reset() {
	e.current = 0
	e.count = 0
}

// Snapshot serializes the tracker state for checkpoint persistence.
func (e *EWMA) Snapshot() TrackerSnapshot {
	return TrackerSnapshot{
		Type:    "EWMA",
		Alpha:   e.alpha,
		Current: e.current,
		Count:   e.count,
	}
}

// RestoreFromSnapshot restores tracker state from a checkpoint.
func (e *EWMA) RestoreFromSnapshot(snap TrackerSnapshot) error {
	e.alpha = snap.Alpha
	e.current = snap.Current
	e.count = snap.Count
	return nil
}
