package detector

import "math"

// EWMVar tracks an exponentially-weighted mean together with an
// exponentially-weighted variance, giving a running spread estimate for
// deviation reporting. The anomaly decision never consults it; the
// threshold test is absolute by contract.
type EWMVar struct {
	alpha    float64
	mean     float64
	variance float64
	count    int
}

// NewEWMVar creates a spread tracker with the given smoothing factor.
func NewEWMVar(alpha float64) *EWMVar {
	return &EWMVar{alpha: alpha}
}

func (e *EWMVar) Name() string { return "EWMVar" }

func (e *EWMVar) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.mean = v
		return
	}

	diff := v - e.mean
	incr := e.alpha * diff
	e.mean += incr
	// variance = (1-alpha) * (variance + alpha*diff^2)
	e.variance = (1 - e.alpha) * (e.variance + diff*incr)
}

func (e *EWMVar) Value() float64 { return e.mean }
func (e *EWMVar) Ready() bool    { return e.count > 0 }

// StdDev returns the square root of the running variance.
func (e *EWMVar) StdDev() float64 {
	if e.variance <= 0 {
		return 0
	}
	return math.Sqrt(e.variance)
}

// Peek computes what Value() would be after one more sample without mutating state.
func (e *EWMVar) Peek(v float64) float64 {
	if e.count == 0 {
		return v
	}
	return e.mean + e.alpha*(v-e.mean)
}

// Reset clears the tracker state for reuse.
func (e *EWMVar) Reset() {
	e.mean = 0
	e.variance = 0
	e.count = 0
}

// Snapshot serializes the tracker state for checkpoint persistence.
func (e *EWMVar) Snapshot() TrackerSnapshot {
	return TrackerSnapshot{
		Type:    "EWMVar",
		Alpha:   e.alpha,
		Current: e.mean,
		Var:     e.variance,
		Count:   e.count,
	}
}

// RestoreFromSnapshot restores tracker state from a checkpoint.
func (e *EWMVar) RestoreFromSnapshot(snap TrackerSnapshot) error {
	e.alpha = snap.Alpha
	e.mean = snap.Current
	e.variance = snap.Var
	e.count = snap.Count
	return nil
}
