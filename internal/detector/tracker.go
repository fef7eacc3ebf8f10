package detector

// Tracker is the common interface for streaming statistics that consume one
// sample at a time.
type Tracker interface {
	// Name returns the tracker type, e.g. "EWMA".
	Name() string

	// Update applies the next sample in sequence.
	Update(v float64)

	// Value returns the current estimate.
	Value() float64

	// Ready reports whether the tracker has been seeded.
	Ready() bool

	// Peek returns what Value() would be after v, without mutating state.
	Peek(v float64) float64
}

// Snapshottable is implemented by trackers that support state serialization.
type Snapshottable interface {
	Tracker
	Snapshot() TrackerSnapshot
	RestoreFromSnapshot(snap TrackerSnapshot) error
}
