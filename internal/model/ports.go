package model

import "context"

// ── Storage & Egress Port Interfaces ──
// These interfaces decouple the watch service from concrete implementations
// (SQLite, Redis). Each implementation satisfies one or more of them.

// SampleSource delivers an ordered stream of samples into out until the
// context is cancelled or the source is exhausted.
type SampleSource interface {
	Start(ctx context.Context, out chan<- Sample) error
}

// RecordingWriter persists run metadata and raw signal samples.
// Only inputs are recorded; trend and anomaly sequences are recomputed on
// every replay, never stored.
type RecordingWriter interface {
	// CreateRun inserts the metadata row and returns the new run ID.
	CreateRun(meta RunMeta) (int64, error)

	// WriteSignal stores a complete signal for a run in compressed blocks.
	WriteSignal(runID int64, samples []Sample) error

	// Run consumes samples from in and appends them to the run in batches.
	// Blocks until ctx is cancelled or in is closed.
	Run(ctx context.Context, runID int64, in <-chan Sample)

	// Close flushes pending blocks and releases the database handle.
	Close() error
}

// RecordingReader reads stored runs for replay and re-detection.
type RecordingReader interface {
	ListRuns(limit int) ([]RunMeta, error)
	ReadRun(id int64) (RunMeta, error)
	ReadSamples(id int64) ([]Sample, error)
	Close() error
}

// SnapshotStore reads and writes detector engine snapshots as raw JSON.
// Using []byte avoids a model→detector→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// EventPublisher pushes points and anomalies to downstream consumers.
// Implementations must never block the pipeline; failures are counted and
// logged, not returned to the hot path.
type EventPublisher interface {
	PublishPoint(ctx context.Context, p Point)
	PublishAnomaly(ctx context.Context, a Anomaly)
	Close() error
}
