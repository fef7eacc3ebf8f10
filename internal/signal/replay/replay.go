// Package replay re-emits recorded signal runs from storage at a configurable
// speed. Only raw samples are stored, so every replay goes through the same
// detection path as a live run.
package replay

import (
	"context"
	"log"
	"time"

	"driftwatch/internal/model"
)

// Replayer reads recorded samples from a RecordingReader and replays them
// at a configurable speed multiplier.
type Replayer struct {
	reader model.RecordingReader
}

// New creates a Replayer backed by a recording reader.
func New(reader model.RecordingReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all samples of the given run, emitting them into out.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, runID int64, speed float64, out chan<- model.Sample) error {
	meta, err := r.reader.ReadRun(runID)
	if err != nil {
		return err
	}
	samples, err := r.reader.ReadSamples(runID)
	if err != nil {
		return err
	}

	if len(samples) == 0 {
		log.Printf("[replay] run %d (%s) has no samples", runID, meta.Series)
		return nil
	}

	log.Printf("[replay] run %d (%s): %d samples, speed=%.1fx", runID, meta.Series, len(samples), speed)

	var prevTS time.Time
	emitted := 0

	for _, s := range samples {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d samples", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between samples
		if speed > 0 && !prevTS.IsZero() {
			gap := s.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = s.TS

		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
		emitted++
	}

	log.Printf("[replay] completed: %d samples replayed", emitted)
	return nil
}

// Source binds a Replayer to one run and speed so it can stand in anywhere
// a live sample source is expected.
type Source struct {
	r     *Replayer
	runID int64
	speed float64
}

// Source returns a SampleSource view of the given run.
func (r *Replayer) Source(runID int64, speed float64) *Source {
	return &Source{r: r, runID: runID, speed: speed}
}

// Start implements model.SampleSource.
func (s *Source) Start(ctx context.Context, out chan<- model.Sample) error {
	return s.r.Run(ctx, s.runID, s.speed, out)
}
