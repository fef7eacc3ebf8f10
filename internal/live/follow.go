package live

import (
	"sync"
	"time"

	"driftwatch/internal/model"
)

// FollowState tracks the REST-visible state while following a feed through
// the streaming engine: points seen and anomalies flagged so far. There is
// no cursor and no finished detection in follow mode.
type FollowState struct {
	mu        sync.RWMutex
	series    string
	alpha     float64
	threshold float64
	started   time.Time
	points    int
	anomalies []model.Anomaly
}

// NewFollowState starts tracking a followed series.
func NewFollowState(series string, alpha, threshold float64) *FollowState {
	return &FollowState{
		series:    series,
		alpha:     alpha,
		threshold: threshold,
		started:   time.Now().UTC(),
	}
}

// Apply records one engine point and returns the frame to broadcast plus
// the anomaly, if the point was flagged.
func (f *FollowState) Apply(p model.Point) (model.Frame, *model.Anomaly) {
	f.mu.Lock()
	f.points++
	revealed := f.points
	var anom *model.Anomaly
	if p.Anomaly {
		f.anomalies = append(f.anomalies, model.Anomaly{
			Series:    p.Series,
			Index:     p.Index,
			Value:     p.Value,
			Trend:     p.Trend,
			Deviation: p.Deviation,
		})
		anom = &f.anomalies[len(f.anomalies)-1]
	}
	f.mu.Unlock()

	frame := model.Frame{
		Series:   p.Series,
		Index:    p.Index,
		Value:    p.Value,
		Trend:    p.Trend,
		Anomaly:  anom,
		Revealed: revealed,
		Total:    0, // unbounded stream
		TS:       p.TS,
	}
	return frame, anom
}

// SetThreshold updates the displayed threshold after a runtime change.
func (f *FollowState) SetThreshold(th float64) {
	f.mu.Lock()
	f.threshold = th
	f.mu.Unlock()
}

// RunInfo describes the followed stream for /api/run.
func (f *FollowState) RunInfo() RunInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return RunInfo{
		Series:    f.series,
		Mode:      "follow",
		Points:    f.points,
		Alpha:     f.alpha,
		Threshold: f.threshold,
		CreatedAt: f.started.Format(time.RFC3339),
	}
}

// State reports follow progress for /api/state.
func (f *FollowState) State(clients int) StateOut {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return StateOut{
		Mode:     "follow",
		Position: f.points,
		Total:    0,
		Revealed: len(f.anomalies),
		Clients:  clients,
	}
}

// Anomalies returns a copy of the anomalies flagged so far.
func (f *FollowState) Anomalies() []model.Anomaly {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Anomaly, len(f.anomalies))
	copy(out, f.anomalies)
	return out
}
