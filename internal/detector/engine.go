package detector

import (
	"context"
	"math"
	"sync"

	"driftwatch/internal/model"
)

// Config configures the streaming engine. Alpha and Threshold apply to every
// series the engine sees; per-series state is created lazily on first sample.
type Config struct {
	Alpha     float64
	Threshold float64

	// TrackSpread enables an auxiliary per-series spread tracker whose
	// running stddev is reported on points. It never affects the anomaly
	// decision.
	TrackSpread bool
}

// seriesState holds live tracker instances for one series.
type seriesState struct {
	trend     *EWMA
	spread    *EWMVar // nil unless TrackSpread
	lastIndex int
}

// Engine applies the EWMA deviation test one sample at a time across any
// number of independent series. Process is single-goroutine by design;
// SetThreshold and snapshotting may be called from other goroutines, so all
// state access goes through the mutex.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	state map[string]*seriesState
	drops uint64

	// OnAnomaly, when set, is invoked for every flagged point (outside the
	// engine lock).
	OnAnomaly func(a model.Anomaly)

	// OnDrop, when set, is invoked when Run drops a point on a full output
	// channel.
	OnDrop func(p model.Point)
}

// NewEngine creates a streaming engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		state: make(map[string]*seriesState, 4),
	}
}

// Process applies one sample and returns the resulting point. The first
// sample of a series seeds its trend unchanged and is never flagged; every
// later sample is tested against the same-step trend value.
func (e *Engine) Process(s model.Sample) model.Point {
	e.mu.Lock()

	st := e.state[s.Series]
	if st == nil {
		st = e.newSeriesState()
		e.state[s.Series] = st
	}

	seeded := st.trend.Ready()
	st.trend.Update(s.Value)
	if st.spread != nil {
		st.spread.Update(s.Value)
	}
	st.lastIndex = s.Index

	p := model.Point{
		Series: s.Series,
		Index:  s.Index,
		Value:  s.Value,
		Trend:  st.trend.Value(),
		TS:     s.TS,
	}
	if seeded {
		p.Deviation = math.Abs(s.Value - p.Trend)
		p.Anomaly = p.Deviation > e.cfg.Threshold
	}
	if st.spread != nil {
		p.Spread = st.spread.StdDev()
	}
	hook := e.OnAnomaly
	e.mu.Unlock()

	if p.Anomaly && hook != nil {
		hook(model.Anomaly{
			Series:    p.Series,
			Index:     p.Index,
			Value:     p.Value,
			Trend:     p.Trend,
			Deviation: p.Deviation,
		})
	}
	return p
}

// ProcessPeek previews the point a sample would produce without mutating any
// state. Returns false if the series has not been seeded by Process yet.
func (e *Engine) ProcessPeek(s model.Sample) (model.Point, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state[s.Series]
	if st == nil || !st.trend.Ready() {
		return model.Point{}, false
	}

	trend := st.trend.Peek(s.Value)
	dev := math.Abs(s.Value - trend)
	p := model.Point{
		Series:    s.Series,
		Index:     s.Index,
		Value:     s.Value,
		Trend:     trend,
		Deviation: dev,
		Anomaly:   dev > e.cfg.Threshold,
		Live:      true,
		TS:        s.TS,
	}
	if st.spread != nil {
		p.Spread = st.spread.StdDev()
	}
	return p, true
}

// Run consumes samples and emits points. Blocks until ctx is done or in is
// closed. A full output channel drops the point rather than stalling the
// source; drops are counted and reported through OnDrop.
func (e *Engine) Run(ctx context.Context, in <-chan model.Sample, out chan<- model.Point) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			p := e.Process(s)
			select {
			case out <- p:
			default:
				e.noteDrop(p)
			}
		}
	}
}

// SetThreshold replaces the deviation threshold between samples. Only
// subsequent comparisons are affected; points already emitted are immutable.
func (e *Engine) SetThreshold(th float64) {
	e.mu.Lock()
	e.cfg.Threshold = th
	e.mu.Unlock()
}

// Threshold returns the threshold currently in effect.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Threshold
}

// Alpha returns the engine's smoothing factor. Alpha is fixed for the
// lifetime of the engine; changing it would invalidate every trend state.
func (e *Engine) Alpha() float64 {
	return e.cfg.Alpha
}

// Drops returns the number of points dropped on a full output channel.
func (e *Engine) Drops() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drops
}

func (e *Engine) noteDrop(p model.Point) {
	e.mu.Lock()
	e.drops++
	hook := e.OnDrop
	e.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

// newSeriesState creates fresh tracker instances for one series.
func (e *Engine) newSeriesState() *seriesState {
	st := &seriesState{trend: NewEWMA(e.cfg.Alpha)}
	if e.cfg.TrackSpread {
		st.spread = NewEWMVar(e.cfg.Alpha)
	}
	return st
}
