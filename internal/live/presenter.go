package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"driftwatch/internal/model"
	"driftwatch/internal/render"
)

// PresenterConfig controls playback. Zero values pick defaults.
type PresenterConfig struct {
	// Interval is the base delay between frames. Defaults to 100ms.
	Interval time.Duration

	// Speed divides the interval: 2.0 plays twice as fast. Defaults to 1.
	Speed float64

	// Loop rewinds and replays when the last frame has been revealed.
	Loop bool
}

func (c *PresenterConfig) defaults() {
	if c.Interval == 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.Speed == 0 {
		c.Speed = 1
	}
}

// Presenter advances a cursor over a finished detection on a timer and
// broadcasts each frame through the hub. It owns the cursor; REST control
// (pause, resume, restart, speed) goes through its methods. Detection
// outputs are read-only here, the detector is never re-invoked.
type Presenter struct {
	hub *Hub
	cur *render.Cursor

	mu       sync.Mutex
	interval time.Duration
	speed    float64
	paused   bool
	finished bool
	loop     bool
}

// NewPresenter wraps a finished detection for timed playback.
func NewPresenter(hub *Hub, d *model.Detection, cfg PresenterConfig) (*Presenter, error) {
	cfg.defaults()
	cur, err := render.NewCursor(d)
	if err != nil {
		return nil, err
	}
	return &Presenter{
		hub:      hub,
		cur:      cur,
		interval: cfg.Interval,
		speed:    cfg.Speed,
		loop:     cfg.Loop,
	}, nil
}

// Run advances the reveal until ctx is cancelled. The presenter keeps
// running after the last frame so Restart keeps working.
func (p *Presenter) Run(ctx context.Context) {
	d := p.cur.Detection()
	log.Printf("[live] presenting %s: %d frames, %d anomalies, base interval %s",
		d.Series, p.cur.Len(), len(d.Anomalies), p.interval)

	timer := time.NewTimer(p.delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		p.step()
		timer.Reset(p.delay())
	}
}

// delay is the effective inter-frame wait at the current speed.
func (p *Presenter) delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := time.Duration(float64(p.interval) / p.speed)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// step reveals one frame, if playing.
func (p *Presenter) step() {
	p.mu.Lock()
	if p.paused || p.finished {
		p.mu.Unlock()
		return
	}
	f, ok := p.cur.Next()
	if !ok {
		p.mu.Unlock()
		return
	}
	done := p.cur.Done()
	loop := p.loop
	if done && !loop {
		p.finished = true
	}
	if done && loop {
		p.cur.Rewind()
	}
	p.mu.Unlock()

	p.hub.Broadcaster.Broadcast(ChannelFrames, f.JSON())
	if f.Anomaly != nil {
		p.hub.Broadcaster.Broadcast(ChannelAnomalies, f.Anomaly.JSON())
	}
	if done {
		if loop {
			p.broadcastStatus("restarted")
		} else {
			p.broadcastStatus("finished")
			log.Printf("[live] reveal finished: %d frames", f.Total)
		}
	}
}

// Pause freezes the reveal at the current position.
func (p *Presenter) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	p.broadcastStatus("paused")
}

// Resume continues a paused reveal. A finished reveal stays finished;
// use Restart.
func (p *Presenter) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.broadcastStatus("playing")
}

// Restart rewinds to frame 0 and resumes playback.
func (p *Presenter) Restart() {
	p.mu.Lock()
	p.cur.Rewind()
	p.finished = false
	p.paused = false
	p.mu.Unlock()
	p.broadcastStatus("restarted")
}

// SetSpeed replaces the playback speed. Takes effect from the next frame.
func (p *Presenter) SetSpeed(x float64) error {
	if x <= 0 {
		return fmt.Errorf("live: speed must be positive, got %v", x)
	}
	if x > 100 {
		x = 100
	}
	p.mu.Lock()
	p.speed = x
	p.mu.Unlock()
	p.broadcastStatus("speed")
	return nil
}

func (p *Presenter) broadcastStatus(state string) {
	p.mu.Lock()
	out := StatusOut{
		State:    state,
		Position: p.cur.Pos(),
		Total:    p.cur.Len(),
		Speed:    p.speed,
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	p.mu.Unlock()
	p.hub.Broadcaster.BroadcastJSON(ChannelStatus, out)
}

// State reports playback position for /api/state.
func (p *Presenter) State(clients int) StateOut {
	p.mu.Lock()
	defer p.mu.Unlock()
	return StateOut{
		Mode:       "reveal",
		Position:   p.cur.Pos(),
		Total:      p.cur.Len(),
		Revealed:   len(p.cur.Revealed()),
		Paused:     p.paused,
		Finished:   p.finished,
		Speed:      p.speed,
		IntervalMs: p.interval.Milliseconds(),
		Clients:    clients,
	}
}

// RunInfo describes the detection being presented.
func (p *Presenter) RunInfo() RunInfo {
	d := p.cur.Detection()
	return RunInfo{
		Series:    d.Series,
		Mode:      "reveal",
		Points:    len(d.Signal),
		Alpha:     d.Alpha,
		Threshold: d.Threshold,
		Seed:      d.Seed,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Anomalies returns a copy of the anomalies revealed so far.
func (p *Presenter) Anomalies() []model.Anomaly {
	p.mu.Lock()
	defer p.mu.Unlock()
	revealed := p.cur.Revealed()
	out := make([]model.Anomaly, len(revealed))
	copy(out, revealed)
	return out
}

// Detection returns the full detection backing the reveal.
func (p *Presenter) Detection() *model.Detection {
	return p.cur.Detection()
}
