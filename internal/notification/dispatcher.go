package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"driftwatch/internal/model"
)

const defaultMinGap = 30 * time.Second

// Dispatcher fans alerts out to the configured backends and applies the
// anomaly alert policy: severity scales with deviation magnitude, and alerts
// for the same series are spaced at least minGap apart so an anomaly burst
// cannot flood the channels.
type Dispatcher struct {
	notifiers []Notifier
	minGap    time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	// OnSend, when set, is called with the level of every dispatched alert.
	OnSend func(level AlertLevel)
}

// NewDispatcher creates a dispatcher over the given backends.
// minGap <= 0 selects the default per-series spacing of 30s.
func NewDispatcher(minGap time.Duration, notifiers ...Notifier) *Dispatcher {
	if minGap <= 0 {
		minGap = defaultMinGap
	}
	return &Dispatcher{
		notifiers: notifiers,
		minGap:    minGap,
		lastSent:  make(map[string]time.Time),
	}
}

// AnomalyAlert reports a flagged anomaly. Deviations within twice the
// threshold are WARNING, anything beyond is CRITICAL. Repeat alerts for the
// same series inside minGap are suppressed.
func (d *Dispatcher) AnomalyAlert(ctx context.Context, a model.Anomaly, threshold float64) {
	d.mu.Lock()
	if last, ok := d.lastSent[a.Series]; ok && time.Since(last) < d.minGap {
		d.mu.Unlock()
		return
	}
	d.lastSent[a.Series] = time.Now()
	d.mu.Unlock()

	level := AlertWarning
	if threshold > 0 && a.Deviation > 2*threshold {
		level = AlertCritical
	}

	d.dispatch(ctx, Alert{
		Level:  level,
		Series: a.Series,
		Title:  fmt.Sprintf("Anomaly on %s", a.Series),
		Message: fmt.Sprintf("index %d: value %.4f deviates %.4f from trend %.4f (threshold %.4f)",
			a.Index, a.Value, a.Deviation, a.Trend, threshold),
	})
}

// StallAlert reports that the feed stopped delivering samples.
func (d *Dispatcher) StallAlert(ctx context.Context, series string, gap time.Duration) {
	d.dispatch(ctx, Alert{
		Level:   AlertWarning,
		Series:  series,
		Title:   "Feed stalled",
		Message: fmt.Sprintf("no samples on %s for %s", series, gap.Round(time.Second)),
	})
}

// RecoveryAlert reports that a stalled feed is flowing again.
func (d *Dispatcher) RecoveryAlert(ctx context.Context, series string, gap time.Duration) {
	d.dispatch(ctx, Alert{
		Level:   AlertInfo,
		Series:  series,
		Title:   "Feed recovered",
		Message: fmt.Sprintf("samples flowing on %s again after %s", series, gap.Round(time.Second)),
	})
}

// BreakerAlert reports a Redis publish circuit transition.
func (d *Dispatcher) BreakerAlert(ctx context.Context, from, to string) {
	d.dispatch(ctx, Alert{
		Level:   AlertWarning,
		Title:   "Redis circuit " + to,
		Message: fmt.Sprintf("publish circuit moved from %s to %s", from, to),
	})
}

// dispatch sends the alert to every backend concurrently. Delivery failures
// are logged, never propagated to the caller.
func (d *Dispatcher) dispatch(ctx context.Context, alert Alert) {
	for _, n := range d.notifiers {
		go func(n Notifier) {
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := n.Send(sendCtx, alert); err != nil {
				log.Printf("[notify] send failed: %v", err)
			}
		}(n)
	}
	if d.OnSend != nil {
		d.OnSend(alert.Level)
	}
}
