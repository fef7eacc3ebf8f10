package watch

import (
	"context"
	"log"
	"log/slog"
	"sort"
	"time"

	"driftwatch/internal/logger"
	"driftwatch/internal/model"
)

const (
	meterTick     = 5 * time.Second
	stallSweep    = time.Second
	recordChanBuf = 512
)

// detectLoop consumes samples and runs them through the streaming engine.
// Every point goes to the live hub; Redis publishing is fire-and-forget
// through the buffered publisher. Anomaly side effects run via the engine's
// OnAnomaly hook, not here.
func (svc *Service) detectLoop(ctx context.Context, in <-chan model.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}

			start := time.Now()
			pt := svc.engine.Process(s)
			svc.prom.DetectDur.Observe(time.Since(start).Seconds())
			svc.prom.PointsTotal.Inc()
			if !s.TS.IsZero() {
				svc.prom.DetectLag.Set(time.Since(s.TS).Seconds())
			}

			svc.live.PublishPoint(pt)
			if svc.events != nil {
				wstart := time.Now()
				svc.events.PublishPoint(ctx, pt)
				svc.prom.RedisWriteDur.Observe(time.Since(wstart).Seconds())
			}
		}
	}
}

// recordLoop stores incoming samples as runs, one run per series. Runs are
// created lazily on the first sample of a series; each gets its own writer
// goroutine so a slow commit on one series never blocks another.
func (svc *Service) recordLoop(ctx context.Context, in <-chan model.Sample) {
	runs := make(map[string]chan model.Sample)
	defer func() {
		for _, ch := range runs {
			close(ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}

			ch, known := runs[s.Series]
			if !known {
				runID, err := svc.sqlWriter.CreateRun(model.RunMeta{
					Series:    s.Series,
					Alpha:     svc.cfg.Alpha,
					Threshold: svc.engine.Threshold(),
					Note:      svc.cfg.RecordNote,
				})
				if err != nil {
					log.Printf("[watch] create run for %s: %v", s.Series, err)
					continue
				}

				tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(s.Series, time.Now()))
				slog.Info("recording started",
					append(logger.LogWithTrace(tctx), "run_id", runID, "series", s.Series)...)

				ch = make(chan model.Sample, recordChanBuf)
				runs[s.Series] = ch
				go svc.sqlWriter.Run(ctx, runID, ch)
			}

			select {
			case ch <- s:
			default:
				svc.prom.DroppedSamples.Inc()
			}
		}
	}
}

// filterLoop passes through only the configured series.
func (svc *Service) filterLoop(ctx context.Context, in <-chan model.Sample, out chan<- model.Sample) {
	allowed := make(map[string]struct{}, len(svc.cfg.Series))
	for _, s := range svc.cfg.Series {
		allowed[s] = struct{}{}
	}
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			if _, want := allowed[s.Series]; !want {
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}
}

// meterLoop counts samples, feeds the stall watch, and periodically reports
// channel saturation and ring overflow.
func (svc *Service) meterLoop(ctx context.Context, in <-chan model.Sample) {
	ticker := time.NewTicker(meterTick)
	defer ticker.Stop()

	seen := make(map[string]struct{})
	var lastOverflow uint64

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			svc.prom.SamplesTotal.Inc()
			svc.health.SetLastSampleTime(s.TS)
			svc.stall.Observe(s.Series, time.Now())

			if _, known := seen[s.Series]; !known {
				seen[s.Series] = struct{}{}
				svc.health.SetSeries(sortedKeys(seen))
			}
		case <-ticker.C:
			svc.reportSaturation()
			lastOverflow = svc.reportOverflow(lastOverflow)
		}
	}
}

// stallLoop sweeps the stall watch and keeps the health flag and the
// stalled gauge in sync with the per-series verdicts.
func (svc *Service) stallLoop(ctx context.Context) {
	ticker := time.NewTicker(stallSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stalled := svc.stall.Sweep(now) > 0
			svc.health.SetStalled(stalled)
			if stalled {
				svc.prom.FeedStalled.Set(1)
			} else {
				svc.prom.FeedStalled.Set(0)
			}
		}
	}
}

func (svc *Service) reportSaturation() {
	for i, st := range svc.fanout.ChannelStats() {
		if st.Cap == 0 {
			continue
		}
		pct := float64(st.Len) / float64(st.Cap) * 100
		svc.prom.ChannelSaturationPct.WithLabelValues(svc.subscriberName(i)).Set(pct)
	}
}

// reportOverflow feeds the cumulative ring overflow count into the counter
// as a delta and returns the new baseline.
func (svc *Service) reportOverflow(last uint64) uint64 {
	cur := svc.feed.Dropped()
	if cur > last {
		svc.prom.RingBufOverflow.Add(float64(cur - last))
	}
	return cur
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
