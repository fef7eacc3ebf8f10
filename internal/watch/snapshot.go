package watch

import (
	"context"
	"log"
	"time"

	"driftwatch/internal/detector"
)

// restoreEngine builds the streaming engine, warm from the latest stored
// snapshot when one exists and decodes, cold otherwise.
func (svc *Service) restoreEngine() error {
	cfg := detector.Config{
		Alpha:       svc.cfg.Alpha,
		Threshold:   svc.cfg.Threshold,
		TrackSpread: svc.cfg.TrackSpread,
	}

	if svc.sqlWriter == nil {
		svc.engine = detector.NewEngine(cfg)
		return nil
	}

	data, err := svc.sqlWriter.ReadLatestSnapshotJSON()
	if err != nil {
		log.Printf("[watch] snapshot read error: %v (starting cold)", err)
	}
	if data == nil {
		svc.engine = detector.NewEngine(cfg)
		log.Println("[watch] no snapshot found, starting cold")
		return nil
	}

	snap, err := detector.UnmarshalEngineSnapshot(data)
	if err != nil {
		log.Printf("[watch] snapshot decode error: %v (starting cold)", err)
		svc.engine = detector.NewEngine(cfg)
		return nil
	}

	svc.engine, err = detector.RestoreEngine(cfg, snap)
	if err != nil {
		return err
	}
	log.Printf("[watch] engine restored from snapshot (%d series)", len(snap.Series))
	return nil
}

// snapshotLoop periodically checkpoints engine state to SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(svc.cfg.SnapshotEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.saveSnapshot(); err != nil {
				log.Printf("[watch] checkpoint error: %v", err)
				continue
			}
			svc.prom.SnapshotsTotal.Inc()
		}
	}
}

// saveSnapshot marshals the engine state and persists it.
func (svc *Service) saveSnapshot() error {
	snap, err := detector.SnapshotEngine(svc.engine)
	if err != nil {
		return err
	}
	data, err := snap.Marshal()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := svc.sqlWriter.SaveSnapshotJSON(data); err != nil {
		return err
	}
	svc.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())

	log.Printf("[watch] checkpoint saved (%d series)", len(snap.Series))
	return nil
}
