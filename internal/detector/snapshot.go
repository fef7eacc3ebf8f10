package detector

import (
	"encoding/json"
	"fmt"
	"log"
)

// TrackerSnapshot holds the serialized state of a single tracker instance.
type TrackerSnapshot struct {
	Type    string  `json:"type"` // "EWMA", "EWMVar"
	Alpha   float64 `json:"alpha"`
	Current float64 `json:"current"`
	Count   int     `json:"count"`

	// EWMVar field
	Var float64 `json:"var,omitempty"`
}

// SeriesSnapshot holds tracker snapshots for a single series.
type SeriesSnapshot struct {
	Series    string            `json:"series"`
	LastIndex int               `json:"last_index"`
	Trackers  []TrackerSnapshot `json:"trackers"`
}

// EngineSnapshot holds the full state of the streaming engine.
type EngineSnapshot struct {
	Alpha     float64          `json:"alpha"`
	Threshold float64          `json:"threshold"`
	Series    []SeriesSnapshot `json:"series"`
	Version   int              `json:"version"` // schema version for forward compat
}

// Marshal serializes the snapshot to JSON.
func (es *EngineSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(es)
}

// UnmarshalEngineSnapshot parses a JSON engine snapshot.
func UnmarshalEngineSnapshot(data []byte) (*EngineSnapshot, error) {
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal engine snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotEngine captures the full state of a streaming engine.
func SnapshotEngine(e *Engine) (*EngineSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &EngineSnapshot{
		Alpha:     e.cfg.Alpha,
		Threshold: e.cfg.Threshold,
		Version:   1,
	}

	for series, st := range e.state {
		ss := SeriesSnapshot{
			Series:    series,
			LastIndex: st.lastIndex,
			Trackers:  []TrackerSnapshot{st.trend.Snapshot()},
		}
		if st.spread != nil {
			ss.Trackers = append(ss.Trackers, st.spread.Snapshot())
		}
		snap.Series = append(snap.Series, ss)
	}

	return snap, nil
}

// RestoreEngine rebuilds a streaming engine from a snapshot. It is tolerant
// of config changes: series are matched by name and trackers by type. A
// snapshot taken under a different alpha is stale trend state, so the whole
// engine cold-starts instead of restoring; threshold differences restore
// fine (the config's threshold wins).
func RestoreEngine(cfg Config, snap *EngineSnapshot) (*Engine, error) {
	e := NewEngine(cfg)

	if alphaDiffers(cfg.Alpha, snap.Alpha) {
		log.Printf("[detector] snapshot alpha=%.4f differs from configured %.4f, cold starting", snap.Alpha, cfg.Alpha)
		return e, nil
	}

	restored, cold := 0, 0
	for _, ss := range snap.Series {
		st := e.newSeriesState()
		st.lastIndex = ss.LastIndex

		ok := true
		for _, ts := range ss.Trackers {
			switch ts.Type {
			case "EWMA":
				if err := st.trend.RestoreFromSnapshot(ts); err != nil {
					ok = false
				}
			case "EWMVar":
				if st.spread != nil {
					if err := st.spread.RestoreFromSnapshot(ts); err != nil {
						ok = false
					}
				}
			default:
				// unknown tracker type: skip, stays cold
			}
		}
		if !ok {
			cold++
			continue
		}

		e.state[ss.Series] = st
		restored++
	}

	if cold > 0 {
		log.Printf("[detector] restore: %d series restored, %d cold-started", restored, cold)
	}
	return e, nil
}

func alphaDiffers(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d > 1e-12
}
