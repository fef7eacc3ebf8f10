package detector

import (
	"testing"
)

func TestSnapshot_ResumeEqualsUninterrupted(t *testing.T) {
	sig := noisySignal(200)
	cfg := Config{Alpha: 0.1, Threshold: 8, TrackSpread: true}

	// Reference engine runs the whole signal without interruption.
	ref := NewEngine(cfg)
	for i, v := range sig[:100] {
		ref.Process(sample("s", i, v))
	}

	// Checkpoint at sample 100, restore into a fresh engine.
	snap, err := SnapshotEngine(ref)
	if err != nil {
		t.Fatalf("SnapshotEngine: %v", err)
	}
	data, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := UnmarshalEngineSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalEngineSnapshot: %v", err)
	}
	resumed, err := RestoreEngine(cfg, parsed)
	if err != nil {
		t.Fatalf("RestoreEngine: %v", err)
	}

	// Both engines see the tail; every point must agree exactly.
	for i := 100; i < len(sig); i++ {
		pRef := ref.Process(sample("s", i, sig[i]))
		pRes := resumed.Process(sample("s", i, sig[i]))
		if pRef.Trend != pRes.Trend {
			t.Fatalf("point %d: trend %v after restore, %v uninterrupted", i, pRes.Trend, pRef.Trend)
		}
		if pRef.Anomaly != pRes.Anomaly {
			t.Fatalf("point %d: anomaly flag diverged after restore", i)
		}
		if pRef.Spread != pRes.Spread {
			t.Fatalf("point %d: spread %v after restore, %v uninterrupted", i, pRes.Spread, pRef.Spread)
		}
	}
}

func TestSnapshot_CarriesConfigAndProgress(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.3, Threshold: 12})
	for i := 0; i < 5; i++ {
		engine.Process(sample("a", i, float64(i)))
	}
	engine.Process(sample("b", 0, 99))

	snap, err := SnapshotEngine(engine)
	if err != nil {
		t.Fatalf("SnapshotEngine: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.Alpha != 0.3 || snap.Threshold != 12 {
		t.Errorf("config not captured: alpha=%v threshold=%v", snap.Alpha, snap.Threshold)
	}
	if len(snap.Series) != 2 {
		t.Fatalf("series count = %d, want 2", len(snap.Series))
	}

	byName := map[string]SeriesSnapshot{}
	for _, ss := range snap.Series {
		byName[ss.Series] = ss
	}
	if byName["a"].LastIndex != 4 {
		t.Errorf("series a LastIndex = %d, want 4", byName["a"].LastIndex)
	}
	if byName["b"].LastIndex != 0 {
		t.Errorf("series b LastIndex = %d, want 0", byName["b"].LastIndex)
	}
}

func TestRestore_AlphaMismatchColdStarts(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.1, Threshold: 8})
	for i := 0; i < 10; i++ {
		engine.Process(sample("s", i, float64(i)))
	}
	snap, _ := SnapshotEngine(engine)

	// Restoring under a different alpha would mix incompatible trend state.
	restored, err := RestoreEngine(Config{Alpha: 0.5, Threshold: 8}, snap)
	if err != nil {
		t.Fatalf("RestoreEngine: %v", err)
	}
	if _, ok := restored.ProcessPeek(sample("s", 10, 1)); ok {
		t.Error("cold-started engine should have no seeded series")
	}
}

func TestRestore_ThresholdFromConfigWins(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.1, Threshold: 8})
	engine.Process(sample("s", 0, 0))
	snap, _ := SnapshotEngine(engine)

	restored, err := RestoreEngine(Config{Alpha: 0.1, Threshold: 99}, snap)
	if err != nil {
		t.Fatalf("RestoreEngine: %v", err)
	}
	if got := restored.Threshold(); got != 99 {
		t.Errorf("Threshold() = %v, want configured 99, not snapshot 8", got)
	}
}

func TestRestore_SpreadTrackerTolerated(t *testing.T) {
	// Snapshot taken with spread tracking restores cleanly into a config
	// without it, and vice versa (missing tracker stays cold).
	withSpread := NewEngine(Config{Alpha: 0.2, Threshold: 5, TrackSpread: true})
	for i := 0; i < 8; i++ {
		withSpread.Process(sample("s", i, float64(i%3)))
	}
	snap, _ := SnapshotEngine(withSpread)

	plain, err := RestoreEngine(Config{Alpha: 0.2, Threshold: 5}, snap)
	if err != nil {
		t.Fatalf("restore without spread: %v", err)
	}
	p := plain.Process(sample("s", 8, 1))
	if p.Spread != 0 {
		t.Errorf("spread should be absent without TrackSpread, got %v", p.Spread)
	}

	// Plain snapshot into a spread-tracking config: trend restores, spread
	// begins cold.
	plainSnap, _ := SnapshotEngine(plain)
	back, err := RestoreEngine(Config{Alpha: 0.2, Threshold: 5, TrackSpread: true}, plainSnap)
	if err != nil {
		t.Fatalf("restore with spread: %v", err)
	}
	if _, ok := back.ProcessPeek(sample("s", 9, 1)); !ok {
		t.Error("trend state should have restored")
	}
}
