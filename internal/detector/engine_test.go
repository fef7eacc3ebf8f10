package detector

import (
	"context"
	"testing"
	"time"

	"driftwatch/internal/model"
)

func sample(series string, idx int, v float64) model.Sample {
	return model.Sample{
		Series: series,
		Index:  idx,
		Value:  v,
		TS:     time.Now().UTC(),
	}
}

func TestEngine_MatchesPureDetect(t *testing.T) {
	// Streaming the samples one at a time must reproduce the one-shot pass
	// exactly: same trend values, same anomaly set.
	sig := noisySignal(400)
	trend, anomalies, err := Detect(sig, 0.1, 8)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	engine := NewEngine(Config{Alpha: 0.1, Threshold: 8})
	var flagged []model.Anomaly
	engine.OnAnomaly = func(a model.Anomaly) { flagged = append(flagged, a) }

	for i, v := range sig {
		p := engine.Process(sample("s", i, v))
		if p.Trend != trend[i] {
			t.Fatalf("point %d: trend %v, pure pass %v", i, p.Trend, trend[i])
		}
	}

	if len(flagged) != len(anomalies) {
		t.Fatalf("anomaly count: engine %d, pure pass %d", len(flagged), len(anomalies))
	}
	for i := range flagged {
		if flagged[i].Index != anomalies[i].Index || flagged[i].Value != anomalies[i].Value {
			t.Errorf("anomaly %d: engine (%d, %v), pure pass (%d, %v)",
				i, flagged[i].Index, flagged[i].Value, anomalies[i].Index, anomalies[i].Value)
		}
	}
}

func TestEngine_FirstSampleSeeds(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 0})

	p := engine.Process(sample("s", 0, 123.45))
	if p.Anomaly {
		t.Error("seeding sample must never be flagged")
	}
	if p.Trend != 123.45 {
		t.Errorf("seed trend = %v, want 123.45 (exact)", p.Trend)
	}
	if p.Deviation != 0 {
		t.Errorf("seed deviation = %v, want 0", p.Deviation)
	}
}

func TestEngine_IndependentSeries(t *testing.T) {
	// Interleaved series must not share trend state.
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 1000})

	engine.Process(sample("a", 0, 100))
	engine.Process(sample("b", 0, -100))
	pa := engine.Process(sample("a", 1, 100))
	pb := engine.Process(sample("b", 1, -100))

	assertClose(t, "series a trend", pa.Trend, 100, 0)
	assertClose(t, "series b trend", pb.Trend, -100, 0)
}

func TestEngine_ProcessPeek_UnseenSeries(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 10})
	if _, ok := engine.ProcessPeek(sample("ghost", 0, 1)); ok {
		t.Fatal("peek on unseen series should report not-ready")
	}
}

func TestEngine_ProcessPeek_DoesNotMutateState(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 10})
	engine.Process(sample("s", 0, 10))
	engine.Process(sample("s", 1, 10))

	// Peek with a wildly different value
	peek, ok := engine.ProcessPeek(sample("s", 2, 99999))
	if !ok {
		t.Fatal("peek should be ready after Process")
	}
	if !peek.Live {
		t.Error("peek result should carry Live=true")
	}

	// The next real sample must be unaffected by the peek.
	p := engine.Process(sample("s", 2, 10))
	assertClose(t, "trend after peek", p.Trend, 10, 0)
}

func TestEngine_ProcessPeek_Value(t *testing.T) {
	// Seed 10, then peek 20 at alpha=0.5: trend would be 0.5*20+0.5*10 = 15,
	// deviation |20-15| = 5.
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 4})
	engine.Process(sample("s", 0, 10))

	peek, ok := engine.ProcessPeek(sample("s", 1, 20))
	if !ok {
		t.Fatal("peek not ready")
	}
	assertClose(t, "peek trend", peek.Trend, 15, 0)
	assertClose(t, "peek deviation", peek.Deviation, 5, 0)
	if !peek.Anomaly {
		t.Error("peek deviation 5 > threshold 4 should flag")
	}
}

func TestEngine_SetThreshold_AffectsSubsequentOnly(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0, Threshold: 100})
	engine.Process(sample("s", 0, 0))

	// Deviation 50 under threshold 100: clean.
	if p := engine.Process(sample("s", 1, 50)); p.Anomaly {
		t.Error("deviation 50 should pass under threshold 100")
	}

	engine.SetThreshold(10)
	if got := engine.Threshold(); got != 10 {
		t.Fatalf("Threshold() = %v, want 10", got)
	}

	// Same deviation now flags under the tightened threshold.
	if p := engine.Process(sample("s", 2, 50)); !p.Anomaly {
		t.Error("deviation 50 should flag under threshold 10")
	}
}

func TestEngine_Run_DropsWhenOutputFull(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 10})

	var dropped int
	engine.OnDrop = func(p model.Point) { dropped++ }

	in := make(chan model.Sample, 8)
	out := make(chan model.Point, 1) // room for one point only

	for i := 0; i < 5; i++ {
		in <- sample("s", i, float64(i))
	}
	close(in)

	engine.Run(context.Background(), in, out)

	if len(out) != 1 {
		t.Fatalf("out holds %d points, want 1", len(out))
	}
	if engine.Drops() != 4 {
		t.Errorf("Drops() = %d, want 4", engine.Drops())
	}
	if dropped != 4 {
		t.Errorf("OnDrop fired %d times, want 4", dropped)
	}
}

func TestEngine_Run_StopsOnContextCancel(t *testing.T) {
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 10})
	ctx, cancel := context.WithCancel(context.Background())

	in := make(chan model.Sample)
	out := make(chan model.Point, 16)

	done := make(chan struct{})
	go func() {
		engine.Run(ctx, in, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on context cancel")
	}
}

func TestEngine_SpreadTracking(t *testing.T) {
	// Seed 0, then 10 at alpha=0.5: diff=10, mean=5,
	// var = (1-0.5)*(0 + 0.5*10*10) = 25 → stddev 5.
	engine := NewEngine(Config{Alpha: 0.5, Threshold: 100, TrackSpread: true})
	engine.Process(sample("s", 0, 0))
	p := engine.Process(sample("s", 1, 10))
	assertClose(t, "spread stddev", p.Spread, 5, 1e-9)

	// Spread never drives the decision: deviation 5 < threshold 100.
	if p.Anomaly {
		t.Error("spread tracking must not affect the anomaly flag")
	}
}
