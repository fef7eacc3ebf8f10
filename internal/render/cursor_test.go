package render

import (
	"testing"

	"driftwatch/internal/detector"
	"driftwatch/internal/model"
)

// twoAnomalyDetection builds a real detection with anomalies at indices 2 and 4.
// alpha=0 freezes the trend at 3, so 50 (dev 47) and 90 (dev 87) are flagged.
func twoAnomalyDetection(t *testing.T) *model.Detection {
	t.Helper()
	d, err := detector.Analyze("demo", []float64{3, 3, 50, 3, 90}, 0, 10)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(d.Anomalies) != 2 || d.Anomalies[0].Index != 2 || d.Anomalies[1].Index != 4 {
		t.Fatalf("fixture expects anomalies at 2 and 4, got %+v", d.Anomalies)
	}
	return d
}

func TestCursor_FrameCountAndOrder(t *testing.T) {
	d := twoAnomalyDetection(t)
	c, err := NewCursor(d)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}

	if c.Len() != 5 {
		t.Fatalf("expected Len=5, got %d", c.Len())
	}

	for want := 0; want < 5; want++ {
		if c.Done() {
			t.Fatalf("Done() true before frame %d", want)
		}
		f, ok := c.Next()
		if !ok {
			t.Fatalf("Next() exhausted at frame %d", want)
		}
		if f.Index != want {
			t.Fatalf("frame %d: got index %d", want, f.Index)
		}
		if f.Value != d.Signal[want] || f.Trend != d.Trend[want] {
			t.Fatalf("frame %d: value/trend mismatch", want)
		}
		if f.Revealed != want+1 || f.Total != 5 {
			t.Fatalf("frame %d: counters revealed=%d total=%d", want, f.Revealed, f.Total)
		}
	}

	if !c.Done() {
		t.Fatal("Done() false after last frame")
	}
	if _, ok := c.Next(); ok {
		t.Fatal("Next() returned a frame past the end")
	}
}

func TestCursor_AnomalyFilterPerFrame(t *testing.T) {
	d := twoAnomalyDetection(t)
	c, _ := NewCursor(d)

	for k := 0; k < c.Len(); k++ {
		f, _ := c.Next()

		// Brute-force count of anomalies with index <= k
		want := 0
		for _, a := range d.Anomalies {
			if a.Index <= k {
				want++
			}
		}
		if got := len(c.Revealed()); got != want {
			t.Fatalf("after frame %d: revealed %d anomalies, want %d", k, got, want)
		}

		wantHere := k == 2 || k == 4
		if (f.Anomaly != nil) != wantHere {
			t.Fatalf("frame %d: anomaly presence=%v, want %v", k, f.Anomaly != nil, wantHere)
		}
	}
}

func TestCursor_AnomalyPointerAliasesDetection(t *testing.T) {
	d := twoAnomalyDetection(t)
	c, _ := NewCursor(d)

	for {
		f, ok := c.Next()
		if !ok {
			break
		}
		if f.Anomaly == nil {
			continue
		}
		// The frame must reference the detection's anomaly, not a copy.
		found := false
		for i := range d.Anomalies {
			if f.Anomaly == &d.Anomalies[i] {
				found = true
			}
		}
		if !found {
			t.Fatalf("frame %d: anomaly is a copy, not a reference", f.Index)
		}
	}
}

func TestCursor_RewindReplaysIdentically(t *testing.T) {
	d := twoAnomalyDetection(t)
	c, _ := NewCursor(d)

	type step struct {
		index   int
		value   float64
		trend   float64
		anomaly bool
	}
	collect := func() []step {
		var out []step
		for {
			f, ok := c.Next()
			if !ok {
				return out
			}
			out = append(out, step{f.Index, f.Value, f.Trend, f.Anomaly != nil})
		}
	}

	first := collect()
	c.Rewind()
	if c.Pos() != 0 {
		t.Fatalf("Pos after rewind: %d", c.Pos())
	}
	second := collect()

	if len(first) != len(second) {
		t.Fatalf("pass lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("frame %d differs across passes: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCursor_Seek(t *testing.T) {
	d := twoAnomalyDetection(t)
	c, _ := NewCursor(d)

	c.Seek(3)
	if c.Pos() != 3 {
		t.Fatalf("Pos after Seek(3): %d", c.Pos())
	}
	// Anomaly at 2 counts as revealed; the one at 4 does not yet.
	if got := len(c.Revealed()); got != 1 {
		t.Fatalf("revealed after Seek(3): %d, want 1", got)
	}
	f, ok := c.Next()
	if !ok || f.Index != 3 {
		t.Fatalf("expected frame 3 after seek, got %v ok=%v", f.Index, ok)
	}

	// Frame 4 carries the second anomaly even after seeking past frame 2.
	f, _ = c.Next()
	if f.Anomaly == nil || f.Anomaly.Index != 4 {
		t.Fatal("frame 4 lost its anomaly after seek")
	}

	c.Seek(99)
	if !c.Done() {
		t.Fatal("Seek past end should exhaust the cursor")
	}
	if got := len(c.Revealed()); got != 2 {
		t.Fatalf("revealed after Seek(99): %d, want 2", got)
	}

	c.Seek(-5)
	if c.Pos() != 0 || len(c.Revealed()) != 0 {
		t.Fatal("Seek(-5) should clamp to the start")
	}
}

func TestCursor_EmptyDetection(t *testing.T) {
	if _, err := NewCursor(nil); err == nil {
		t.Fatal("expected error for nil detection")
	}
	if _, err := NewCursor(&model.Detection{Series: "x"}); err == nil {
		t.Fatal("expected error for empty signal")
	}
}
