package live

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	p50, p90, p99 := lt.Percentiles()
	if p50 != 0 || p90 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%f,%f,%f)", p50, p90, p99)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	p50, p90, p99 := lt.Percentiles()
	if p50 != 42.5 || p90 != 42.5 || p99 != 42.5 {
		t.Errorf("single sample: expected all 42.5, got (%f,%f,%f)", p50, p90, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)

	// Record 100 samples: 1.0, 2.0, ..., 100.0
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p50, p90, p99 := lt.Percentiles()

	// Interpolated: p50 of 1..100 = 50.5, p90 = 90.1, p99 = 99.01
	if math.Abs(p50-50.5) > 1e-9 {
		t.Errorf("p50: got %f, want 50.5", p50)
	}
	if math.Abs(p90-90.1) > 1e-9 {
		t.Errorf("p90: got %f, want 90.1", p90)
	}
	if math.Abs(p99-99.01) > 1e-9 {
		t.Errorf("p99: got %f, want 99.01", p99)
	}
}

func TestLatencyTracker_Interpolation(t *testing.T) {
	lt := NewLatencyTracker(100)
	for _, v := range []float64{10, 20, 30, 40} {
		lt.Record(v)
	}

	p50, p90, _ := lt.Percentiles()

	// rank(p50) = 0.5*3 = 1.5 -> 20 + 0.5*(30-20) = 25
	if math.Abs(p50-25) > 1e-9 {
		t.Errorf("p50: got %f, want 25", p50)
	}
	// rank(p90) = 0.9*3 = 2.7 -> 30 + 0.7*(40-30) = 37
	if math.Abs(p90-37) > 1e-9 {
		t.Errorf("p90: got %f, want 37", p90)
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10) // tiny capacity

	// Record 20 samples, first 10 are evicted
	for i := 1; i <= 20; i++ {
		lt.Record(float64(i))
	}

	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}

	p50, _, _ := lt.Percentiles()

	// Buffer holds 11..20; interpolated p50 = 15.5
	if math.Abs(p50-15.5) > 1e-9 {
		t.Errorf("p50 after wraparound: got %f, want 15.5", p50)
	}
}

func TestLatencyTracker_Count(t *testing.T) {
	lt := NewLatencyTracker(100)

	if lt.Count() != 0 {
		t.Errorf("initial count: got %d, want 0", lt.Count())
	}
	for i := 0; i < 5; i++ {
		lt.Record(float64(i))
	}
	if lt.Count() != 5 {
		t.Errorf("after 5 records: got %d, want 5", lt.Count())
	}
}
