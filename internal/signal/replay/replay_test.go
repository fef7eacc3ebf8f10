package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"driftwatch/internal/model"
)

// memReader is an in-memory RecordingReader with a single run.
type memReader struct {
	meta    model.RunMeta
	samples []model.Sample
}

func (m *memReader) ListRuns(limit int) ([]model.RunMeta, error) { return []model.RunMeta{m.meta}, nil }
func (m *memReader) ReadRun(id int64) (model.RunMeta, error) {
	if id != m.meta.ID {
		return model.RunMeta{}, errors.New("run not found")
	}
	return m.meta, nil
}
func (m *memReader) ReadSamples(id int64) ([]model.Sample, error) { return m.samples, nil }
func (m *memReader) Close() error                                 { return nil }

func fixtureReader(n int) *memReader {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]model.Sample, n)
	for i := range samples {
		samples[i] = model.Sample{
			Series: "demo",
			Index:  i,
			Value:  float64(i) * 1.5,
			TS:     base.Add(time.Duration(i) * time.Second),
		}
	}
	return &memReader{
		meta:    model.RunMeta{ID: 7, Series: "demo", Points: n},
		samples: samples,
	}
}

func TestReplay_EmitsAllInOrder(t *testing.T) {
	reader := fixtureReader(50)
	r := New(reader)

	out := make(chan model.Sample, 64)
	// speed 0 = no pacing, so the test runs instantly
	if err := r.Run(context.Background(), 7, 0, out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	close(out)

	i := 0
	for s := range out {
		if s.Index != i {
			t.Fatalf("sample %d: expected index %d, got %d", i, i, s.Index)
		}
		if s.Value != float64(i)*1.5 {
			t.Fatalf("sample %d: expected value %v, got %v", i, float64(i)*1.5, s.Value)
		}
		i++
	}
	if i != 50 {
		t.Fatalf("expected 50 samples, got %d", i)
	}
}

func TestReplay_UnknownRun(t *testing.T) {
	r := New(fixtureReader(3))
	out := make(chan model.Sample, 8)
	if err := r.Run(context.Background(), 99, 0, out); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestReplay_CancelStopsEarly(t *testing.T) {
	reader := fixtureReader(1000)
	r := New(reader)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Sample) // unbuffered: Run blocks on send

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx, 7, 0, out) }()

	// Drain a few samples, then cancel mid-run.
	for i := 0; i < 10; i++ {
		<-out
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop after cancel")
	}
}

func TestReplay_SourceAdapter(t *testing.T) {
	reader := fixtureReader(10)
	var src model.SampleSource = New(reader).Source(7, 0)

	out := make(chan model.Sample, 16)
	if err := src.Start(context.Background(), out); err != nil {
		t.Fatalf("source start failed: %v", err)
	}
	close(out)

	n := 0
	for range out {
		n++
	}
	if n != 10 {
		t.Fatalf("expected 10 samples via source, got %d", n)
	}
}
