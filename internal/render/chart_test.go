package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"driftwatch/internal/detector"
	"driftwatch/internal/model"
)

func TestWriteSVG_Structure(t *testing.T) {
	d := twoAnomalyDetection(t)

	var buf bytes.Buffer
	if err := WriteSVG(&buf, d, ChartConfig{}); err != nil {
		t.Fatalf("write svg: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<svg") {
		t.Fatal("output does not start with <svg")
	}
	if !strings.Contains(out, "</svg>") {
		t.Fatal("output is not terminated")
	}
	// One polyline per series: signal and trend
	if got := strings.Count(out, "<polyline"); got != 2 {
		t.Fatalf("expected 2 polylines, got %d", got)
	}
	// One circle per anomaly
	if got := strings.Count(out, "<circle"); got != len(d.Anomalies) {
		t.Fatalf("expected %d anomaly circles, got %d", len(d.Anomalies), got)
	}
	for _, color := range []string{signalColor, trendColor, anomalyColor} {
		if !strings.Contains(out, color) {
			t.Errorf("missing color %s", color)
		}
	}
	// Legend labels
	for _, label := range []string{"signal", "trend", "anomaly"} {
		if !strings.Contains(out, ">"+label+"<") {
			t.Errorf("missing legend label %q", label)
		}
	}
}

func TestWriteSVG_EmptyDetection(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSVG(&buf, nil, ChartConfig{})
	if !errors.Is(err, ErrEmptyDetection) {
		t.Fatalf("expected ErrEmptyDetection, got %v", err)
	}
}

func TestWriteSVG_SinglePoint(t *testing.T) {
	d, err := detector.Analyze("one", []float64{7}, 0.5, 1)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, d, ChartConfig{}); err != nil {
		t.Fatalf("single-point svg failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty output for single-point detection")
	}
}

func TestWriteSVG_TitleEscaped(t *testing.T) {
	d := twoAnomalyDetection(t)
	var buf bytes.Buffer
	if err := WriteSVG(&buf, d, ChartConfig{Title: "a <b> & c"}); err != nil {
		t.Fatalf("write svg: %v", err)
	}
	if strings.Contains(buf.String(), "<b>") {
		t.Fatal("title was not escaped")
	}
	if !strings.Contains(buf.String(), "a &lt;b&gt; &amp; c") {
		t.Fatal("escaped title missing")
	}
}

func TestWriteTable_SummaryAndRows(t *testing.T) {
	d := twoAnomalyDetection(t)

	var buf bytes.Buffer
	if err := WriteTable(&buf, d); err != nil {
		t.Fatalf("write table: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "INDEX") {
		t.Fatal("missing header row")
	}
	if !strings.Contains(out, "2 anomalies in 5 points") {
		t.Fatalf("bad summary line:\n%s", out)
	}
	if !strings.Contains(out, "alpha=0.00 threshold=10.00") {
		t.Fatalf("summary missing config:\n%s", out)
	}
}

func TestWriteTable_NoAnomalies(t *testing.T) {
	d, err := detector.Analyze("flat", []float64{10, 10, 10, 10, 10}, 0.3, 0.01)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, d); err != nil {
		t.Fatalf("write table: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "INDEX") {
		t.Fatal("header should be omitted when there are no anomalies")
	}
	if !strings.Contains(out, "0 anomalies in 5 points") {
		t.Fatalf("bad summary line:\n%s", out)
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	d := twoAnomalyDetection(t)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, d); err != nil {
		t.Fatalf("write json: %v", err)
	}

	var back model.Detection
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Signal) != len(d.Signal) || len(back.Anomalies) != len(d.Anomalies) {
		t.Fatal("round-trip lost data")
	}
	if back.Alpha != d.Alpha || back.Threshold != d.Threshold {
		t.Fatal("round-trip lost config")
	}
}

func TestNiceStep(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.0, 1},
		{2.4, 2},
		{4.0, 5},
		{8.0, 10},
		{24, 20},
		{70, 100},
		{130, 100},
	}
	for _, tc := range cases {
		if got := niceStep(tc.in); got != tc.want {
			t.Errorf("niceStep(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIndexTicks_CoverSignal(t *testing.T) {
	ticks := indexTicks(200, 8)
	if len(ticks) < 4 {
		t.Fatalf("too few ticks: %v", ticks)
	}
	if ticks[0] != 0 {
		t.Fatalf("first tick should be 0, got %d", ticks[0])
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] || ticks[i] > 199 {
			t.Fatalf("bad tick sequence: %v", ticks)
		}
	}
}
