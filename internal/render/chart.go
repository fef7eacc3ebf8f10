// Package render turns a finished Detection into presentation output: a
// static SVG chart, a plain-text anomaly table, a JSON dump, or a
// frame-by-frame reveal via Cursor. Rendering never mutates the Detection
// and never re-runs detection.
package render

import (
	"errors"
	"io"
	"math"
	"strings"

	"driftwatch/internal/model"
)

// ErrEmptyDetection is returned when asked to render a nil or empty Detection.
var ErrEmptyDetection = errors.New("render: empty detection")

const (
	defaultWidth  = 960
	defaultHeight = 480

	marginLeft   = 56
	marginRight  = 16
	marginTop    = 40
	marginBottom = 36

	signalColor  = "#3b82f6"
	trendColor   = "#eab308"
	anomalyColor = "#ef4444"
	axisColor    = "#9ca3af"
	gridColor    = "#e5e7eb"
	textColor    = "#374151"
)

// ChartConfig controls the SVG output. Zero values pick defaults.
type ChartConfig struct {
	Width  int
	Height int

	// Fixed y-range. Both zero selects the default [-120, 120].
	YMin float64
	YMax float64

	// AutoY derives the y-range from the data with 10% headroom,
	// overriding YMin/YMax.
	AutoY bool

	Title string
}

func (c *ChartConfig) defaults() {
	if c.Width == 0 {
		c.Width = defaultWidth
	}
	if c.Height == 0 {
		c.Height = defaultHeight
	}
	if c.YMin == 0 && c.YMax == 0 {
		c.YMin, c.YMax = -120, 120
	}
}

// WriteSVG renders the detection as a self-contained SVG document:
// signal polyline (blue), trend polyline (yellow), anomaly markers
// (red circles), axes with ticks, and a legend. Pure string assembly,
// one Write call.
func WriteSVG(w io.Writer, d *model.Detection, cfg ChartConfig) error {
	if d == nil || len(d.Signal) == 0 {
		return ErrEmptyDetection
	}
	cfg.defaults()

	ymin, ymax := cfg.YMin, cfg.YMax
	if cfg.AutoY {
		ymin, ymax = autoRange(d.Signal, d.Trend)
	}
	if ymax <= ymin {
		ymax = ymin + 1
	}

	n := len(d.Signal)
	plotW := float64(cfg.Width - marginLeft - marginRight)
	plotH := float64(cfg.Height - marginTop - marginBottom)

	x := func(i int) float64 {
		if n == 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + float64(i)/float64(n-1)*plotW
	}
	y := func(v float64) float64 {
		// Clamp out-of-range values to the plot edge, matching a fixed-ylim plot.
		if v < ymin {
			v = ymin
		}
		if v > ymax {
			v = ymax
		}
		return marginTop + (ymax-v)/(ymax-ymin)*plotH
	}

	var b strings.Builder
	b.Grow(64 * n)

	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="` + model.Itoa(cfg.Width) +
		`" height="` + model.Itoa(cfg.Height) +
		`" viewBox="0 0 ` + model.Itoa(cfg.Width) + ` ` + model.Itoa(cfg.Height) + `">` + "\n")
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>` + "\n")

	title := cfg.Title
	if title == "" {
		title = d.Series
	}
	if title != "" {
		b.WriteString(`<text x="` + model.Itoa(cfg.Width/2) + `" y="24" text-anchor="middle" ` +
			`font-family="monospace" font-size="14" fill="` + textColor + `">` +
			escapeText(title) + `</text>` + "\n")
	}

	// Horizontal grid + y tick labels
	for _, tv := range niceTicks(ymin, ymax, 6) {
		py := y(tv)
		b.WriteString(`<line x1="` + model.Itoa(marginLeft) + `" y1="` + model.Ftoa(py, 1) +
			`" x2="` + model.Itoa(cfg.Width-marginRight) + `" y2="` + model.Ftoa(py, 1) +
			`" stroke="` + gridColor + `"/>` + "\n")
		b.WriteString(`<text x="` + model.Itoa(marginLeft-8) + `" y="` + model.Ftoa(py+4, 1) +
			`" text-anchor="end" font-family="monospace" font-size="11" fill="` + textColor + `">` +
			model.Ftoa(tv, 0) + `</text>` + "\n")
	}

	// X tick labels (sample indices)
	for _, tv := range indexTicks(n, 8) {
		px := x(tv)
		b.WriteString(`<line x1="` + model.Ftoa(px, 1) + `" y1="` + model.Itoa(cfg.Height-marginBottom) +
			`" x2="` + model.Ftoa(px, 1) + `" y2="` + model.Itoa(cfg.Height-marginBottom+5) +
			`" stroke="` + axisColor + `"/>` + "\n")
		b.WriteString(`<text x="` + model.Ftoa(px, 1) + `" y="` + model.Itoa(cfg.Height-marginBottom+18) +
			`" text-anchor="middle" font-family="monospace" font-size="11" fill="` + textColor + `">` +
			model.Itoa(tv) + `</text>` + "\n")
	}

	// Axes
	b.WriteString(`<line x1="` + model.Itoa(marginLeft) + `" y1="` + model.Itoa(marginTop) +
		`" x2="` + model.Itoa(marginLeft) + `" y2="` + model.Itoa(cfg.Height-marginBottom) +
		`" stroke="` + axisColor + `"/>` + "\n")
	b.WriteString(`<line x1="` + model.Itoa(marginLeft) + `" y1="` + model.Itoa(cfg.Height-marginBottom) +
		`" x2="` + model.Itoa(cfg.Width-marginRight) + `" y2="` + model.Itoa(cfg.Height-marginBottom) +
		`" stroke="` + axisColor + `"/>` + "\n")

	// Signal and trend polylines
	writePolyline(&b, d.Signal, x, y, signalColor, "1.5")
	writePolyline(&b, d.Trend, x, y, trendColor, "2")

	// Anomaly markers
	for _, a := range d.Anomalies {
		b.WriteString(`<circle cx="` + model.Ftoa(x(a.Index), 1) + `" cy="` + model.Ftoa(y(a.Value), 1) +
			`" r="4" fill="` + anomalyColor + `"><title>idx ` + model.Itoa(a.Index) +
			`: ` + model.Ftoa(a.Value, 2) + ` (dev ` + model.Ftoa(a.Deviation, 2) + `)</title></circle>` + "\n")
	}

	writeLegend(&b, cfg.Width)

	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writePolyline(b *strings.Builder, vals []float64, x func(int) float64, y func(float64) float64, color, width string) {
	b.WriteString(`<polyline fill="none" stroke="` + color + `" stroke-width="` + width + `" points="`)
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(model.Ftoa(x(i), 1))
		b.WriteByte(',')
		b.WriteString(model.Ftoa(y(v), 1))
	}
	b.WriteString(`"/>` + "\n")
}

func writeLegend(b *strings.Builder, width int) {
	entries := []struct {
		label string
		color string
	}{
		{"signal", signalColor},
		{"trend", trendColor},
		{"anomaly", anomalyColor},
	}
	lx := width - marginRight - 220
	for i, e := range entries {
		ox := lx + i*76
		b.WriteString(`<rect x="` + model.Itoa(ox) + `" y="14" width="10" height="10" fill="` + e.color + `"/>` + "\n")
		b.WriteString(`<text x="` + model.Itoa(ox+14) + `" y="23" font-family="monospace" font-size="11" fill="` +
			textColor + `">` + e.label + `</text>` + "\n")
	}
}

// autoRange returns a y-range covering both series with 10% headroom.
func autoRange(signal, trend []float64) (float64, float64) {
	lo, hi := signal[0], signal[0]
	for _, v := range signal {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for _, v := range trend {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

// niceTicks returns ~count tick values on a 1/2/5 step grid covering [lo, hi].
func niceTicks(lo, hi float64, count int) []float64 {
	if count < 2 {
		count = 2
	}
	step := niceStep((hi - lo) / float64(count))
	var ticks []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step/2; v += step {
		ticks = append(ticks, v)
	}
	return ticks
}

func niceStep(raw float64) float64 {
	if raw <= 0 {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch norm := raw / mag; {
	case norm < 1.5:
		return mag
	case norm < 3:
		return 2 * mag
	case norm < 7:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// indexTicks returns integer sample-index ticks for a signal of length n.
func indexTicks(n, count int) []int {
	if n <= 1 {
		return []int{0}
	}
	step := int(niceStep(float64(n-1) / float64(count)))
	if step < 1 {
		step = 1
	}
	var ticks []int
	for i := 0; i < n; i += step {
		ticks = append(ticks, i)
	}
	return ticks
}

func escapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
