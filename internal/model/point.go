package model

import (
	"encoding/json"
	"time"
)

// Point is the streaming engine's per-sample output: the sample, the trend
// value computed from it, and the outcome of the deviation test. Points
// exist only on the live path; a one-shot pass returns the aligned
// signal/trend/anomaly sequences directly.
type Point struct {
	Series    string    `json:"series"`
	Index     int       `json:"index"`
	Value     float64   `json:"value"`
	Trend     float64   `json:"trend"`
	Deviation float64   `json:"deviation"`
	Anomaly   bool      `json:"anomaly"`
	Spread    float64   `json:"spread,omitempty"` // running stddev, when spread tracking is on
	Live      bool      `json:"live,omitempty"`   // true for non-mutating peek previews
	TS        time.Time `json:"ts"`
}

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *Point) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
