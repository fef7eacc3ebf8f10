package model

import "encoding/json"

// Anomaly marks a sample whose absolute deviation from the smoothed trend
// exceeded the threshold. Index and Value are the core pair: the sample index
// and the original (unsmoothed) sample value. Trend and Deviation record the
// same-step trend estimate and |value-trend| at the moment of the test.
// Index 0 is never an anomaly (it seeds the trend, nothing to compare).
type Anomaly struct {
	Series    string  `json:"series,omitempty"`
	Index     int     `json:"index"`
	Value     float64 `json:"value"`
	Trend     float64 `json:"trend"`
	Deviation float64 `json:"deviation"`
}

// StreamKey returns the Redis stream flagged anomalies are appended to.
func (a *Anomaly) StreamKey() string {
	return "sig:anomalies:" + a.Series
}

// JSON returns the JSON-encoded anomaly (ignoring errors for hot-path usage).
func (a *Anomaly) JSON() []byte {
	b, _ := json.Marshal(a)
	return b
}
