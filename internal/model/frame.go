package model

import (
	"encoding/json"
	"time"
)

// Frame is one step of the incremental reveal: everything a renderer needs
// to draw index K without looking past it. Across frames 0..K exactly the
// anomalies with Index <= K have been carried, each on the frame where it
// occurred.
type Frame struct {
	Series   string    `json:"series"`
	Index    int       `json:"index"`
	Value    float64   `json:"value"`
	Trend    float64   `json:"trend"`
	Anomaly  *Anomaly  `json:"anomaly,omitempty"` // set when this index is flagged
	Revealed int       `json:"revealed"`          // frames revealed so far, this one included
	Total    int       `json:"total"`             // frames in the full run, 0 when unbounded
	TS       time.Time `json:"ts"`
}

// JSON returns the JSON-encoded frame (ignoring errors for hot-path usage).
func (f *Frame) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
