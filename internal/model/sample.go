package model

import (
	"encoding/json"
	"time"
)

// Sample is a single real-valued observation at a fixed position within a
// series. Indices are contiguous and strictly increasing per series; index 0
// seeds the trend and is never tested for deviation.
type Sample struct {
	Series string    `json:"series"`
	Index  int       `json:"index"`
	Value  float64   `json:"value"`
	TS     time.Time `json:"ts"` // UTC emission time
}

// StreamKey returns the Redis stream this sample is appended to.
func (s *Sample) StreamKey() string {
	return "sig:stream:" + s.Series
}

// JSON returns the JSON-encoded sample (ignoring errors for hot-path usage).
func (s *Sample) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
