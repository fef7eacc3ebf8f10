package model

import "time"

// RunMeta describes one recorded run: the series identity, the generator
// seed, and the detector configuration in effect when the signal was
// captured. Only the input signal is stored with it; trend and anomaly
// sequences are recomputed on every replay.
type RunMeta struct {
	ID        int64     `json:"id"`
	Series    string    `json:"series"`
	Seed      int64     `json:"seed"`
	Points    int       `json:"points"`
	Alpha     float64   `json:"alpha"`
	Threshold float64   `json:"threshold"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
