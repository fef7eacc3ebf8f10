package model

import "time"

// Detection bundles the aligned outputs of one detector pass together with
// the configuration that produced them. Signal, Trend and Anomalies are
// immutable once built; both presentation modes (static render, incremental
// reveal) consume a Detection without ever recomputing it.
//
// Invariants: len(Trend) == len(Signal); Trend[0] == Signal[0]; Anomalies
// are strictly increasing by Index within [1, len(Signal)).
type Detection struct {
	Series    string    `json:"series"`
	Alpha     float64   `json:"alpha"`
	Threshold float64   `json:"threshold"`
	Seed      int64     `json:"seed,omitempty"` // generator seed, 0 when signal was loaded
	Signal    []float64 `json:"signal"`
	Trend     []float64 `json:"trend"`
	Anomalies []Anomaly `json:"anomalies"`
	CreatedAt time.Time `json:"created_at"`
}

// Len returns the number of samples in the pass.
func (d *Detection) Len() int { return len(d.Signal) }
