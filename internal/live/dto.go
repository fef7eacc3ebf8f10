package live

// RunInfo is the REST response type for /api/run.
type RunInfo struct {
	Series    string  `json:"series"`
	Mode      string  `json:"mode"` // "reveal" or "follow"
	Points    int     `json:"points"`
	Alpha     float64 `json:"alpha"`
	Threshold float64 `json:"threshold"`
	Seed      int64   `json:"seed,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// StateOut is the REST response type for /api/state.
type StateOut struct {
	Mode       string  `json:"mode"`
	Position   int     `json:"position"`
	Total      int     `json:"total"` // 0 in follow mode (unbounded)
	Revealed   int     `json:"anomalies_revealed"`
	Paused     bool    `json:"paused"`
	Finished   bool    `json:"finished"`
	Speed      float64 `json:"speed,omitempty"`
	IntervalMs int64   `json:"interval_ms,omitempty"`
	Clients    int     `json:"ws_clients"`
}

// StatusOut is broadcast on the status channel after control changes.
type StatusOut struct {
	State    string  `json:"state"` // playing | paused | restarted | finished | speed
	Position int     `json:"position"`
	Total    int     `json:"total"`
	Speed    float64 `json:"speed"`
	TS       string  `json:"ts"`
}

// LatencyOut is the REST response type for /api/latency.
type LatencyOut struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
}

// ControlReq is the POST body for /api/control.
type ControlReq struct {
	Action string  `json:"action"` // pause | resume | restart | speed
	Speed  float64 `json:"speed,omitempty"`
}

// ThresholdReq is the POST body for /api/threshold.
type ThresholdReq struct {
	Threshold float64 `json:"threshold"`
}
