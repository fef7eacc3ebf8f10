package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the detection pipeline.
type Metrics struct {
	SamplesTotal   prometheus.Counter
	PointsTotal    prometheus.Counter
	AnomaliesTotal *prometheus.CounterVec // labels: series
	FeedReconnects prometheus.Counter
	DroppedSamples prometheus.Counter

	DetectDur prometheus.Histogram
	DetectLag prometheus.Gauge

	// Storage metrics
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	SnapshotsTotal  prometheus.Counter

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Backpressure metrics
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Circuit breaker metrics
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedEvents      prometheus.Counter

	// Live hub metrics
	WSClients       prometheus.Gauge
	BroadcastsTotal *prometheus.CounterVec // labels: channel
	SlowWSClients   prometheus.Counter

	// Stall watch metrics
	FeedStalled prometheus.Gauge // 0=flowing, 1=stalled
	StallsTotal prometheus.Counter

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec // labels: level
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_samples_total",
			Help: "Total samples ingested from the feed",
		}),
		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_points_total",
			Help: "Total points emitted by the detection engine",
		}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_anomalies_total",
			Help: "Total anomalies flagged (by series)",
		}, []string{"series"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_feed_reconnects_total",
			Help: "Total feed WebSocket reconnection attempts",
		}),
		DroppedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_dropped_samples_total",
			Help: "Samples dropped (ring or channel full)",
		}),

		DetectDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftwatch_detect_duration_seconds",
			Help:    "Engine processing latency per sample",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		DetectLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driftwatch_detect_lag_seconds",
			Help: "Lag between sample timestamp and point emission time",
		}),

		// Storage
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftwatch_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftwatch_sqlite_commit_duration_seconds",
			Help:    "SQLite block commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_snapshots_total",
			Help: "Engine snapshots persisted",
		}),

		// Ring buffer
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped samples)",
		}),

		// Backpressure
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_fanout_drops_total",
			Help: "Samples dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "driftwatch_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		// Circuit breaker
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driftwatch_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_redis_buffered_events_total",
			Help: "Events buffered locally while the Redis circuit was open",
		}),

		// Live hub
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driftwatch_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_broadcasts_total",
			Help: "Envelopes broadcast to the hub (by channel)",
		}, []string{"channel"}),
		SlowWSClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_slow_ws_clients_total",
			Help: "Envelopes dropped because a client send buffer was full",
		}),

		// Stall watch
		FeedStalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driftwatch_feed_stalled",
			Help: "Feed stall state (0=flowing, 1=stalled)",
		}),
		StallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_stalls_total",
			Help: "Times the feed went stale past the stall window",
		}),

		// Notifications
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_notifications_total",
			Help: "Notifications sent (by level)",
		}, []string{"level"}),
	}

	prometheus.MustRegister(
		m.SamplesTotal,
		m.PointsTotal,
		m.AnomaliesTotal,
		m.FeedReconnects,
		m.DroppedSamples,
		m.DetectDur,
		m.DetectLag,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.SnapshotsTotal,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedEvents,
		m.WSClients,
		m.BroadcastsTotal,
		m.SlowWSClients,
		m.FeedStalled,
		m.StallsTotal,
		m.NotificationsTotal,
	)

	return m
}

// HealthStatus represents the pipeline health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastSampleTime time.Time `json:"last_sample_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	Stalled        bool      `json:"stalled"`
	Series         []string  `json:"series"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		RedisEnabled: true,
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSampleTime(t time.Time) {
	h.mu.Lock()
	h.LastSampleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// SetRedisEnabled marks whether Redis is configured at all. A disabled
// backend is excluded from the health verdict.
func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStalled(v bool) {
	h.mu.Lock()
	h.Stalled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSeries(series []string) {
	h.mu.Lock()
	h.Series = series
	h.mu.Unlock()
}

// Healthy reports whether the pipeline is fully operational, plus a detail
// map for embedding in other health endpoints.
func (h *HealthStatus) Healthy() (bool, map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	redisOK := h.RedisConnected || !h.RedisEnabled
	ok := h.FeedConnected && redisOK && h.SQLiteOK && !h.Stalled
	return ok, map[string]any{
		"feed_connected":  h.FeedConnected,
		"redis_enabled":   h.RedisEnabled,
		"redis_connected": h.RedisConnected,
		"sqlite_ok":       h.SQLiteOK,
		"stalled":         h.Stalled,
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisOK := h.RedisConnected || !h.RedisEnabled
	if !h.FeedConnected || !redisOK || !h.SQLiteOK || h.Stalled {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !redisOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Sample age
	sampleAge := ""
	if !h.LastSampleTime.IsZero() {
		sampleAge = time.Since(h.LastSampleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastSampleTime  string   `json:"last_sample_time"`
		SampleAge       string   `json:"sample_age"`
		Stalled         bool     `json:"stalled"`
		RedisEnabled    bool     `json:"redis_enabled"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		EngineOK        bool     `json:"engine_ok"`
		Series          []string `json:"series"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastSampleTime:  h.LastSampleTime.Format(time.RFC3339),
		SampleAge:       sampleAge,
		Stalled:         h.Stalled,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		Series:          h.Series,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
