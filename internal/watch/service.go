package watch

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftwatch/internal/detector"
	"driftwatch/internal/live"
	"driftwatch/internal/metrics"
	"driftwatch/internal/model"
	"driftwatch/internal/notification"
	"driftwatch/internal/signal/bus"
	"driftwatch/internal/signal/feed"
	redisstore "driftwatch/internal/store/redis"
	sqlitestore "driftwatch/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

const (
	sampleBufSize    = 5000
	subscriberBuf    = 1024
	breakerFailures  = 5
	breakerReset     = 10 * time.Second
	eventBufferLimit = 10000
	livenessInterval = 15 * time.Second
)

// Config holds everything the watch service needs. Zero values fall back to
// the same defaults the env loader uses.
type Config struct {
	// FeedURL is the WebSocket sample source. Required.
	FeedURL string

	Alpha       float64
	Threshold   float64
	TrackSpread bool

	// Series restricts the pipeline to the listed series. Empty means all.
	Series []string

	// RedisAddr enables the Redis publisher when non-empty.
	RedisAddr     string
	RedisPassword string

	SQLitePath  string
	LiveAddr    string
	MetricsAddr string

	// Record stores incoming signals as runs in SQLite.
	Record bool
	// RecordNote is stored on runs created by the live recorder.
	RecordNote string

	StallAfter    time.Duration
	SnapshotEvery time.Duration

	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

func (c *Config) defaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "data/driftwatch.db"
	}
	if c.LiveAddr == "" {
		c.LiveAddr = ":8090"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 30 * time.Second
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = time.Minute
	}
	if c.RecordNote == "" {
		c.RecordNote = "live capture"
	}
}

// Service is the top-level orchestrator for the live pipeline. It wires the
// feed, the streaming engine, the stores, the live server and the alert
// dispatcher, and manages their lifecycle.
type Service struct {
	cfg Config

	engine *detector.Engine
	feed   *feed.Ingest
	fanout *bus.FanOut
	stall  *StallWatch

	sqlWriter *sqlitestore.Writer
	pub       *redisstore.Publisher
	events    *redisstore.BufferedPublisher

	live    *live.Server
	follow  *live.FollowState
	liveSrv *http.Server

	alerts *notification.Dispatcher

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server

	// subNames indexes the fan-out outputs in Subscribe order.
	subNames []string
}

// New creates a Service from the given Config. It connects to the feed URL
// lazily but opens SQLite and Redis eagerly; both backends degrade to
// warnings when unavailable.
func New(cfg Config) (*Service, error) {
	cfg.defaults()
	if cfg.FeedURL == "" {
		return nil, errors.New("watch: feed URL required (FEED_URL or --follow)")
	}

	svc := &Service{
		cfg:    cfg,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
		stall:  NewStallWatch(cfg.StallAfter),
		fanout: bus.New(subscriberBuf),
	}

	var err error
	svc.feed, err = feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		return nil, err
	}

	// ---- Open SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[watch] WARNING: sqlite init failed: %v (recording and snapshots disabled)", err)
		svc.sqlWriter = nil
	}
	svc.health.SetSQLiteOK(svc.sqlWriter != nil)

	// ---- Connect to Redis (optional) ----
	if cfg.RedisAddr == "" {
		svc.health.SetRedisEnabled(false)
	} else {
		svc.initRedis()
	}

	// ---- Notifications ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	svc.alerts = notification.NewDispatcher(0, notifiers...)
	svc.alerts.OnSend = func(level notification.AlertLevel) {
		svc.prom.NotificationsTotal.WithLabelValues(string(level)).Inc()
	}

	// ---- Live server (follow mode) ----
	hub := live.NewHub()
	hub.OnEnvelope = func(channel string) { svc.prom.BroadcastsTotal.WithLabelValues(channel).Inc() }
	hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	hub.OnSlowClient = func() { svc.prom.SlowWSClients.Inc() }

	svc.follow = live.NewFollowState(followLabel(cfg.Series), cfg.Alpha, cfg.Threshold)
	svc.live = live.NewServer(hub)
	svc.live.SetFollow(svc.follow)
	svc.live.SetHealthFunc(svc.health.Healthy)

	return svc, nil
}

// initRedis builds the publisher, circuit breaker and outage buffer, and
// wires their hooks into metrics and alerts.
func (svc *Service) initRedis() {
	pub, err := redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     svc.cfg.RedisAddr,
		Password: svc.cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[watch] WARNING: redis init failed: %v (publishing disabled)", err)
		svc.health.SetRedisConnected(false)
		return
	}
	svc.pub = pub
	svc.health.SetRedisConnected(true)

	cb := redisstore.NewCircuitBreaker(breakerFailures, breakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		svc.alerts.BreakerAlert(context.Background(), from.String(), to.String())
	}

	svc.events = redisstore.NewBufferedPublisher(pub, cb, eventBufferLimit)
	svc.events.OnBuffer = func() { svc.prom.RedisBufferedEvents.Inc() }
	svc.events.OnFlush = func(count int) {
		log.Printf("[watch] redis recovered, %d buffered events replayed", count)
	}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	slog.Info("starting watch pipeline", "feed", cfg.FeedURL, "alpha", cfg.Alpha, "threshold", cfg.Threshold)

	// ---- Restore engine from snapshot ----
	if err := svc.restoreEngine(); err != nil {
		return err
	}
	svc.health.SetEngineOK(true)
	svc.engine.OnAnomaly = func(a model.Anomaly) { svc.handleAnomaly(ctx, a) }
	svc.live.SetThresholdFunc(svc.engine.SetThreshold)

	// ---- Metrics + health server ----
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.metricsSrv.Start()
	svc.startLiveness(ctx)

	// ---- Live server ----
	svc.liveSrv = &http.Server{Addr: cfg.LiveAddr, Handler: svc.live.Router()}
	go func() {
		log.Printf("[live] server listening on %s", cfg.LiveAddr)
		if err := svc.liveSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[live] server error: %v", err)
		}
	}()

	// ---- Pipeline channels ----
	samples := make(chan model.Sample, sampleBufSize)
	detectCh := svc.fanout.Subscribe()
	svc.subNames = []string{"detect"}
	var recordCh <-chan model.Sample
	if svc.recordingEnabled() {
		recordCh = svc.fanout.Subscribe()
		svc.subNames = append(svc.subNames, "record")
	}
	meterCh := svc.fanout.Subscribe()
	svc.subNames = append(svc.subNames, "meter")

	svc.fanout.OnDrop = func(idx int) {
		svc.prom.FanoutDropsTotal.WithLabelValues(svc.subscriberName(idx)).Inc()
		svc.prom.DroppedSamples.Inc()
	}

	// ---- Feed hooks ----
	svc.feed.OnConnect = func() { svc.health.SetFeedConnected(true) }
	svc.feed.OnReconnect = func() {
		svc.health.SetFeedConnected(false)
		svc.prom.FeedReconnects.Inc()
	}

	// ---- Stall hooks ----
	svc.stall.OnStall = func(series string, gap time.Duration) {
		svc.prom.StallsTotal.Inc()
		svc.alerts.StallAlert(ctx, series, gap)
	}
	svc.stall.OnRecover = func(series string, gap time.Duration) {
		svc.alerts.RecoveryAlert(ctx, series, gap)
	}

	// ---- Start subsystems ----
	feedOut := samples
	if len(cfg.Series) > 0 {
		raw := make(chan model.Sample, sampleBufSize)
		go svc.filterLoop(ctx, raw, samples)
		feedOut = raw
	}
	go func() {
		if err := svc.feed.Start(ctx, feedOut); err != nil {
			log.Printf("[watch] feed stopped: %v", err)
		}
	}()
	go svc.fanout.Run(ctx, samples)
	go svc.detectLoop(ctx, detectCh)
	if recordCh != nil {
		go svc.recordLoop(ctx, recordCh)
	}
	go svc.meterLoop(ctx, meterCh)
	go svc.stallLoop(ctx)
	if svc.sqlWriter != nil {
		go svc.snapshotLoop(ctx)
	}

	// ---- Startup banner ----
	log.Println("[watch] ╔════════════════════════════════════════════════════╗")
	log.Println("[watch] ║  driftwatch live pipeline active                   ║")
	log.Println("[watch] ║                                                    ║")
	log.Println("[watch] ║  [WS Feed] → [Detector] → [Live / Redis / SQLite]  ║")
	log.Printf("[watch] ║  alpha=%.3f threshold=%.3f stall=%s          ║", cfg.Alpha, cfg.Threshold, cfg.StallAfter)
	log.Printf("[watch] ║  live=%s metrics=%s                     ║", cfg.LiveAddr, cfg.MetricsAddr)
	log.Println("[watch] ╚════════════════════════════════════════════════════╝")

	// Block until context cancelled
	<-ctx.Done()

	svc.shutdown()
	return nil
}

// Live exposes the live server, mainly so callers can install a presenter
// or inspect state in tests.
func (svc *Service) Live() *live.Server { return svc.live }

// startLiveness wires the periodic dependency prober with whatever backends
// are actually connected.
func (svc *Service) startLiveness(ctx context.Context) {
	var rdb *goredis.Client
	if svc.pub != nil {
		rdb = svc.pub.Client()
	}
	var db *sql.DB
	if svc.sqlWriter != nil {
		db = svc.sqlWriter.DB()
	}
	svc.health.StartLivenessChecker(ctx, rdb, db, livenessInterval)
}

// shutdown saves a final snapshot and closes all connections.
func (svc *Service) shutdown() {
	slog.Info("shutdown signal received, saving final snapshot")

	if svc.engine != nil && svc.sqlWriter != nil {
		if err := svc.saveSnapshot(); err != nil {
			log.Printf("[watch] final snapshot error: %v", err)
		} else {
			log.Println("[watch] final snapshot saved")
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if svc.liveSrv != nil {
		svc.liveSrv.Shutdown(shutCtx)
	}
	if svc.metricsSrv != nil {
		svc.metricsSrv.Stop(shutCtx)
	}
	if svc.events != nil {
		svc.events.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}

	slog.Info("shutdown complete")
}

// handleAnomaly runs for every flagged point: it counts, publishes and
// alerts. Called from the engine's OnAnomaly hook outside the engine lock.
func (svc *Service) handleAnomaly(ctx context.Context, a model.Anomaly) {
	svc.prom.AnomaliesTotal.WithLabelValues(a.Series).Inc()
	if svc.events != nil {
		svc.events.PublishAnomaly(ctx, a)
	}
	svc.alerts.AnomalyAlert(ctx, a, svc.engine.Threshold())
}

func (svc *Service) recordingEnabled() bool {
	return svc.cfg.Record && svc.sqlWriter != nil
}

func (svc *Service) subscriberName(idx int) string {
	if idx >= 0 && idx < len(svc.subNames) {
		return svc.subNames[idx]
	}
	return "other"
}

// followLabel names the followed stream for the live server's run info.
func followLabel(series []string) string {
	if len(series) == 0 {
		return "feed"
	}
	return strings.Join(series, ",")
}
