package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"driftwatch/config"
	"driftwatch/internal/detector"
	"driftwatch/internal/live"
	"driftwatch/internal/logger"
	"driftwatch/internal/signal"
	"driftwatch/internal/watch"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Serve an animated detection over WebSocket.",
	Long: `Serves a detection frame by frame over WebSocket with pause, resume,
restart and speed controls.

Without --follow, the scenario signal is generated and detected up front
and the finished pass is revealed one frame at a time. With --follow, the
full watch service runs instead: samples stream from the feed URL through
the detector with anomaly alerts, Prometheus metrics, optional Redis
event publishing and optional run recording; service settings come from
the environment, and flags override them. In follow mode --series is a
comma-separated filter.`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	addScenarioFlags(liveCmd)
	f := liveCmd.Flags()
	f.String("addr", ":8090", "listen address")
	f.Int("interval", 100, "frame interval in milliseconds")
	f.Float64("speed", 1, "initial playback speed multiplier")
	f.Bool("loop", false, "restart playback when the run completes")
	f.String("follow", "", "feed WebSocket URL to stream through the detector")
	f.Bool("record", false, "store followed signals as runs in SQLite")
	f.String("note", "", "note stored with recorded runs")
	f.String("redis", "", "Redis address for event publishing (empty disables)")
	f.String("db", "", "SQLite database path")
	f.String("metrics", "", "Prometheus listen address")
	rootCmd.AddCommand(liveCmd)
}

func runLive(c *cobra.Command, _ []string) error {
	if c.Flags().Changed("follow") {
		return followFeed(c)
	}
	return serveScenario(c)
}

// serveScenario renders the scenario into a finished detection and serves it
// as a paced reveal.
func serveScenario(c *cobra.Command) error {
	sc, err := resolveScenario(c)
	if err != nil {
		return err
	}

	values := signal.Generate(generatorConfig(sc.Generator))
	d, err := detector.Analyze(sc.Generator.Series, values, sc.Detector.Alpha, sc.Detector.Threshold)
	if err != nil {
		return err
	}
	d.Seed = sc.Generator.Seed

	flags := c.Flags()
	interval := time.Duration(sc.Render.IntervalMs) * time.Millisecond
	if flags.Changed("interval") {
		ms, _ := flags.GetInt("interval")
		interval = time.Duration(ms) * time.Millisecond
	}
	speed, _ := flags.GetFloat64("speed")
	loop, _ := flags.GetBool("loop")
	addr, _ := flags.GetString("addr")

	hub := live.NewHub()
	srv := live.NewServer(hub)

	pres, err := live.NewPresenter(hub, d, live.PresenterConfig{
		Interval: interval,
		Speed:    speed,
		Loop:     loop,
	})
	if err != nil {
		return err
	}
	srv.SetPresenter(pres)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[live] server error: %v", err)
		}
	}()

	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        DRIFTWATCH LIVE               ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Series:    %-24s ║\n", d.Series)
	fmt.Printf("║  Samples:   %-24d ║\n", d.Len())
	fmt.Printf("║  Anomalies: %-24d ║\n", len(d.Anomalies))
	fmt.Printf("║  Address:   %-24s ║\n", addr)
	fmt.Printf("║  Interval:  %-24s ║\n", interval)
	fmt.Printf("║  Loop:      %-24v ║\n", loop)
	fmt.Println("╚══════════════════════════════════════╝")

	pres.Run(c.Context())

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// followFeed runs the full watch service against a live feed. The
// environment supplies service settings; explicitly set flags override.
func followFeed(c *cobra.Command) error {
	base := config.Load()
	logger.Init("driftwatch", logger.ParseLevel(base.LogLevel))

	flags := c.Flags()
	feedURL, _ := flags.GetString("follow")
	if feedURL == "" {
		feedURL = base.FeedURL
	}

	wcfg := watch.Config{
		FeedURL:        feedURL,
		Alpha:          base.Alpha,
		Threshold:      base.Threshold,
		TrackSpread:    base.TrackSpread,
		Series:         base.ParseSeries(),
		RedisAddr:      base.RedisAddr,
		RedisPassword:  base.RedisPassword,
		SQLitePath:     base.SQLitePath,
		LiveAddr:       base.LiveAddr,
		MetricsAddr:    base.MetricsAddr,
		StallAfter:     base.StallAfter,
		SnapshotEvery:  base.SnapshotEvery,
		WebhookURL:     base.WebhookURL,
		TelegramToken:  base.TelegramToken,
		TelegramChatID: base.TelegramChatID,
	}

	if flags.Changed("alpha") {
		wcfg.Alpha, _ = flags.GetFloat64("alpha")
	}
	if flags.Changed("threshold") {
		wcfg.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("series") {
		base.SeriesFilter, _ = flags.GetString("series")
		wcfg.Series = base.ParseSeries()
	}
	if flags.Changed("addr") {
		wcfg.LiveAddr, _ = flags.GetString("addr")
	}
	if flags.Changed("redis") {
		wcfg.RedisAddr, _ = flags.GetString("redis")
	}
	if flags.Changed("db") {
		wcfg.SQLitePath, _ = flags.GetString("db")
	}
	if flags.Changed("metrics") {
		wcfg.MetricsAddr, _ = flags.GetString("metrics")
	}
	wcfg.Record, _ = flags.GetBool("record")
	if flags.Changed("note") {
		wcfg.RecordNote, _ = flags.GetString("note")
	}

	svc, err := watch.New(wcfg)
	if err != nil {
		return err
	}
	return svc.Run(c.Context())
}
