package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"driftwatch/config"
	"driftwatch/internal/detector"
	"driftwatch/internal/live"
	"driftwatch/internal/model"
	"driftwatch/internal/render"
	"driftwatch/internal/signal/replay"
	sqlitestore "driftwatch/internal/store/sqlite"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run detection over a recorded run.",
	Long: `Loads a recorded run and re-runs detection over its raw samples. The
detector settings stored with the run apply unless overridden; changing
--alpha or --threshold turns a replay into a what-if pass over the same
signal.

With --speed the samples are paced through the streaming engine at the
original capture rate (scaled) and served over WebSocket instead of being
rendered at once.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.Int64("run", 0, "recorded run ID (required unless --list)")
	f.String("db", defaultDBPath, "SQLite database path")
	f.Bool("list", false, "list recent runs and exit")
	f.Int("limit", 20, "number of runs shown by --list")
	f.Float64("alpha", 0, "override the stored smoothing factor")
	f.Float64("threshold", 0, "override the stored threshold")
	f.String("mode", "table", "output mode: table, json or svg")
	f.String("out", "", "output file for svg mode")
	f.Bool("auto-y", false, "derive the chart y-range from the data")
	f.Float64("speed", 0, "serve paced playback at this multiplier instead of rendering")
	f.String("addr", ":8090", "listen address for paced playback")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	dbPath, _ := flags.GetString("db")

	if list, _ := flags.GetBool("list"); list {
		limit, _ := flags.GetInt("limit")
		return listRuns(dbPath, limit)
	}

	runID, _ := flags.GetInt64("run")
	if runID == 0 {
		return errors.New("--run is required")
	}

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	meta, err := reader.ReadRun(runID)
	if err != nil {
		return fmt.Errorf("read run %d: %w", runID, err)
	}

	alpha, threshold := meta.Alpha, meta.Threshold
	if flags.Changed("alpha") {
		alpha, _ = flags.GetFloat64("alpha")
	}
	if flags.Changed("threshold") {
		threshold, _ = flags.GetFloat64("threshold")
	}

	if speed, _ := flags.GetFloat64("speed"); speed > 0 {
		addr, _ := flags.GetString("addr")
		return servePaced(c.Context(), reader, meta, alpha, threshold, speed, addr)
	}

	samples, err := reader.ReadSamples(runID)
	if err != nil {
		return fmt.Errorf("read samples for run %d: %w", runID, err)
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	d, err := detector.Analyze(meta.Series, values, alpha, threshold)
	if err != nil {
		return err
	}
	d.Seed = meta.Seed

	mode, _ := flags.GetString("mode")
	switch mode {
	case "", "table":
		return render.WriteTable(os.Stdout, d)
	case "json":
		return render.WriteJSON(os.Stdout, d)
	case "svg":
		return writeChart(c, &config.Scenario{Name: meta.Series}, d)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// listRuns prints the most recent recorded runs.
func listRuns(dbPath string, limit int) error {
	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	runs, err := reader.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	fmt.Printf("%6s  %-12s %7s %7s %10s  %-20s %s\n",
		"ID", "SERIES", "POINTS", "ALPHA", "THRESHOLD", "CREATED", "NOTE")
	for _, r := range runs {
		fmt.Printf("%6d  %-12s %7d %7.2f %10.2f  %-20s %s\n",
			r.ID, r.Series, r.Points, r.Alpha, r.Threshold,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.Note)
	}
	return nil
}

// servePaced replays the run through a fresh streaming engine and serves the
// resulting frames over WebSocket. Playback keeps the recording's original
// inter-sample gaps divided by speed.
func servePaced(ctx context.Context, reader *sqlitestore.Reader, meta model.RunMeta, alpha, threshold, speed float64, addr string) error {
	hub := live.NewHub()
	srv := live.NewServer(hub)
	srv.SetFollow(live.NewFollowState(meta.Series, alpha, threshold))

	engine := detector.NewEngine(detector.Config{Alpha: alpha, Threshold: threshold})
	srv.SetThresholdFunc(engine.SetThreshold)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}
	go func() {
		log.Printf("[replay] serving run %d (%s) on %s at %.1fx", meta.ID, meta.Series, addr, speed)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[replay] server error: %v", err)
		}
	}()

	samples := make(chan model.Sample, 512)
	go func() {
		defer close(samples)
		if err := replay.New(reader).Run(ctx, meta.ID, speed, samples); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[replay] %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		case s, ok := <-samples:
			if !ok {
				// Keep serving the finished run for inspection.
				log.Printf("[replay] playback finished, still serving")
				samples = nil
				continue
			}
			srv.PublishPoint(engine.Process(s))
		}
	}
}
