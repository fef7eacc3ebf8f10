// Package cmd wires the driftwatch subcommands. Scenario resolution is shared
// by every command that needs a signal: registered flag defaults form the
// base, a scenario file overrides the defaults, and explicitly set flags
// override the file.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"driftwatch/config"
	"driftwatch/internal/model"
	"driftwatch/internal/signal"
	sqlitestore "driftwatch/internal/store/sqlite"
	"driftwatch/internal/version"
)

const defaultDBPath = "data/driftwatch.db"

// rootCmd is the base command; all work happens in subcommands.
var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "EWMA drift detection over synthetic and recorded signals.",
	Long: `driftwatch smooths a signal with an exponentially weighted moving average
and flags samples whose deviation from the trend exceeds a threshold.

Signals come from the built-in seeded generator, a JSON file, or a run
recorded earlier in SQLite. Results render as a table, JSON, or an SVG
chart, or stream frame by frame over WebSocket with playback controls.`,
}

// Execute runs the driftwatch CLI and exits with non-zero status on error.
// The context cancels on SIGINT/SIGTERM so serving subcommands drain cleanly.
func Execute(ctx context.Context) {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// addScenarioFlags registers the generator and detector knobs shared by the
// signal-producing subcommands. Defaults mirror the generator's own.
func addScenarioFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("scenario", "", "path to a scenario YAML file ("+config.DefaultScenarioFilename+" is picked up automatically)")
	f.String("series", "", "series name (defaults to the scenario name)")
	f.Int64("seed", 42, "generator seed")
	f.Int("points", 200, "number of samples to generate")
	f.Float64("amplitude", 10, "sine amplitude")
	f.Float64("period", 100, "sine period in samples")
	f.Float64("noise", 1, "gaussian noise stddev")
	f.Float64("spike-prob", 0.01, "per-sample spike probability")
	f.Float64("alpha", 0.3, "EWMA smoothing factor in [0, 1]")
	f.Float64("threshold", 2.5, "absolute deviation threshold")
}

// addSourceFlags registers the alternative signal sources for commands that
// can detect over more than generated data.
func addSourceFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("input", "", "JSON signal file to analyze instead of generating")
	f.Int64("run", 0, "recorded run ID to analyze instead of generating")
	f.String("db", defaultDBPath, "SQLite database path")
}

// resolveScenario builds the effective scenario for a command invocation.
// Precedence from weakest to strongest: flag defaults, scenario file,
// explicitly set flags. A missing default scenario file is not an error.
func resolveScenario(c *cobra.Command) (*config.Scenario, error) {
	flags := c.Flags()

	sc, err := loadScenarioFile(flags)
	if err != nil {
		return nil, err
	}
	fromFile := sc != nil
	if !fromFile {
		sc = &config.Scenario{Name: "adhoc"}
	}

	use := func(name string) bool { return !fromFile || flags.Changed(name) }

	if use("series") {
		sc.Generator.Series, _ = flags.GetString("series")
	}
	if use("seed") {
		sc.Generator.Seed, _ = flags.GetInt64("seed")
	}
	if use("points") {
		sc.Generator.Points, _ = flags.GetInt("points")
	}
	if use("amplitude") {
		sc.Generator.Amplitude, _ = flags.GetFloat64("amplitude")
	}
	if use("period") {
		sc.Generator.Period, _ = flags.GetFloat64("period")
	}
	if use("noise") {
		sc.Generator.NoiseStdDev, _ = flags.GetFloat64("noise")
	}
	if use("spike-prob") {
		sc.Generator.SpikeProb, _ = flags.GetFloat64("spike-prob")
	}
	if use("alpha") {
		sc.Detector.Alpha, _ = flags.GetFloat64("alpha")
	}
	if use("threshold") {
		sc.Detector.Threshold, _ = flags.GetFloat64("threshold")
	}

	if err := config.ValidateScenario(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// loadScenarioFile loads the file named by --scenario, or the default
// scenario file when present. Returns (nil, nil) when no file applies.
func loadScenarioFile(flags *pflag.FlagSet) (*config.Scenario, error) {
	path, _ := flags.GetString("scenario")
	if path != "" {
		return config.LoadScenario(path)
	}

	sc, err := config.LoadScenario("")
	switch {
	case err == nil:
		return sc, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	default:
		return nil, err
	}
}

// generatorConfig maps a scenario generator spec onto the signal generator.
func generatorConfig(spec config.GeneratorSpec) signal.Config {
	return signal.Config{
		Points:      spec.Points,
		Amplitude:   spec.Amplitude,
		Period:      spec.Period,
		NoiseStdDev: spec.NoiseStdDev,
		SpikeProb:   spec.SpikeProb,
		SpikeMin:    spec.SpikeMin,
		SpikeMax:    spec.SpikeMax,
		Seed:        spec.Seed,
	}
}

// signalInput is one resolved detection input. Meta is set when the values
// came from a recorded run.
type signalInput struct {
	Series string
	Values []float64
	Seed   int64
	Meta   *model.RunMeta
}

// resolveSignal picks the signal for a detection pass: a recorded run when
// --run is set, a JSON file when --input is set, the generator otherwise.
func resolveSignal(c *cobra.Command, sc *config.Scenario) (*signalInput, error) {
	flags := c.Flags()
	inputPath, _ := flags.GetString("input")
	runID, _ := flags.GetInt64("run")

	if inputPath != "" && runID != 0 {
		return nil, errors.New("--input and --run are mutually exclusive")
	}

	switch {
	case runID != 0:
		dbPath, _ := flags.GetString("db")
		reader, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, err
		}
		defer reader.Close()

		meta, err := reader.ReadRun(runID)
		if err != nil {
			return nil, fmt.Errorf("read run %d: %w", runID, err)
		}
		samples, err := reader.ReadSamples(runID)
		if err != nil {
			return nil, fmt.Errorf("read samples for run %d: %w", runID, err)
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		return &signalInput{Series: meta.Series, Values: values, Seed: meta.Seed, Meta: &meta}, nil

	case inputPath != "":
		series, values, err := signal.LoadFile(inputPath)
		if err != nil {
			return nil, err
		}
		if series == "" {
			series = sc.Name
		}
		return &signalInput{Series: series, Values: values}, nil

	default:
		values := signal.Generate(generatorConfig(sc.Generator))
		return &signalInput{Series: sc.Generator.Series, Values: values, Seed: sc.Generator.Seed}, nil
	}
}

// samplesFromValues converts plain values into timestamped samples, backdated
// so the last sample lands near now and replay pacing matches the scenario's
// frame interval.
func samplesFromValues(series string, values []float64, step time.Duration) []model.Sample {
	base := time.Now().UTC().Add(-time.Duration(len(values)) * step)
	out := make([]model.Sample, len(values))
	for i, v := range values {
		out[i] = model.Sample{
			Series: series,
			Index:  i,
			Value:  v,
			TS:     base.Add(time.Duration(i) * step),
		}
	}
	return out
}
