package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"driftwatch/internal/signal"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Generate a signal and store it as a run.",
	Long: `Generates a signal from the scenario and stores it as a new run in the
SQLite database. Only raw samples are persisted; trend and anomalies are
recomputed on every replay, so a recorded run can later be re-detected
with different settings.

The new run ID is printed on the last line.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		sc, err := resolveScenario(c)
		if err != nil {
			return err
		}

		values := signal.Generate(generatorConfig(sc.Generator))
		in := &signalInput{Series: sc.Generator.Series, Values: values, Seed: sc.Generator.Seed}

		note, _ := c.Flags().GetString("note")
		dbPath, _ := c.Flags().GetString("db")
		runID, err := recordSignal(dbPath, in, sc.Detector.Alpha, sc.Detector.Threshold, note, sc.Render.IntervalMs)
		if err != nil {
			return err
		}

		fmt.Println("╔══════════════════════════════════════╗")
		fmt.Println("║        RUN RECORDED                  ║")
		fmt.Println("╠══════════════════════════════════════╣")
		fmt.Printf("║  Series:    %-24s ║\n", in.Series)
		fmt.Printf("║  Samples:   %-24d ║\n", len(values))
		fmt.Printf("║  Seed:      %-24d ║\n", in.Seed)
		fmt.Printf("║  Database:  %-24s ║\n", dbPath)
		fmt.Println("╚══════════════════════════════════════╝")
		fmt.Println(runID)
		return nil
	},
}

func init() {
	addScenarioFlags(recordCmd)
	f := recordCmd.Flags()
	f.String("db", defaultDBPath, "SQLite database path")
	f.String("note", "", "note stored with the run")
	rootCmd.AddCommand(recordCmd)
}
