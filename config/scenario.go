package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario bundles everything needed to reproduce one detection run: the
// generator settings, the detector settings, and how to present the result.
type Scenario struct {
	Name string `yaml:"name"`

	Generator GeneratorSpec `yaml:"generator"`
	Detector  DetectorSpec  `yaml:"detector"`
	Render    RenderSpec    `yaml:"render"`
}

// GeneratorSpec configures the synthetic signal source. Fields mirror the
// generator config; zero values inherit the generator defaults.
type GeneratorSpec struct {
	Series      string  `yaml:"series"`
	Seed        int64   `yaml:"seed"`
	Points      int     `yaml:"points"`
	Amplitude   float64 `yaml:"amplitude"`
	Period      float64 `yaml:"period"`
	NoiseStdDev float64 `yaml:"noise_stddev"`
	SpikeProb   float64 `yaml:"spike_prob"`
	SpikeMin    float64 `yaml:"spike_min"`
	SpikeMax    float64 `yaml:"spike_max"`
}

// DetectorSpec configures the deviation test.
type DetectorSpec struct {
	Alpha     float64 `yaml:"alpha"`
	Threshold float64 `yaml:"threshold"`
}

// RenderSpec configures result presentation.
type RenderSpec struct {
	Mode       string  `yaml:"mode"`   // "table", "json", "svg", "live"
	Output     string  `yaml:"output"` // file path for svg, empty = stdout modes
	YMin       float64 `yaml:"y_min"`
	YMax       float64 `yaml:"y_max"`
	IntervalMs int     `yaml:"interval_ms"` // live mode frame interval
}

const (
	// DefaultScenarioFilename is the default scenario file name.
	DefaultScenarioFilename = "driftwatch.yaml"

	// DefaultFilePermissions restricts scenario files to the owner.
	DefaultFilePermissions = 0o600
)

var (
	// ErrScenarioNotSet is returned when a nil scenario is provided.
	ErrScenarioNotSet = errors.New("scenario is not set")
	// ErrNameRequired is returned when the scenario has no name.
	ErrNameRequired = errors.New("scenario name must be provided")
	// ErrBadAlpha is returned when alpha is outside [0, 1].
	ErrBadAlpha = errors.New("alpha must be between 0 and 1")
	// ErrBadThreshold is returned when the threshold is negative.
	ErrBadThreshold = errors.New("threshold must not be negative")
	// ErrBadMode is returned for an unrecognized render mode.
	ErrBadMode = errors.New("render mode must be table, json, svg or live")
)

// LoadScenario reads a scenario from the provided path and validates it.
func LoadScenario(path string) (*Scenario, error) {
	if path == "" {
		path = DefaultScenarioFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(contents, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}

	if err := ValidateScenario(&sc); err != nil {
		return nil, err
	}

	return &sc, nil
}

// SaveScenario writes a scenario to the provided path with restricted
// permissions.
func SaveScenario(path string, sc *Scenario) error {
	if sc == nil {
		return ErrScenarioNotSet
	}

	if path == "" {
		path = DefaultScenarioFilename
	}

	if err := ValidateScenario(sc); err != nil {
		return err
	}

	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}

	return nil
}

// ValidateScenario checks required fields and fills defaults for unset ones.
func ValidateScenario(sc *Scenario) error {
	if sc == nil {
		return ErrScenarioNotSet
	}
	if sc.Name == "" {
		return ErrNameRequired
	}
	if sc.Detector.Alpha < 0 || sc.Detector.Alpha > 1 {
		return ErrBadAlpha
	}
	if sc.Detector.Threshold < 0 {
		return ErrBadThreshold
	}

	switch sc.Render.Mode {
	case "":
		sc.Render.Mode = "table"
	case "table", "json", "svg", "live":
	default:
		return ErrBadMode
	}

	// Generator defaults: a short deterministic run
	if sc.Generator.Series == "" {
		sc.Generator.Series = sc.Name
	}
	if sc.Generator.Points <= 0 {
		sc.Generator.Points = 200
	}
	if sc.Render.IntervalMs <= 0 {
		sc.Render.IntervalMs = 100
	}

	return nil
}
