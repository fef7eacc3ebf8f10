// Package signal produces the synthetic input stream: a sine carrier with
// Gaussian noise and sparse large-magnitude spikes. All randomness flows
// from an explicit seed in the config, so the same config always yields the
// same signal, bit-for-bit.
package signal

import (
	"math"
	"math/rand"
	"time"

	"driftwatch/internal/model"
)

// Config holds the generator parameters. Zero values fall back to the
// defaults of the reference stream: 200 points of a 10-amplitude sine with
// a 100-sample period, unit Gaussian noise, and 1% spikes of magnitude
// 50..100 with random sign.
type Config struct {
	Points      int     // number of samples; 0 means the default 200
	Amplitude   float64 // sine amplitude
	Period      float64 // samples per sine cycle
	NoiseStdDev float64 // Gaussian noise sigma; negative disables noise
	SpikeProb   float64 // per-sample spike probability; negative disables spikes
	SpikeMin    float64 // spike magnitude lower bound
	SpikeMax    float64 // spike magnitude upper bound
	Seed        int64   // random source seed; 0 means the default 42
}

func (c *Config) defaults() {
	if c.Points == 0 {
		c.Points = 200
	}
	if c.Amplitude == 0 {
		c.Amplitude = 10
	}
	if c.Period == 0 {
		c.Period = 100
	}
	if c.NoiseStdDev == 0 {
		c.NoiseStdDev = 1
	}
	if c.SpikeProb == 0 {
		c.SpikeProb = 0.01
	}
	if c.SpikeMin == 0 {
		c.SpikeMin = 50
	}
	if c.SpikeMax == 0 {
		c.SpikeMax = 100
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Generate produces the full signal for cfg. Same config, same output.
func Generate(cfg Config) []float64 {
	cfg.defaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	out := make([]float64, cfg.Points)
	for i := range out {
		out[i] = next(&cfg, rng, i)
	}
	return out
}

// next computes sample i. The rng consumption order is fixed (noise draw,
// spike draw, then magnitude and sign draws only when a spike fires), which
// is what makes generation reproducible.
func next(cfg *Config, rng *rand.Rand, i int) float64 {
	v := cfg.Amplitude * math.Sin(2*math.Pi*float64(i)/cfg.Period)
	if cfg.NoiseStdDev > 0 {
		v += rng.NormFloat64() * cfg.NoiseStdDev
	}
	if cfg.SpikeProb > 0 && rng.Float64() < cfg.SpikeProb {
		mag := cfg.SpikeMin + rng.Float64()*(cfg.SpikeMax-cfg.SpikeMin)
		if rng.Intn(2) == 0 {
			mag = -mag
		}
		v += mag
	}
	return v
}

// Source emits the generated stream one sample at a time, for paced
// producers like sigserver. Points=0 in the config still means 200; use
// Unbounded for an endless stream.
type Source struct {
	cfg       Config
	rng       *rand.Rand
	series    string
	i         int
	unbounded bool
}

// NewSource creates a single-use sample source. The source is not safe for
// concurrent use; one goroutine owns it.
func NewSource(series string, cfg Config) *Source {
	cfg.defaults()
	return &Source{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		series: series,
	}
}

// Unbounded makes the source ignore the configured point count and emit
// forever.
func (s *Source) Unbounded() *Source {
	s.unbounded = true
	return s
}

// Next returns the next sample, stamped with the emission time. The second
// return is false once the configured point count is exhausted.
func (s *Source) Next() (model.Sample, bool) {
	if !s.unbounded && s.i >= s.cfg.Points {
		return model.Sample{}, false
	}
	v := next(&s.cfg, s.rng, s.i)
	sm := model.Sample{
		Series: s.series,
		Index:  s.i,
		Value:  v,
		TS:     time.Now().UTC(),
	}
	s.i++
	return sm, true
}

// Emitted returns how many samples the source has produced so far.
func (s *Source) Emitted() int { return s.i }
