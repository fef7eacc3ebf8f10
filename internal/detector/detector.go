// Package detector implements the streaming anomaly core: an online
// exponentially-weighted moving average (EWMA) trend estimate combined with
// a per-point absolute deviation test. The pure single-pass form lives in
// Detect; Engine wraps the same recurrence for one-sample-at-a-time use.
package detector

import (
	"errors"
	"math"
	"time"

	"driftwatch/internal/model"
)

// ErrEmptySignal is the single invalid-input condition of the core: a pass
// needs at least one sample to seed the trend.
var ErrEmptySignal = errors.New("detector: empty signal")

// Detect runs one left-to-right pass over signal and returns the smoothed
// trend plus the flagged anomalies.
//
// trend[0] = signal[0] (seed, no smoothing applied). For i >= 1:
//
//	trend[i] = alpha*signal[i] + (1-alpha)*trend[i-1]
//
// Index i >= 1 is flagged when |signal[i] - trend[i]| > threshold. The test
// compares against trend[i], the value that already absorbed signal[i], not
// against trend[i-1], so a spike is partially smoothed into the trend before
// being measured. Sensitivity is damped proportionally to alpha; this is
// intended behavior, DetectPrior is the stricter variant.
//
// Parameter ranges are not validated: alpha=0 freezes the trend at
// signal[0], alpha=1 tracks the signal exactly and can never flag anything,
// alpha outside [0,1] or a negative threshold produce mathematically defined
// but divergent or always-firing results. Identical inputs give bit-for-bit
// identical outputs.
func Detect(signal []float64, alpha, threshold float64) ([]float64, []model.Anomaly, error) {
	if len(signal) == 0 {
		return nil, nil, ErrEmptySignal
	}

	trend := make([]float64, len(signal))
	trend[0] = signal[0]

	var anomalies []model.Anomaly
	for i := 1; i < len(signal); i++ {
		trend[i] = alpha*signal[i] + (1-alpha)*trend[i-1]
		dev := math.Abs(signal[i] - trend[i])
		if dev > threshold {
			anomalies = append(anomalies, model.Anomaly{
				Index:     i,
				Value:     signal[i],
				Trend:     trend[i],
				Deviation: dev,
			})
		}
	}
	return trend, anomalies, nil
}

// DetectPrior is the strict variant: the deviation test compares signal[i]
// against trend[i-1], the estimate from before the sample is absorbed. It
// flags more, and larger, deviations than Detect for the same
// configuration, markedly so at high alpha. The trend output is identical.
// This is a different detector, not a replacement for Detect.
func DetectPrior(signal []float64, alpha, threshold float64) ([]float64, []model.Anomaly, error) {
	if len(signal) == 0 {
		return nil, nil, ErrEmptySignal
	}

	trend := make([]float64, len(signal))
	trend[0] = signal[0]

	var anomalies []model.Anomaly
	for i := 1; i < len(signal); i++ {
		dev := math.Abs(signal[i] - trend[i-1])
		trend[i] = alpha*signal[i] + (1-alpha)*trend[i-1]
		if dev > threshold {
			anomalies = append(anomalies, model.Anomaly{
				Index:     i,
				Value:     signal[i],
				Trend:     trend[i-1],
				Deviation: dev,
			})
		}
	}
	return trend, anomalies, nil
}

// Analyze wraps Detect and packages its outputs as a model.Detection, with
// the series name stamped onto every anomaly. Callers that only need the
// raw sequences should use Detect directly.
func Analyze(series string, signal []float64, alpha, threshold float64) (*model.Detection, error) {
	trend, anomalies, err := Detect(signal, alpha, threshold)
	if err != nil {
		return nil, err
	}
	for i := range anomalies {
		anomalies[i].Series = series
	}
	return &model.Detection{
		Series:    series,
		Alpha:     alpha,
		Threshold: threshold,
		Signal:    signal,
		Trend:     trend,
		Anomalies: anomalies,
		CreatedAt: time.Now().UTC(),
	}, nil
}
