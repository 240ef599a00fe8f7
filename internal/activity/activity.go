// Package activity derives per-minute activity counts from raw acceleration
// by emulating the filter chain of a commercial accelerometer, following the
// reverse-engineered coefficients published by Brønd et al. (2017).
package activity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/wear.report/internal/dsp"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/timeseries"
)

// ErrValidation is returned for input with a channel count other than 1 or 3
// or a sampling rate the pipeline cannot handle.
var ErrValidation = timeseries.ErrValidation

const (
	deviceRate = 30.0 // Hz, rate of the device response filter
	countRate  = 10.0 // Hz, rate counts are accumulated at

	bandOrder = 5
	bandLow   = 0.01 // Hz
	bandHigh  = 7.0  // Hz

	// Truncation thresholds in g.
	upperThreshold = 2.13
	lowerThreshold = 0.068

	quantizationBits = 7

	binDuration = time.Minute
	binSamples  = int(countRate * 60)
)

// Device response filter coefficients.
var (
	deviceB = []float64{
		0.04910898, -0.12284184, 0.14355788, -0.11269399, 0.05380374, -0.02023027, 0.00637785,
		0.01851254, -0.03815411, 0.04872652, -0.05257721, 0.04784714, -0.04601483, 0.03628334,
		-0.01297681, -0.00462621, 0.01283540, -0.00937622, 0.00344850, -0.00080972, -0.00019623,
	}
	deviceA = []float64{
		1.00000000, -4.16372603, 7.57115309, -7.98046903, 5.38501191, -2.46356271, 0.89238142,
		0.06360999, -1.34810513, 2.47338133, -2.92571736, 2.92983230, -2.78159063, 2.47767354,
		-1.68473849, 0.46482863, 0.46565289, -0.67311897, 0.41620323, -0.13832322, 0.01985172,
	}
)

// Config is the immutable engine configuration. A zero SamplingRate means the
// rate carried by each input series is used.
type Config struct {
	SamplingRate float64
}

// Engine computes activity counts. It holds no state between calls.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SamplingRate != 0 {
		if err := checkRate(cfg.SamplingRate); err != nil {
			return nil, err
		}
	}
	return &Engine{cfg: cfg}, nil
}

func checkRate(fs float64) error {
	if fs < deviceRate {
		return fmt.Errorf("%w: sampling rate %g Hz is below the %g Hz device rate", ErrValidation, fs, deviceRate)
	}
	return nil
}

// Sample is one per-minute activity count.
type Sample struct {
	Time  time.Time
	Count float64
}

// Result holds the counts and, for timed input, the start of each minute bin.
type Result struct {
	Counts []float64
	Times  []time.Time // nil for untimed input
}

// Samples pairs counts with their bin timestamps.
func (r *Result) Samples() []Sample {
	out := make([]Sample, len(r.Counts))
	for i, c := range r.Counts {
		out[i].Count = c
		if r.Times != nil {
			out[i].Time = r.Times[i]
		}
	}
	return out
}

// Calculate runs the full pipeline on the acceleration channels of ts (in g).
// Timed input yields bin timestamps start + i·60 s in the input location.
func (e *Engine) Calculate(ts *timeseries.TimeSeries) (*Result, error) {
	fs := e.cfg.SamplingRate
	if fs == 0 {
		fs = ts.SamplingRate
	} else if ts.SamplingRate != fs {
		return nil, fmt.Errorf("%w: series sampled at %g Hz, engine configured for %g Hz", ErrValidation, ts.SamplingRate, fs)
	}

	acc := ts.SelectAcc()
	counts, err := Counts(fs, acc.Columns()...)
	if err != nil {
		return nil, err
	}
	res := &Result{Counts: counts}
	if ts.Timed() && ts.Len() > 0 {
		start := ts.Start()
		res.Times = make([]time.Time, len(counts))
		for i := range counts {
			res.Times[i] = start.Add(time.Duration(i) * binDuration)
		}
	}
	monitoring.Logf("activity: %d samples at %g Hz -> %d minute bins", ts.Len(), fs, len(counts))
	return res, nil
}

// Counts runs the pipeline on one or three columns sampled at fs Hz.
func Counts(fs float64, cols ...[]float64) ([]float64, error) {
	if len(cols) != 1 && len(cols) != 3 {
		return nil, fmt.Errorf("%w: activity counts need 1D or 3D acceleration, got %dD", ErrValidation, len(cols))
	}
	if err := checkRate(fs); err != nil {
		return nil, err
	}

	x := cols[0]
	if len(cols) == 3 {
		x = norm(cols)
	}

	x, err := bandpass(x, fs)
	if err != nil {
		return nil, stageErr("band-pass filter", err)
	}
	if x, err = dsp.Downsample(x, fs, deviceRate); err != nil {
		return nil, stageErr(fmt.Sprintf("resampling to %g Hz", deviceRate), err)
	}
	if x, err = dsp.FiltFilt(deviceB, deviceA, x); err != nil {
		return nil, stageErr("device response filter", err)
	}
	if x, err = dsp.Downsample(x, deviceRate, countRate); err != nil {
		return nil, stageErr(fmt.Sprintf("resampling to %g Hz", countRate), err)
	}

	for i, v := range x {
		x[i] = quantize(truncate(math.Abs(v)))
	}
	return minuteBins(x), nil
}

// norm collapses three axes into their per-sample Euclidean norm.
func norm(cols [][]float64) []float64 {
	out := make([]float64, len(cols[0]))
	v := make([]float64, len(cols))
	for i := range out {
		for c := range cols {
			v[c] = cols[c][i]
		}
		out[i] = floats.Norm(v, 2)
	}
	return out
}

// stageErr tags a failed stage; a recording too short for a filter is a
// validation problem with the input.
func stageErr(stage string, err error) error {
	if errors.Is(err, dsp.ErrInputTooShort) {
		return fmt.Errorf("%w: %s: %w", ErrValidation, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func bandpass(x []float64, fs float64) ([]float64, error) {
	f, err := dsp.Butter(bandOrder, dsp.Normalize(fs, bandLow, bandHigh), dsp.Bandpass)
	if err != nil {
		return nil, err
	}
	return dsp.SOSFiltFilt(f.SOS(), x)
}

func truncate(v float64) float64 {
	if v > upperThreshold {
		v = upperThreshold
	}
	if v < lowerThreshold {
		v = 0
	}
	return v
}

func quantize(v float64) float64 {
	return math.Floor(v / (upperThreshold / (1 << quantizationBits)))
}

// minuteBins zero-pads x to whole minutes and returns the mean of each.
func minuteBins(x []float64) []float64 {
	n := (len(x) + binSamples - 1) / binSamples
	out := make([]float64, n)
	for i := range out {
		lo := i * binSamples
		hi := min(lo+binSamples, len(x))
		out[i] = floats.Sum(x[lo:hi]) / float64(binSamples)
	}
	return out
}
