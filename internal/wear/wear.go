// Package wear classifies which parts of a multi-day accelerometer recording
// were spent with the sensor worn. Hour-long windows stepped every 15 minutes
// are labelled from per-axis variability, then short wear blocks isolated
// between longer non-wear periods are rescored as non-wear.
package wear

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/window"
)

// ErrEmptyResult is returned when a query needs at least one wear window
// and the labelling has none.
var ErrEmptyResult = errors.New("empty result")

// Fixed parameters of the algorithm.
const (
	WindowDuration = 60 * time.Minute
	StepDuration   = 15 * time.Minute

	StdThreshold   = 0.013 // g
	RangeThreshold = 0.15  // g

	// BlockHours is the duration one window contributes to a block, derived
	// from the step.
	BlockHours = 0.25

	RescorePasses = 3
)

// Labels.
const (
	NonWear = 0
	Wear    = 1
)

// Window is one classified window. Start and End are zero for untimed input.
type Window struct {
	Wear  int
	Start time.Time
	End   time.Time
}

// Result is the final per-window labelling.
type Result struct {
	Windows []Window
}

// Labels returns the wear label of every window.
func (r *Result) Labels() []int {
	out := make([]int, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = w.Wear
	}
	return out
}

// Detector labels recordings sampled at a fixed rate.
type Detector struct {
	samplingRate float64
}

// NewDetector returns a Detector for recordings sampled at samplingRate Hz.
func NewDetector(samplingRate float64) (*Detector, error) {
	if samplingRate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %g", window.ErrConfiguration, samplingRate)
	}
	return &Detector{samplingRate: samplingRate}, nil
}

func (d *Detector) windowConfig() window.Config {
	return window.Config{
		WindowSec:      window.Seconds(WindowDuration.Seconds()),
		SamplingRate:   d.samplingRate,
		OverlapPercent: window.Fraction(1 - StepDuration.Seconds()/WindowDuration.Seconds()),
	}
}

// Predict labels every window of the acceleration channels in ts (in g) and
// applies RescorePasses rescoring passes.
func (d *Detector) Predict(ts *timeseries.TimeSeries) (*Result, error) {
	if ts.SamplingRate != d.samplingRate {
		return nil, fmt.Errorf("%w: series sampled at %g Hz, detector configured for %g Hz",
			timeseries.ErrValidation, ts.SamplingRate, d.samplingRate)
	}
	if ts.Len() == 0 {
		return nil, fmt.Errorf("%w: empty recording", timeseries.ErrValidation)
	}
	p, err := d.windowConfig().Resolve()
	if err != nil {
		return nil, err
	}

	acc := ts.SelectAcc()
	spans := p.Spans(acc.Len())
	labels := make([]int, len(spans))
	std := make([]float64, acc.NumChannels())
	rng := make([]float64, acc.NumChannels())
	for i, s := range spans {
		for c := range acc.Channels {
			std[c], rng[c] = variability(acc.Column(c)[s.Start:s.End])
		}
		labels[i] = Classify(std, rng)
	}

	rescored := RescoreN(labels, RescorePasses)
	monitoring.Logf("wear: %d windows, %d relabelled by rescoring", len(labels), changed(labels, rescored))

	res := &Result{Windows: make([]Window, len(spans))}
	var bounds []window.Bounds
	if ts.Timed() {
		bounds = p.IndexBounds(ts.Index())
	}
	for i := range res.Windows {
		res.Windows[i].Wear = rescored[i]
		if bounds != nil {
			res.Windows[i].Start = bounds[i].Start
			res.Windows[i].End = bounds[i].End
		}
	}
	return res, nil
}

// variability returns the sample standard deviation and the max-min range of
// the finite values in x. Fewer than two finite values give a NaN deviation.
func variability(x []float64) (std, rng float64) {
	vals := finite(x)
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	rng = floats.Max(vals) - floats.Min(vals)
	if len(vals) < 2 {
		return math.NaN(), rng
	}
	return stat.StdDev(vals, nil), rng
}

func finite(x []float64) []float64 {
	for i, v := range x {
		if math.IsNaN(v) {
			out := append([]float64(nil), x[:i]...)
			for _, w := range x[i+1:] {
				if !math.IsNaN(w) {
					out = append(out, w)
				}
			}
			return out
		}
	}
	return x
}

// Classify labels one window from per-axis standard deviations and ranges.
// A window is non-wear only when no axis reaches the deviation threshold or
// no axis reaches the range threshold.
func Classify(std, rng []float64) int {
	var stdAxes, rngAxes int
	for _, s := range std {
		if s >= StdThreshold {
			stdAxes++
		}
	}
	for _, r := range rng {
		if r >= RangeThreshold {
			rngAxes++
		}
	}
	if stdAxes < 1 || rngAxes < 1 {
		return NonWear
	}
	return Wear
}

func changed(a, b []int) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}
