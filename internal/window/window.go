// Package window cuts uniformly sampled signals into fixed-length,
// optionally overlapping windows. The last window is padded with NaN so that
// every input sample lands in at least one window.
package window

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/wear.report/internal/timeseries"
)

// ErrConfiguration is returned for missing or conflicting window/overlap
// parameters and for a non-positive step size.
var ErrConfiguration = errors.New("configuration error")

// Config describes a window in either samples or seconds and an optional
// overlap in either samples or as a fraction of the window. Exactly one
// window field and at most one overlap field may be set.
type Config struct {
	WindowSamples  *int     `json:"window_samples,omitempty"`
	WindowSec      *float64 `json:"window_sec,omitempty"`
	SamplingRate   float64  `json:"sampling_rate,omitempty"`
	OverlapSamples *int     `json:"overlap_samples,omitempty"`
	OverlapPercent *float64 `json:"overlap_percent,omitempty"` // fraction in [0, 1)
}

// Helpers for building a Config inline.
func Samples(n int) *int          { return &n }
func Seconds(s float64) *float64  { return &s }
func Fraction(f float64) *float64 { return &f }

// Params is a resolved window geometry in samples.
type Params struct {
	Length  int
	Overlap int
}

// Step is the distance between consecutive window starts.
func (p Params) Step() int { return p.Length - p.Overlap }

// Resolve validates the configuration and converts it to sample counts.
// Seconds and fractions are truncated toward zero.
func (c Config) Resolve() (Params, error) {
	var p Params

	switch {
	case c.WindowSamples != nil && c.WindowSec != nil:
		return p, fmt.Errorf("%w: only one of window_samples and window_sec may be set", ErrConfiguration)
	case c.WindowSamples == nil && c.WindowSec == nil:
		return p, fmt.Errorf("%w: one of window_samples or window_sec is required", ErrConfiguration)
	case c.WindowSamples != nil:
		p.Length = *c.WindowSamples
	default:
		if c.SamplingRate <= 0 {
			return p, fmt.Errorf("%w: window_sec requires a positive sampling rate, got %g", ErrConfiguration, c.SamplingRate)
		}
		p.Length = int(*c.WindowSec * c.SamplingRate)
	}
	if p.Length < 1 {
		return p, fmt.Errorf("%w: window length must be at least one sample, got %d", ErrConfiguration, p.Length)
	}

	switch {
	case c.OverlapSamples != nil && c.OverlapPercent != nil:
		return p, fmt.Errorf("%w: only one of overlap_samples and overlap_percent may be set", ErrConfiguration)
	case c.OverlapSamples != nil:
		p.Overlap = *c.OverlapSamples
	case c.OverlapPercent != nil:
		if *c.OverlapPercent < 0 {
			return p, fmt.Errorf("%w: overlap_percent must be non-negative, got %g", ErrConfiguration, *c.OverlapPercent)
		}
		p.Overlap = int(float64(p.Length) * *c.OverlapPercent)
	}
	if p.Overlap < 0 {
		return p, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrConfiguration, p.Overlap)
	}
	if p.Step() < 1 {
		return p, fmt.Errorf("%w: step size %d (window %d, overlap %d) must be at least 1",
			ErrConfiguration, p.Step(), p.Length, p.Overlap)
	}
	return p, nil
}

// Count returns how many windows a series of n samples produces.
func (p Params) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= p.Length {
		return 1
	}
	step := p.Step()
	return (n-p.Length+step-1)/step + 1
}

// Span is the half-open range of real samples covered by one window. Only
// the last window can be shorter than the window length.
type Span struct {
	Start, End int
}

// Len returns the number of real samples in the span.
func (s Span) Len() int { return s.End - s.Start }

// Spans returns the real-sample extent of every window without copying data.
func (p Params) Spans(n int) []Span {
	count := p.Count(n)
	spans := make([]Span, count)
	step := p.Step()
	for i := range spans {
		start := i * step
		spans[i] = Span{Start: start, End: min(start+p.Length, n)}
	}
	return spans
}

// Matrix copies data into a windows × length matrix, padding the tail of the
// last window with NaN.
func (p Params) Matrix(data []float64) *mat.Dense {
	spans := p.Spans(len(data))
	m := mat.NewDense(len(spans), p.Length, nil)
	for i, s := range spans {
		row := m.RawRowView(i)
		n := copy(row, data[s.Start:s.End])
		for j := n; j < len(row); j++ {
			row[j] = math.NaN()
		}
	}
	return m
}

// Apply windows a single channel.
func Apply(data []float64, cfg Config) (*mat.Dense, error) {
	p, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: cannot window an empty series", timeseries.ErrValidation)
	}
	return p.Matrix(data), nil
}

// Bounds are the first and last real timestamps of a window.
type Bounds struct {
	Start, End time.Time
}

// IndexBounds runs a timestamp index through the same windowing transform as
// the data. Padded positions are ignored, so the last window ends at the last
// real timestamp. Locations are preserved.
func (p Params) IndexBounds(index []time.Time) []Bounds {
	spans := p.Spans(len(index))
	out := make([]Bounds, len(spans))
	for i, s := range spans {
		out[i] = Bounds{Start: index[s.Start], End: index[s.End-1]}
	}
	return out
}

// ApplyIndex windows a timestamp index.
func ApplyIndex(index []time.Time, cfg Config) ([]Bounds, error) {
	p, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	return p.IndexBounds(index), nil
}

// Segmented is a multi-channel series cut into windows.
type Segmented struct {
	Params  Params
	Names   []string
	Windows []*mat.Dense // one windows × length matrix per channel
	Bounds  []Bounds     // nil for untimed input
}

// Rows returns the number of windows.
func (s *Segmented) Rows() int {
	if len(s.Windows) == 0 {
		return 0
	}
	r, _ := s.Windows[0].Dims()
	return r
}

// Segment windows every channel of ts. If cfg.SamplingRate is zero the
// series rate is used.
func Segment(ts *timeseries.TimeSeries, cfg Config) (*Segmented, error) {
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = ts.SamplingRate
	}
	p, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if ts.Len() == 0 {
		return nil, fmt.Errorf("%w: cannot window an empty series", timeseries.ErrValidation)
	}

	seg := &Segmented{Params: p}
	for _, c := range ts.Channels {
		seg.Names = append(seg.Names, c.Name)
		seg.Windows = append(seg.Windows, p.Matrix(c.Values))
	}
	if ts.Timed() {
		seg.Bounds = p.IndexBounds(ts.Index())
	}
	return seg, nil
}
