// Package timeseries holds uniformly sampled multi-channel recordings, either
// untimed (a bare numeric matrix) or timed (with a parallel timestamp index).
package timeseries

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks malformed input: wrong channel count, ragged columns,
// a non-monotonic index and similar shape problems.
var ErrValidation = errors.New("validation error")

// AccTag is the substring that identifies acceleration channels by name.
const AccTag = "acc"

// Channel is one named column of samples.
type Channel struct {
	Name   string
	Values []float64
}

// TimeSeries is an ordered multi-channel recording with a nominal sampling
// rate. When the index is non-nil it is parallel to every channel and strictly
// increasing; otherwise the series is untimed.
type TimeSeries struct {
	SamplingRate float64
	Channels     []Channel
	index        []time.Time
}

// New builds an untimed series.
func New(samplingRate float64, channels ...Channel) (*TimeSeries, error) {
	ts := &TimeSeries{SamplingRate: samplingRate, Channels: channels}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

// NewTimed builds a series with a timestamp index. The index keeps its
// location; all derived timestamps are reported in the same location.
func NewTimed(samplingRate float64, index []time.Time, channels ...Channel) (*TimeSeries, error) {
	if index == nil {
		index = []time.Time{}
	}
	ts := &TimeSeries{SamplingRate: samplingRate, Channels: channels, index: index}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

// FromMatrix builds an untimed series from unnamed columns.
func FromMatrix(samplingRate float64, cols ...[]float64) (*TimeSeries, error) {
	channels := make([]Channel, len(cols))
	for i, c := range cols {
		channels[i] = Channel{Name: fmt.Sprintf("ch%d", i), Values: c}
	}
	return New(samplingRate, channels...)
}

// Validate checks column lengths and index ordering.
func (ts *TimeSeries) Validate() error {
	if ts.SamplingRate <= 0 {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", ErrValidation, ts.SamplingRate)
	}
	if len(ts.Channels) == 0 {
		return fmt.Errorf("%w: series has no channels", ErrValidation)
	}
	n := len(ts.Channels[0].Values)
	for _, c := range ts.Channels[1:] {
		if len(c.Values) != n {
			return fmt.Errorf("%w: channel %q has %d samples, expected %d", ErrValidation, c.Name, len(c.Values), n)
		}
	}
	if ts.index == nil {
		return nil
	}
	if len(ts.index) != n {
		return fmt.Errorf("%w: index has %d entries, expected %d", ErrValidation, len(ts.index), n)
	}
	for i := 1; i < len(ts.index); i++ {
		if !ts.index[i].After(ts.index[i-1]) {
			return fmt.Errorf("%w: index not strictly increasing at position %d", ErrValidation, i)
		}
	}
	return nil
}

// Len returns the number of samples per channel.
func (ts *TimeSeries) Len() int {
	if len(ts.Channels) == 0 {
		return 0
	}
	return len(ts.Channels[0].Values)
}

// NumChannels returns the channel count.
func (ts *TimeSeries) NumChannels() int { return len(ts.Channels) }

// Column returns the samples of channel i. The slice is shared.
func (ts *TimeSeries) Column(i int) []float64 { return ts.Channels[i].Values }

// Columns returns every channel's samples in order.
func (ts *TimeSeries) Columns() [][]float64 {
	cols := make([][]float64, len(ts.Channels))
	for i, c := range ts.Channels {
		cols[i] = c.Values
	}
	return cols
}

// Timed reports whether the series carries a timestamp index.
func (ts *TimeSeries) Timed() bool { return ts.index != nil }

// Index returns the timestamp index, or nil for an untimed series.
func (ts *TimeSeries) Index() []time.Time { return ts.index }

// Start returns the first timestamp; zero for untimed or empty series.
func (ts *TimeSeries) Start() time.Time {
	if len(ts.index) == 0 {
		return time.Time{}
	}
	return ts.index[0]
}

// Location returns the index location, UTC when untimed.
func (ts *TimeSeries) Location() *time.Location {
	if len(ts.index) == 0 {
		return time.UTC
	}
	return ts.index[0].Location()
}

// Select returns a series sharing storage that keeps only channels whose
// name satisfies keep.
func (ts *TimeSeries) Select(keep func(name string) bool) *TimeSeries {
	out := &TimeSeries{SamplingRate: ts.SamplingRate, index: ts.index}
	for _, c := range ts.Channels {
		if keep(c.Name) {
			out.Channels = append(out.Channels, c)
		}
	}
	return out
}

// SelectAcc keeps the acceleration channels. A series with no channel named
// like an acceleration channel is returned unchanged.
func (ts *TimeSeries) SelectAcc() *TimeSeries {
	acc := ts.Select(IsAcc)
	if len(acc.Channels) == 0 {
		return ts
	}
	return acc
}

// MapAcc applies fn to the channels SelectAcc keeps: the acceleration
// channels, or every channel when none is named like one.
func (ts *TimeSeries) MapAcc(fn func(float64) float64) *TimeSeries {
	keep := IsAcc
	if len(ts.Select(IsAcc).Channels) == 0 {
		keep = func(string) bool { return true }
	}
	return ts.Map(keep, fn)
}

// IsAcc reports whether a channel name denotes an acceleration channel.
func IsAcc(name string) bool {
	return strings.Contains(strings.ToLower(name), AccTag)
}

// Map returns a copy with fn applied to the channels selected by keep.
func (ts *TimeSeries) Map(keep func(name string) bool, fn func(float64) float64) *TimeSeries {
	out := &TimeSeries{SamplingRate: ts.SamplingRate, index: ts.index}
	out.Channels = make([]Channel, len(ts.Channels))
	for i, c := range ts.Channels {
		if !keep(c.Name) {
			out.Channels[i] = c
			continue
		}
		vals := make([]float64, len(c.Values))
		for j, v := range c.Values {
			vals[j] = fn(v)
		}
		out.Channels[i] = Channel{Name: c.Name, Values: vals}
	}
	return out
}
