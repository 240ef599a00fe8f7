// Package ingest reads accelerometer recordings exported as plain CSV or as
// European Data Format (EDF) files.
//
// In CSV files the first row is a header. If its first column is named
// "timestamp" or "time" the recording is timed and each row starts with
// either a Unix time in seconds or a date-time string; every other column is
// a channel. Empty cells are read as missing samples (NaN).
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/banshee-data/wear.report/internal/fsutil"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/units"
)

// ErrFormat is returned for CSV input that cannot be read as a recording.
var ErrFormat = errors.New("malformed recording")

// Options control how a recording is interpreted.
type Options struct {
	SamplingRate float64        // Hz, required
	Location     *time.Location // for timestamps without an offset; nil means UTC
	AccUnit      string         // unit of the acceleration channels; empty means g

	// EDF only.
	Names []string  // signal names in file order
	Start time.Time // first sample time; zero leaves the series untimed
}

// Space-separated date-times are not ISO 8601 but common in exports.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// LoadCSV opens path on fsys and reads it with ReadCSV.
func LoadCSV(fsys fsutil.FileSystem, path string, opts Options) (*timeseries.TimeSeries, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	ts, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("ingest: %s: %d samples x %d channels at %g Hz", path, ts.Len(), ts.NumChannels(), ts.SamplingRate)
	return ts, nil
}

// ReadCSV parses a recording and converts acceleration channels to g.
func ReadCSV(r io.Reader, opts Options) (*timeseries.TimeSeries, error) {
	if opts.SamplingRate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %g", timeseries.ErrValidation, opts.SamplingRate)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	unit := opts.AccUnit
	if unit == "" {
		unit = units.G
	}
	toG, err := units.Converter(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", timeseries.ErrValidation, err)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}

	timed := isTimeColumn(header[0])
	first := 0
	if timed {
		first = 1
	}
	if len(header) <= first {
		return nil, fmt.Errorf("%w: no channel columns", ErrFormat)
	}

	channels := make([]timeseries.Channel, len(header)-first)
	for i, name := range header[first:] {
		channels[i].Name = strings.TrimSpace(name)
	}
	var index []time.Time

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrFormat, line, err)
		}
		if timed {
			t, err := parseTime(rec[0], loc)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrFormat, line, err)
			}
			index = append(index, t)
		}
		for i, cell := range rec[first:] {
			v, err := parseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %w", ErrFormat, line, channels[i].Name, err)
			}
			channels[i].Values = append(channels[i].Values, v)
		}
	}

	var ts *timeseries.TimeSeries
	if timed {
		ts, err = timeseries.NewTimed(opts.SamplingRate, index, channels...)
	} else {
		ts, err = timeseries.New(opts.SamplingRate, channels...)
	}
	if err != nil {
		return nil, err
	}
	if unit != units.G {
		ts = ts.MapAcc(toG)
	}
	return ts, nil
}

func isTimeColumn(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "timestamp", "time":
		return true
	}
	return false
}

func parseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// ParseTime reads a single timestamp the way timed CSV rows are read. A nil
// loc means UTC.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return parseTime(s, loc)
}

// parseTime accepts Unix seconds (fractional allowed), an ISO 8601
// date-time or one of timeLayouts. Unix times are reported in loc, as are
// date-times without an offset.
func parseTime(cell string, loc *time.Location) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if secs, err := strconv.ParseFloat(cell, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(math.Round(frac*1e9))).In(loc), nil
	}
	if t, err := iso8601.ParseInLocation([]byte(cell), loc); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, cell, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", cell)
}
