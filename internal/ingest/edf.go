package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/banshee-data/wear.report/internal/fsutil"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/units"
)

// Signal labels used when Options.Names is shorter than the file.
var defaultEDFNames = []string{"acc_x", "acc_y", "acc_z"}

const edfReadChunk = 4096

// IsEDF reports whether path names a European Data Format recording.
func IsEDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".edf")
}

// Load reads path as EDF or CSV depending on its extension.
func Load(fsys fsutil.FileSystem, path string, opts Options) (*timeseries.TimeSeries, error) {
	if IsEDF(path) {
		return LoadEDF(fsys, path, opts)
	}
	return LoadCSV(fsys, path, opts)
}

// LoadEDF opens path on fsys and reads it with ReadEDF.
func LoadEDF(fsys fsutil.FileSystem, path string, opts Options) (*timeseries.TimeSeries, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	ts, err := ReadEDF(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("ingest: %s: %d samples x %d signals at %g Hz (edf)", path, ts.Len(), ts.NumChannels(), ts.SamplingRate)
	return ts, nil
}

// ReadEDF decodes every signal of an EDF file into physical units. Signals
// are named from opts.Names, then acc_x, acc_y and acc_z, then signal<N>.
// All signals must share one sampling rate, given by opts.SamplingRate. The
// series is untimed unless opts.Start is set.
func ReadEDF(r io.Reader, opts Options) (*timeseries.TimeSeries, error) {
	if opts.SamplingRate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %g", timeseries.ErrValidation, opts.SamplingRate)
	}
	unit := opts.AccUnit
	if unit == "" {
		unit = units.G
	}
	toG, err := units.Converter(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", timeseries.ErrValidation, err)
	}

	// SignalReader seeks once per sample, so work from memory.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read edf: %w", err)
	}
	er, err := edf.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	var channels []timeseries.Channel
	for i := 0; ; i++ {
		sr, err := er.Signal(i)
		if err != nil {
			break // past the last signal
		}
		values, err := readSignal(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: signal %d: %w", ErrFormat, i, err)
		}
		channels = append(channels, timeseries.Channel{Name: edfName(opts.Names, i), Values: values})
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no signals", ErrFormat)
	}

	var ts *timeseries.TimeSeries
	if opts.Start.IsZero() {
		ts, err = timeseries.New(opts.SamplingRate, channels...)
	} else {
		ts, err = timeseries.NewTimed(opts.SamplingRate, regularIndex(opts.Start, len(channels[0].Values), opts.SamplingRate), channels...)
	}
	if err != nil {
		return nil, err
	}
	if unit != units.G {
		ts = ts.MapAcc(toG)
	}
	return ts, nil
}

func readSignal(sr *edf.SignalReader) ([]float64, error) {
	var out []float64
	buf := make([]float64, edfReadChunk)
	for {
		n, err := sr.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func edfName(names []string, i int) string {
	switch {
	case i < len(names):
		return names[i]
	case i < len(defaultEDFNames):
		return defaultEDFNames[i]
	}
	return fmt.Sprintf("signal%d", i)
}

func regularIndex(start time.Time, n int, fs float64) []time.Time {
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.Add(time.Duration(float64(i) / fs * float64(time.Second)))
	}
	return index
}
