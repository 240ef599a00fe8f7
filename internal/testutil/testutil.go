// Package testutil provides shared test utilities and synthetic recordings.
//
// The generators are deterministic so that expected labels and counts can be
// worked out by hand in the tests that use them.
package testutil

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/banshee-data/wear.report/internal/timeseries"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Sine returns n samples of offset + amp·sin(2π·freq·t) sampled at fs Hz.
func Sine(n int, fs, freq, amp, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = offset + amp*math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

// Constant returns n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Index returns n timestamps spaced 1/fs seconds apart starting at start.
func Index(start time.Time, n int, fs float64) []time.Time {
	step := time.Duration(float64(time.Second) / fs)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// Segment describes one stretch of a synthetic recording.
type Segment struct {
	Duration time.Duration
	Worn     bool
}

// WornFrequency is the oscillation of worn stretches in Recording, inside
// the pass band of the activity-count device filter.
const WornFrequency = 1.0

// Recording builds a three-axis acceleration series in g. Worn stretches
// carry a 0.2 g oscillation on every axis at WornFrequency, or with a
// ten-sample period when fs is too low for it; unworn stretches are flat
// with gravity on z. A zero start yields an untimed series.
func Recording(t *testing.T, fs float64, start time.Time, segments ...Segment) *timeseries.TimeSeries {
	t.Helper()
	freq := math.Min(WornFrequency, fs/10)
	var x, y, z []float64
	for _, s := range segments {
		n := int(s.Duration.Seconds() * fs)
		if s.Worn {
			x = append(x, Sine(n, fs, freq, 0.2, 0)...)
			y = append(y, Sine(n, fs, freq, 0.2, 0)...)
			z = append(z, Sine(n, fs, freq, 0.2, 1)...)
		} else {
			x = append(x, Constant(n, 0)...)
			y = append(y, Constant(n, 0)...)
			z = append(z, Constant(n, 1)...)
		}
	}
	channels := []timeseries.Channel{
		{Name: "acc_x", Values: x},
		{Name: "acc_y", Values: y},
		{Name: "acc_z", Values: z},
	}

	var (
		ts  *timeseries.TimeSeries
		err error
	)
	if start.IsZero() {
		ts, err = timeseries.New(fs, channels...)
	} else {
		ts, err = timeseries.NewTimed(fs, Index(start, len(x), fs), channels...)
	}
	AssertNoError(t, err)
	return ts
}

// CSV renders ts in the layout the ingest package reads: a timestamp column
// for timed series followed by one column per channel.
func CSV(t *testing.T, ts *timeseries.TimeSeries) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, 0, ts.NumChannels()+1)
	if ts.Timed() {
		header = append(header, "timestamp")
	}
	for _, c := range ts.Channels {
		header = append(header, c.Name)
	}
	w.Write(header)
	for i := range ts.Len() {
		row := make([]string, 0, len(header))
		if ts.Timed() {
			row = append(row, ts.Index()[i].Format(time.RFC3339Nano))
		}
		for c := range ts.Channels {
			row = append(row, strconv.FormatFloat(ts.Column(c)[i], 'f', 6, 64))
		}
		w.Write(row)
	}
	w.Flush()
	AssertNoError(t, w.Error())
	return buf.Bytes()
}

// EDF renders ts as an EDF file with ten-second data records, one signal per
// channel and a physical range of ±8. The series length must fill whole
// records.
func EDF(t *testing.T, ts *timeseries.TimeSeries) []byte {
	t.Helper()
	perRecord := int(math.Round(ts.SamplingRate * 10))
	if perRecord == 0 || ts.Len()%perRecord != 0 {
		t.Fatalf("EDF: %d samples do not fill records of %d", ts.Len(), perRecord)
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "test",
		RecordingID:        "synthetic",
		StartTime:          ts.Start(),
		DataRecordDuration: 10 * time.Second,
		SignalCount:        ts.NumChannels(),
	}
	if hdr.StartTime.IsZero() {
		hdr.StartTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	for _, c := range ts.Channels {
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:            c.Name,
			PhysicalMin:      -8,
			PhysicalMax:      8,
			DigitalMin:       -32768,
			DigitalMax:       32767,
			SamplesPerRecord: perRecord,
		})
	}

	path := filepath.Join(t.TempDir(), "recording.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	AssertNoError(t, err)
	w, err := edf.Create(f, hdr)
	AssertNoError(t, err)
	for off := 0; off < ts.Len(); off += perRecord {
		rec := make([][]float64, ts.NumChannels())
		for i := range rec {
			rec[i] = ts.Column(i)[off : off+perRecord]
		}
		AssertNoError(t, w.WriteRecord(rec))
	}
	AssertNoError(t, w.Close())
	AssertNoError(t, f.Close())

	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	return data
}
