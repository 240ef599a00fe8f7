package ingest

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wear.report/internal/fsutil"
	"github.com/banshee-data/wear.report/internal/timeseries"
)

func TestReadCSVTimed(t *testing.T) {
	in := `timestamp,acc_x,acc_y,acc_z,temp
2024-03-01 10:00:00,0,0,9.81,31.5
2024-03-01 10:00:00.5,0.981,,9.81,31.5
2024-03-01 10:00:01,0,0,-9.81,31.6
`
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ts, err := ReadCSV(strings.NewReader(in), Options{SamplingRate: 2, Location: loc, AccUnit: "mps2"})
	require.NoError(t, err)

	require.True(t, ts.Timed())
	assert.Equal(t, 3, ts.Len())
	assert.Equal(t, 4, ts.NumChannels())
	assert.Equal(t, loc, ts.Location())
	assert.Equal(t, 10, ts.Start().Hour())

	assert.InDelta(t, 1, ts.Column(2)[0], 1e-12, "acceleration converted to g")
	assert.InDelta(t, 0.1, ts.Column(0)[1], 1e-12)
	assert.True(t, math.IsNaN(ts.Column(1)[1]), "empty cell is missing")
	assert.Equal(t, 31.5, ts.Column(3)[0], "non-acceleration channels are untouched")
}

func TestReadCSVUnixTimes(t *testing.T) {
	in := "time,acc\n1700000000.25,1\n1700000000.5,2\n"
	ts, err := ReadCSV(strings.NewReader(in), Options{SamplingRate: 4})
	require.NoError(t, err)
	assert.True(t, ts.Index()[0].Equal(time.Unix(1700000000, 250_000_000)))
	assert.Equal(t, time.UTC, ts.Location())
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		cell string
		want time.Time
	}{
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-03-01T10:00:00.25+01:00", time.Date(2024, 3, 1, 9, 0, 0, 250_000_000, time.UTC)},
		{"2024-03-01T10:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"2024-03-01 10:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"1709287200", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.cell, loc)
		require.NoError(t, err, tt.cell)
		assert.True(t, got.Equal(tt.want), "parseTime(%q) = %v, want %v", tt.cell, got, tt.want)
	}
}

func TestReadCSVUntimed(t *testing.T) {
	in := "x,y,z\n1,2,3\n4,5,6\n"
	ts, err := ReadCSV(strings.NewReader(in), Options{SamplingRate: 50})
	require.NoError(t, err)
	assert.False(t, ts.Timed())
	assert.Equal(t, []float64{2, 5}, ts.Column(1))
}

func TestReadCSVUnnamedAxesConverted(t *testing.T) {
	ts, err := ReadCSV(strings.NewReader("x,y,z\n9.81,0,0\n"), Options{SamplingRate: 1, AccUnit: "mps2"})
	require.NoError(t, err)
	assert.InDelta(t, 1, ts.Column(0)[0], 1e-12, "axes analysed as acceleration are converted to g")
	assert.InDelta(t, 1, ts.SelectAcc().Column(0)[0], 1e-12)
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		opts    Options
		wantErr error
	}{
		{"empty", "", Options{SamplingRate: 1}, ErrFormat},
		{"only time column", "timestamp\n1\n", Options{SamplingRate: 1}, ErrFormat},
		{"bad value", "x\nabc\n", Options{SamplingRate: 1}, ErrFormat},
		{"bad timestamp", "timestamp,x\nyesterday,1\n", Options{SamplingRate: 1}, ErrFormat},
		{"ragged row", "x,y\n1,2\n3\n", Options{SamplingRate: 1}, ErrFormat},
		{"decreasing index", "timestamp,x\n2,1\n1,1\n", Options{SamplingRate: 1}, timeseries.ErrValidation},
		{"no rate", "x\n1\n", Options{}, timeseries.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), tt.opts)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
		})
	}

	_, err := ReadCSV(strings.NewReader("x\n1\n"), Options{SamplingRate: 1, AccUnit: "furlongs"})
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.Add("data/subject01.csv", []byte("acc_x\n1\n2\n3\n"))

	ts, err := LoadCSV(fsys, "data/subject01.csv", Options{SamplingRate: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, ts.Len())

	_, err = LoadCSV(fsys, "data/missing.csv", Options{SamplingRate: 1})
	assert.Error(t, err)
}
