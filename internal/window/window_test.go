package window

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/wear.report/internal/timeseries"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want Params
	}{
		{"samples no overlap", Config{WindowSamples: Samples(4)}, Params{Length: 4}},
		{"samples overlap samples", Config{WindowSamples: Samples(4), OverlapSamples: Samples(2)}, Params{4, 2}},
		{"seconds", Config{WindowSec: Seconds(2), SamplingRate: 10}, Params{Length: 20}},
		{"seconds truncated", Config{WindowSec: Seconds(0.25), SamplingRate: 10}, Params{Length: 2}},
		{"percent", Config{WindowSamples: Samples(10), OverlapPercent: Fraction(0.75)}, Params{10, 7}},
		{"hour at 15 minute step", Config{WindowSec: Seconds(3600), SamplingRate: 1, OverlapPercent: Fraction(0.75)}, Params{3600, 2700}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no window", Config{}},
		{"both windows", Config{WindowSamples: Samples(4), WindowSec: Seconds(1), SamplingRate: 4}},
		{"seconds without rate", Config{WindowSec: Seconds(1)}},
		{"zero length", Config{WindowSamples: Samples(0)}},
		{"sub-sample seconds", Config{WindowSec: Seconds(0.05), SamplingRate: 10}},
		{"both overlaps", Config{WindowSamples: Samples(4), OverlapSamples: Samples(1), OverlapPercent: Fraction(0.5)}},
		{"overlap equals window", Config{WindowSamples: Samples(4), OverlapSamples: Samples(4)}},
		{"negative overlap", Config{WindowSamples: Samples(4), OverlapSamples: Samples(-1)}},
		{"negative percent", Config{WindowSamples: Samples(4), OverlapPercent: Fraction(-0.1)}},
		{"full percent", Config{WindowSamples: Samples(4), OverlapPercent: Fraction(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Resolve()
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	p := Params{Length: 4, Overlap: 1}
	for n, want := range map[int]int{0: 0, 1: 1, 4: 1, 5: 2, 7: 2, 8: 3, 10: 3, 11: 4} {
		assert.Equal(t, want, p.Count(n), "n=%d", n)
	}
}

func TestSpansCoverEverySample(t *testing.T) {
	t.Parallel()

	for _, p := range []Params{{4, 0}, {4, 1}, {5, 3}, {1, 0}, {7, 6}} {
		for n := 1; n < 40; n++ {
			spans := p.Spans(n)
			covered := make([]bool, n)
			for i, s := range spans {
				assert.Equal(t, i*p.Step(), s.Start)
				assert.LessOrEqual(t, s.Len(), p.Length)
				for j := s.Start; j < s.End; j++ {
					covered[j] = true
				}
			}
			for j, c := range covered {
				assert.True(t, c, "params %+v n=%d: sample %d not covered", p, n, j)
			}
			// Only the last window may be short.
			for _, s := range spans[:len(spans)-1] {
				assert.Equal(t, p.Length, s.Len())
			}
		}
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	m, err := Apply(seq(7), Config{WindowSamples: Samples(4), OverlapSamples: Samples(1)})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, []float64{0, 1, 2, 3}, m.RawRowView(0))

	last := m.RawRowView(1)
	assert.Equal(t, []float64{3, 4, 5, 6}, last)

	m, err = Apply(seq(5), Config{WindowSamples: Samples(4)})
	require.NoError(t, err)
	tail := mat.Row(nil, 1, m)
	assert.Equal(t, 4.0, tail[0])
	for _, v := range tail[1:] {
		assert.True(t, math.IsNaN(v), "padding should be NaN, got %v", v)
	}

	_, err = Apply(nil, Config{WindowSamples: Samples(4)})
	assert.ErrorIs(t, err, timeseries.ErrValidation)
	_, err = Apply(seq(3), Config{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestApplyIndex(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("AEST", 10*3600)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, loc)
	index := make([]time.Time, 10)
	for i := range index {
		index[i] = t0.Add(time.Duration(i) * time.Second)
	}

	bounds, err := ApplyIndex(index, Config{WindowSec: Seconds(4), SamplingRate: 1, OverlapPercent: Fraction(0.5)})
	require.NoError(t, err)
	require.Len(t, bounds, 4)
	assert.True(t, bounds[1].Start.Equal(index[2]))
	assert.True(t, bounds[1].End.Equal(index[5]))
	// The last window is padded; its end is the last real timestamp.
	assert.True(t, bounds[3].End.Equal(index[9]))
	assert.Equal(t, loc, bounds[3].End.Location())
}

func TestSegment(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	index := []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second), t0.Add(3 * time.Second), t0.Add(4 * time.Second)}
	ts, err := timeseries.NewTimed(1, index,
		timeseries.Channel{Name: "acc_x", Values: seq(5)},
		timeseries.Channel{Name: "temp", Values: seq(5)},
	)
	require.NoError(t, err)

	seg, err := Segment(ts, Config{WindowSec: Seconds(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"acc_x", "temp"}, seg.Names)
	assert.Equal(t, 3, seg.Rows())
	assert.Len(t, seg.Bounds, 3)
	assert.True(t, seg.Bounds[2].End.Equal(index[4]))

	untimed, err := timeseries.FromMatrix(1, seq(3))
	require.NoError(t, err)
	seg, err = Segment(untimed, Config{WindowSamples: Samples(2)})
	require.NoError(t, err)
	assert.Nil(t, seg.Bounds)

	empty, err := timeseries.FromMatrix(1, []float64{})
	require.NoError(t, err)
	_, err = Segment(empty, Config{WindowSamples: Samples(2)})
	assert.ErrorIs(t, err, timeseries.ErrValidation)

	assert.Equal(t, 0, (&Segmented{}).Rows())
}
