package wear

import (
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBlocks(t *testing.T) {
	t.Parallel()

	got := Blocks([]int{1, 1, 0, 1, 1, 1})
	want := []Block{{Wear, 0, 2}, {NonWear, 2, 3}, {Wear, 3, 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Blocks() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Blocks(nil))
	assert.Equal(t, 0.75, want[2].Hours())
}

func TestRescore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []int
		want   []int
	}{
		{
			name:   "lone wear window before long non-wear is flipped",
			labels: slices.Concat([]int{1, 1, 1, 1, 0, 1}, repeat(0, 14)),
			want:   slices.Concat([]int{1, 1, 1, 1}, repeat(0, 16)),
		},
		{
			name:   "lone non-wear window between wear blocks is kept",
			labels: slices.Concat(repeat(1, 8), []int{0}, repeat(1, 8)),
			want:   slices.Concat(repeat(1, 8), []int{0}, repeat(1, 8)),
		},
		{
			name:   "first and last blocks are never rescored",
			labels: slices.Concat([]int{1}, repeat(0, 20), []int{1}),
			want:   slices.Concat([]int{1}, repeat(0, 20), []int{1}),
		},
		{
			name: "long wear block survives",
			// 6 h of wear between 2 h neighbours.
			labels: slices.Concat(repeat(0, 8), repeat(1, 24), repeat(0, 8)),
			want:   slices.Concat(repeat(0, 8), repeat(1, 24), repeat(0, 8)),
		},
		{
			name: "under 6 h and under 30% of neighbours",
			// 5 h against 20 h of neighbours.
			labels: slices.Concat(repeat(0, 40), repeat(1, 20), repeat(0, 40)),
			want:   repeat(0, 100),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Rescore(tt.labels)); diff != "" {
				t.Errorf("Rescore() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRescoreDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := slices.Concat(repeat(0, 10), []int{1}, repeat(0, 10))
	orig := slices.Clone(in)
	Rescore(in)
	assert.Equal(t, orig, in)
}

func TestRescoreDecidesFromPassStart(t *testing.T) {
	t.Parallel()

	// The 1 h block only becomes isolated once the single window after it
	// is flipped, which takes a second pass.
	labels := slices.Concat([]int{0, 0}, repeat(1, 4), []int{0}, []int{1}, repeat(0, 8))

	one := Rescore(labels)
	assert.Equal(t, slices.Concat([]int{0, 0}, repeat(1, 4), repeat(0, 10)), one)

	two := RescoreN(labels, 2)
	assert.Equal(t, repeat(0, 16), two)
}

func TestRescoreNStable(t *testing.T) {
	t.Parallel()

	labels := slices.Concat(repeat(1, 12), repeat(0, 6), []int{1, 1}, repeat(0, 3), []int{1}, repeat(0, 10), repeat(1, 30))
	three := RescoreN(labels, RescorePasses)
	assert.Equal(t, three, Rescore(three), "a further pass changes nothing")
	assert.Equal(t, labels, RescoreN(labels, 0))
}

func TestMajorWearBlock(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(labels ...int) []Window {
		out := make([]Window, len(labels))
		for i, l := range labels {
			out[i] = Window{
				Wear:  l,
				Start: t0.Add(time.Duration(i) * StepDuration),
				End:   t0.Add(time.Duration(i)*StepDuration + WindowDuration),
			}
		}
		return out
	}

	iv, err := MajorWearBlock(mk(0, 1, 1, 0, 1, 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, Interval{
		FirstWindow: 4,
		LastWindow:  6,
		Start:       t0.Add(4 * StepDuration),
		End:         t0.Add(6*StepDuration + WindowDuration),
	}, iv)

	iv, err = MajorWearBlock(mk(1, 1, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, iv.FirstWindow, "ties go to the earliest block")

	_, err = MajorWearBlock(mk(0, 0, 0))
	assert.ErrorIs(t, err, ErrEmptyResult)
	_, err = MajorWearBlock(nil)
	assert.ErrorIs(t, err, ErrEmptyResult)
}
