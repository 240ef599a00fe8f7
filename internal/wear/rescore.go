package wear

import (
	"fmt"
	"time"
)

// Block is a maximal run of windows sharing a label, as the half-open window
// range [Start, End).
type Block struct {
	Wear       int
	Start, End int
}

// Len returns the number of windows in the block.
func (b Block) Len() int { return b.End - b.Start }

// Hours returns the block duration.
func (b Block) Hours() float64 { return float64(b.Len()) * BlockHours }

// Blocks groups consecutive equal labels.
func Blocks(labels []int) []Block {
	var blocks []Block
	for i, l := range labels {
		if len(blocks) == 0 || blocks[len(blocks)-1].Wear != l {
			blocks = append(blocks, Block{Wear: l, Start: i, End: i + 1})
			continue
		}
		blocks[len(blocks)-1].End = i + 1
	}
	return blocks
}

// Rescore runs one rescoring pass and returns the new labels. Every decision
// is made against the blocks of the input labelling. An interior wear block
// becomes non-wear when it is shorter than 3 h and under 80% of its
// neighbours' combined duration, or shorter than 6 h and under 30%. The
// first and last blocks and all non-wear blocks are left alone.
func Rescore(labels []int) []int {
	out := append([]int(nil), labels...)
	blocks := Blocks(labels)
	for i := 1; i < len(blocks)-1; i++ {
		cur := blocks[i]
		if cur.Wear != Wear {
			continue
		}
		dur := cur.Hours()
		ratio := dur / (blocks[i-1].Hours() + blocks[i+1].Hours())
		if (dur < 3 && ratio < 0.8) || (dur < 6 && ratio < 0.3) {
			for j := cur.Start; j < cur.End; j++ {
				out[j] = NonWear
			}
		}
	}
	return out
}

// RescoreN applies Rescore passes times, regrouping blocks before each pass.
func RescoreN(labels []int, passes int) []int {
	out := labels
	for range passes {
		out = Rescore(out)
	}
	if passes <= 0 {
		out = append([]int(nil), labels...)
	}
	return out
}

// Interval is a contiguous run of windows with its timestamps.
type Interval struct {
	FirstWindow, LastWindow int
	Start, End              time.Time
}

// Windows returns the number of windows in the interval.
func (iv Interval) Windows() int { return iv.LastWindow - iv.FirstWindow + 1 }

// MajorWearBlock returns the longest wear block by window count. Ties go to
// the earliest block. The interval starts at the first window's start and
// ends at the last window's end.
func MajorWearBlock(windows []Window) (Interval, error) {
	labels := make([]int, len(windows))
	for i, w := range windows {
		labels[i] = w.Wear
	}

	best := -1
	blocks := Blocks(labels)
	for i, b := range blocks {
		if b.Wear == Wear && (best < 0 || b.Len() > blocks[best].Len()) {
			best = i
		}
	}
	if best < 0 {
		return Interval{}, fmt.Errorf("%w: no wear windows among %d", ErrEmptyResult, len(windows))
	}

	b := blocks[best]
	return Interval{
		FirstWindow: b.Start,
		LastWindow:  b.End - 1,
		Start:       windows[b.Start].Start,
		End:         windows[b.End-1].End,
	}, nil
}

// MajorWearBlock is a convenience for MajorWearBlock(r.Windows).
func (r *Result) MajorWearBlock() (Interval, error) {
	return MajorWearBlock(r.Windows)
}

// Summary totals wear and non-wear time over a labelling.
type Summary struct {
	Windows      int
	WearHours    float64
	NonWearHours float64
	WearBlocks   int
}

// Summarize reports totals using the per-window block duration.
func (r *Result) Summarize() Summary {
	s := Summary{Windows: len(r.Windows)}
	for _, w := range r.Windows {
		if w.Wear == Wear {
			s.WearHours += BlockHours
		} else {
			s.NonWearHours += BlockHours
		}
	}
	for _, b := range Blocks(r.Labels()) {
		if b.Wear == Wear {
			s.WearBlocks++
		}
	}
	return s
}
