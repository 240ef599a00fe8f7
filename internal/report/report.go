// Package report writes analysis results as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/wear.report/internal/activity"
	"github.com/banshee-data/wear.report/internal/wear"
	"github.com/banshee-data/wear.report/internal/window"
)

// Writer formats results for one output stream. Timestamps are written in
// Location (UTC when nil) as RFC 3339; untimed rows leave them empty.
type Writer struct {
	w        *csv.Writer
	Location *time.Location
}

// NewWriter creates a Writer on out.
func NewWriter(out io.Writer, loc *time.Location) *Writer {
	return &Writer{w: csv.NewWriter(out), Location: loc}
}

func (w *Writer) stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if w.Location != nil {
		t = t.In(w.Location)
	}
	return t.Format(time.RFC3339Nano)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// flush writes the buffered rows and reports any write error.
func (w *Writer) flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Wear writes one row per window.
func (w *Writer) Wear(res *wear.Result) error {
	w.w.Write([]string{"window", "start", "end", "wear"})
	for i, win := range res.Windows {
		w.w.Write([]string{strconv.Itoa(i), w.stamp(win.Start), w.stamp(win.End), strconv.Itoa(win.Wear)})
	}
	return w.flush()
}

// Counts writes one row per minute bin.
func (w *Writer) Counts(res *activity.Result) error {
	w.w.Write([]string{"minute", "start", "count"})
	for i, s := range res.Samples() {
		w.w.Write([]string{strconv.Itoa(i), w.stamp(s.Time), ftoa(s.Count)})
	}
	return w.flush()
}

// VarNorm writes the per-window variance norm alongside window bounds.
func (w *Writer) VarNorm(seg *window.Segmented, values []float64) error {
	if len(values) != seg.Rows() {
		return fmt.Errorf("got %d values for %d windows", len(values), seg.Rows())
	}
	w.w.Write([]string{"window", "start", "end", "var_norm"})
	for i, v := range values {
		var start, end string
		if seg.Bounds != nil {
			start, end = w.stamp(seg.Bounds[i].Start), w.stamp(seg.Bounds[i].End)
		}
		w.w.Write([]string{strconv.Itoa(i), start, end, ftoa(v)})
	}
	return w.flush()
}

// Summary writes the totals and, when there is one, the major wear block.
// A labelling without wear writes empty major-block fields.
func (w *Writer) Summary(res *wear.Result) error {
	s := res.Summarize()
	row := []string{strconv.Itoa(s.Windows), ftoa(s.WearHours), ftoa(s.NonWearHours), strconv.Itoa(s.WearBlocks), "", ""}
	if iv, err := res.MajorWearBlock(); err == nil {
		row[4], row[5] = w.stamp(iv.Start), w.stamp(iv.End)
	}
	w.w.Write([]string{"windows", "wear_hours", "non_wear_hours", "wear_blocks", "major_start", "major_end"})
	w.w.Write(row)
	return w.flush()
}
