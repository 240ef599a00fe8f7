package window

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// VarNorm returns, for every window, the Euclidean norm across channels of
// each channel's population variance. NaN padding is excluded; a window
// with no real samples in some channel yields NaN.
func VarNorm(seg *Segmented) []float64 {
	rows := seg.Rows()
	out := make([]float64, rows)
	vars := make([]float64, len(seg.Windows))
	buf := make([]float64, 0, seg.Params.Length)
	for i := range out {
		for c, m := range seg.Windows {
			buf = buf[:0]
			for _, v := range m.RawRowView(i) {
				if !math.IsNaN(v) {
					buf = append(buf, v)
				}
			}
			if len(buf) == 0 {
				vars[c] = math.NaN()
				continue
			}
			vars[c] = stat.PopVariance(buf, nil)
		}
		out[i] = floats.Norm(vars, 2)
	}
	return out
}
