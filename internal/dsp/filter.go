package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInputTooShort is returned when a signal is not longer than the edge
// padding a forward-backward filter needs.
var ErrInputTooShort = errors.New("input too short for filter")

// LFilter runs x through the direct-form II transposed filter b/a starting
// from state zi (nil for zero state). It returns the output and final state.
func LFilter(b, a, x, zi []float64) (y, zf []float64) {
	b, a = normalizeTF(b, a)
	n := len(a)
	z := make([]float64, n-1)
	copy(z, zi)

	y = make([]float64, len(x))
	if n == 1 {
		for i, xi := range x {
			y[i] = b[0] * xi
		}
		return y, z
	}
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = b[j]*xi + z[j] - a[j]*yi
		}
		z[n-2] = b[n-1]*xi - a[n-1]*yi
		y[i] = yi
	}
	return y, z
}

// LFilterZi returns the initial state for LFilter that corresponds to the
// steady state of a unit step input.
func LFilterZi(b, a []float64) ([]float64, error) {
	b, a = normalizeTF(b, a)
	m := len(a) - 1
	if m == 0 {
		return []float64{}, nil
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:]*b[0]
	lhs := mat.NewDense(m, m, nil)
	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		lhs.Set(i, i, 1)
		lhs.Set(i, 0, lhs.At(i, 0)+a[i+1])
		if i+1 < m {
			lhs.Set(i, i+1, -1)
		}
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(lhs, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solving filter initial conditions: %w", err)
		}
	}
	out := make([]float64, m)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// FiltFilt applies b/a forward and backward so the output has zero phase
// shift. The signal is extended at both ends by odd reflection of
// 3·max(len(a), len(b)) samples and the filter state is initialised to the
// steady state of the edge value.
func FiltFilt(b, a, x []float64) ([]float64, error) {
	edge := 3 * max(len(a), len(b))
	if len(x) <= edge {
		return nil, fmt.Errorf("%w: need more than %d samples, got %d", ErrInputTooShort, edge, len(x))
	}
	zi, err := LFilterZi(b, a)
	if err != nil {
		return nil, err
	}

	ext := oddExt(x, edge)
	y, _ := LFilter(b, a, ext, scaled(zi, ext[0]))
	reverse(y)
	y, _ = LFilter(b, a, y, scaled(zi, y[0]))
	reverse(y)
	return clip(y, edge), nil
}

// SOSFilt runs x through cascaded second-order sections. zi holds two state
// values per section and may be nil.
func SOSFilt(sos []Section, x []float64, zi [][2]float64) (y []float64, zf [][2]float64) {
	zf = make([][2]float64, len(sos))
	copy(zf, zi)
	y = make([]float64, len(x))
	copy(y, x)

	for s, sec := range sos {
		a0 := sec[3]
		b0, b1, b2 := sec[0]/a0, sec[1]/a0, sec[2]/a0
		a1, a2 := sec[4]/a0, sec[5]/a0
		z0, z1 := zf[s][0], zf[s][1]
		for i, xi := range y {
			yi := b0*xi + z0
			z0 = b1*xi - a1*yi + z1
			z1 = b2*xi - a2*yi
			y[i] = yi
		}
		zf[s] = [2]float64{z0, z1}
	}
	return y, zf
}

// SOSFiltZi returns the per-section steady-state initial conditions for a
// unit step, each scaled by the DC gain of the sections before it.
func SOSFiltZi(sos []Section) ([][2]float64, error) {
	zi := make([][2]float64, len(sos))
	scale := 1.0
	for s, sec := range sos {
		b := sec[:3]
		a := sec[3:]
		z, err := LFilterZi(b, a)
		if err != nil {
			return nil, err
		}
		zi[s] = [2]float64{scale * z[0], scale * z[1]}
		scale *= (b[0] + b[1] + b[2]) / (a[0] + a[1] + a[2])
	}
	return zi, nil
}

// SOSFiltFilt is the second-order-section counterpart of FiltFilt.
func SOSFiltFilt(sos []Section, x []float64) ([]float64, error) {
	ntaps := 2*len(sos) + 1
	var bZero, aZero int
	for _, sec := range sos {
		if sec[2] == 0 {
			bZero++
		}
		if sec[5] == 0 {
			aZero++
		}
	}
	ntaps -= min(bZero, aZero)

	edge := 3 * ntaps
	if len(x) <= edge {
		return nil, fmt.Errorf("%w: need more than %d samples, got %d", ErrInputTooShort, edge, len(x))
	}
	zi, err := SOSFiltZi(sos)
	if err != nil {
		return nil, err
	}

	ext := oddExt(x, edge)
	y, _ := SOSFilt(sos, ext, scaledPairs(zi, ext[0]))
	reverse(y)
	y, _ = SOSFilt(sos, y, scaledPairs(zi, y[0]))
	reverse(y)
	return clip(y, edge), nil
}

func normalizeTF(b, a []float64) ([]float64, []float64) {
	n := max(len(a), len(b))
	nb := make([]float64, n)
	na := make([]float64, n)
	copy(nb, b)
	copy(na, a)
	if a0 := na[0]; a0 != 1 {
		for i := range nb {
			nb[i] /= a0
			na[i] /= a0
		}
	}
	return nb, na
}

// oddExt reflects n samples about each endpoint.
func oddExt(x []float64, n int) []float64 {
	last := len(x) - 1
	out := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := 1; i <= n; i++ {
		out = append(out, 2*x[last]-x[last-i])
	}
	return out
}

func clip(y []float64, edge int) []float64 {
	out := make([]float64, len(y)-2*edge)
	copy(out, y[edge:len(y)-edge])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * s
	}
	return out
}

func scaledPairs(v [][2]float64, s float64) [][2]float64 {
	out := make([][2]float64, len(v))
	for i := range v {
		out[i] = [2]float64{v[i][0] * s, v[i][1] * s}
	}
	return out
}
