// Package dsp provides the IIR design and zero-phase filtering primitives used
// by the activity-count pipeline: Butterworth and Chebyshev type I design via
// analog prototypes and the bilinear transform, direct-form and second-order
// section filtering, forward-backward filtering, decimation and linear
// resampling.
package dsp

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
)

// ErrDesign is returned for invalid filter orders, ripple or cutoffs.
var ErrDesign = errors.New("filter design error")

// Band selects the filter response type.
type Band int

const (
	Lowpass Band = iota
	Highpass
	Bandpass
)

func (b Band) String() string {
	switch b {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	default:
		return fmt.Sprintf("Band(%d)", int(b))
	}
}

// ZPK is a filter in zero-pole-gain form.
type ZPK struct {
	Z []complex128
	P []complex128
	K float64
}

// Normalize converts frequencies in Hz to fractions of the Nyquist frequency.
func Normalize(fs float64, freqs ...float64) []float64 {
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = 2 * f / fs
	}
	return out
}

// Butter designs a digital Butterworth filter. wn holds cutoffs normalised to
// Nyquist: one value for low/high-pass, two for band-pass.
func Butter(order int, wn []float64, band Band) (ZPK, error) {
	if order < 1 {
		return ZPK{}, fmt.Errorf("%w: order must be positive, got %d", ErrDesign, order)
	}
	p := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		theta := math.Pi * float64(m) / float64(2*order)
		p = append(p, -cmplx.Exp(complex(0, theta)))
	}
	return digitize(nil, p, 1, wn, band)
}

// Cheby1 designs a digital Chebyshev type I filter with rp dB of passband
// ripple.
func Cheby1(order int, rp float64, wn []float64, band Band) (ZPK, error) {
	if order < 1 {
		return ZPK{}, fmt.Errorf("%w: order must be positive, got %d", ErrDesign, order)
	}
	if rp <= 0 {
		return ZPK{}, fmt.Errorf("%w: passband ripple must be positive, got %g", ErrDesign, rp)
	}
	eps := math.Sqrt(math.Pow(10, 0.1*rp) - 1)
	mu := math.Asinh(1/eps) / float64(order)

	p := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		theta := math.Pi * float64(m) / float64(2*order)
		p = append(p, -cmplx.Sinh(complex(mu, theta)))
	}
	prod := complex(1, 0)
	for _, pi := range p {
		prod *= -pi
	}
	k := real(prod)
	if order%2 == 0 {
		k /= math.Sqrt(1 + eps*eps)
	}
	return digitize(nil, p, k, wn, band)
}

// digitize pre-warps the cutoffs, applies the band transform to the analog
// prototype and maps it to the z-plane.
func digitize(z, p []complex128, k float64, wn []float64, band Band) (ZPK, error) {
	want := 1
	if band == Bandpass {
		want = 2
	}
	if len(wn) != want {
		return ZPK{}, fmt.Errorf("%w: %s needs %d cutoff(s), got %d", ErrDesign, band, want, len(wn))
	}
	for _, w := range wn {
		if !(w > 0 && w < 1) {
			return ZPK{}, fmt.Errorf("%w: normalised cutoff %g outside (0, 1)", ErrDesign, w)
		}
	}
	if band == Bandpass && wn[0] >= wn[1] {
		return ZPK{}, fmt.Errorf("%w: band edges %g >= %g", ErrDesign, wn[0], wn[1])
	}

	const fs = 2.0
	warped := make([]float64, len(wn))
	for i, w := range wn {
		warped[i] = 2 * fs * math.Tan(math.Pi*w/fs)
	}

	var f ZPK
	switch band {
	case Lowpass:
		f = lowToLow(z, p, k, warped[0])
	case Highpass:
		f = lowToHigh(z, p, k, warped[0])
	case Bandpass:
		bw := warped[1] - warped[0]
		wo := math.Sqrt(warped[0] * warped[1])
		f = lowToBand(z, p, k, wo, bw)
	default:
		return ZPK{}, fmt.Errorf("%w: unsupported band %s", ErrDesign, band)
	}
	return bilinear(f, fs), nil
}

func lowToLow(z, p []complex128, k, wo float64) ZPK {
	degree := len(p) - len(z)
	cw := complex(wo, 0)
	return ZPK{
		Z: scaleRoots(z, cw),
		P: scaleRoots(p, cw),
		K: k * math.Pow(wo, float64(degree)),
	}
}

func lowToHigh(z, p []complex128, k, wo float64) ZPK {
	degree := len(p) - len(z)
	cw := complex(wo, 0)
	zh := make([]complex128, 0, len(z)+degree)
	for _, zi := range z {
		zh = append(zh, cw/zi)
	}
	ph := make([]complex128, len(p))
	for i, pi := range p {
		ph[i] = cw / pi
	}
	for range degree {
		zh = append(zh, 0)
	}
	num, den := complex(1, 0), complex(1, 0)
	for _, zi := range z {
		num *= -zi
	}
	for _, pi := range p {
		den *= -pi
	}
	return ZPK{Z: zh, P: ph, K: k * real(num/den)}
}

func lowToBand(z, p []complex128, k, wo, bw float64) ZPK {
	degree := len(p) - len(z)
	half := complex(bw/2, 0)
	wo2 := complex(wo*wo, 0)

	split := func(roots []complex128) []complex128 {
		out := make([]complex128, 0, 2*len(roots))
		lp := scaleRoots(roots, half)
		for _, r := range lp {
			out = append(out, r+cmplx.Sqrt(r*r-wo2))
		}
		for _, r := range lp {
			out = append(out, r-cmplx.Sqrt(r*r-wo2))
		}
		return out
	}

	zb := split(z)
	for range degree {
		zb = append(zb, 0)
	}
	return ZPK{Z: zb, P: split(p), K: k * math.Pow(bw, float64(degree))}
}

func bilinear(f ZPK, fs float64) ZPK {
	fs2 := complex(2*fs, 0)
	degree := len(f.P) - len(f.Z)

	zz := make([]complex128, 0, len(f.Z)+degree)
	num := complex(1, 0)
	for _, z := range f.Z {
		zz = append(zz, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	for range degree {
		zz = append(zz, -1)
	}
	pz := make([]complex128, len(f.P))
	den := complex(1, 0)
	for i, p := range f.P {
		pz[i] = (fs2 + p) / (fs2 - p)
		den *= fs2 - p
	}
	return ZPK{Z: zz, P: pz, K: f.K * real(num/den)}
}

func scaleRoots(r []complex128, s complex128) []complex128 {
	out := make([]complex128, len(r))
	for i, v := range r {
		out[i] = v * s
	}
	return out
}

// TF expands the filter into transfer-function coefficients b and a.
func (f ZPK) TF() (b, a []float64) {
	b = poly(f.Z)
	for i := range b {
		b[i] *= f.K
	}
	return b, poly(f.P)
}

// poly returns the real coefficients of the monic polynomial with the given
// roots, highest power first.
func poly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		copy(next, c)
		for i := 1; i < len(next); i++ {
			next[i] -= r * c[i-1]
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// Section is one biquad: b0 b1 b2 a0 a1 a2.
type Section [6]float64

// SOS converts the filter into cascaded second-order sections. Conjugate
// roots share a section, sections are ordered so that poles nearest the unit
// circle come last, and the overall gain sits in the first section.
func (f ZPK) SOS() []Section {
	n := max(len(f.Z), len(f.P))
	if n == 0 {
		return []Section{{f.K, 0, 0, 1, 0, 0}}
	}
	nSections := (n + 1) / 2
	poles := rootPairs(padRoots(f.P, 2*nSections))
	zeros := rootPairs(padRoots(f.Z, 2*nSections))

	slices.SortStableFunc(poles, func(x, y [2]complex128) int {
		return cmp.Compare(pairRadius(x), pairRadius(y))
	})

	sos := make([]Section, nSections)
	used := make([]bool, len(zeros))
	for i := nSections - 1; i >= 0; i-- {
		best, bestDist := -1, math.Inf(1)
		for j, zp := range zeros {
			if used[j] {
				continue
			}
			d := math.Min(cmplx.Abs(zp[0]-poles[i][0]), cmplx.Abs(zp[1]-poles[i][0]))
			if best < 0 || d < bestDist {
				best, bestDist = j, d
			}
		}
		used[best] = true
		zb := quadratic(zeros[best])
		pa := quadratic(poles[i])
		sos[i] = Section{zb[0], zb[1], zb[2], pa[0], pa[1], pa[2]}
	}
	sos[0][0] *= f.K
	sos[0][1] *= f.K
	sos[0][2] *= f.K
	return sos
}

func padRoots(r []complex128, n int) []complex128 {
	out := make([]complex128, n)
	copy(out, r)
	return out
}

func isReal(c complex128) bool {
	return math.Abs(imag(c)) <= 1e-10*(1+cmplx.Abs(c))
}

// rootPairs groups roots into conjugate pairs and pairs of reals. Roots with
// negative imaginary part are taken to be conjugates of the positive ones.
func rootPairs(roots []complex128) [][2]complex128 {
	var reals []float64
	var pairs [][2]complex128
	for _, r := range roots {
		switch {
		case isReal(r):
			reals = append(reals, real(r))
		case imag(r) > 0:
			pairs = append(pairs, [2]complex128{r, cmplx.Conj(r)})
		}
	}
	slices.Sort(reals)
	for i := 0; i+1 < len(reals); i += 2 {
		pairs = append(pairs, [2]complex128{complex(reals[i], 0), complex(reals[i+1], 0)})
	}
	if len(reals)%2 == 1 {
		pairs = append(pairs, [2]complex128{complex(reals[len(reals)-1], 0), 0})
	}
	return pairs
}

func pairRadius(p [2]complex128) float64 {
	return math.Max(cmplx.Abs(p[0]), cmplx.Abs(p[1]))
}

func quadratic(p [2]complex128) [3]float64 {
	return [3]float64{1, -real(p[0] + p[1]), real(p[0] * p[1])}
}
