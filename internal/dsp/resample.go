package dsp

import (
	"fmt"
	"math"
)

// Decimation anti-aliasing filter: order-8 Chebyshev type I, 0.05 dB ripple,
// cutoff at 0.8 of the new Nyquist frequency.
const (
	decimateOrder  = 8
	decimateRipple = 0.05
	decimateCutoff = 0.8
)

// Decimate low-pass filters x with zero phase and keeps every q-th sample.
func Decimate(x []float64, q int) ([]float64, error) {
	if q < 1 {
		return nil, fmt.Errorf("%w: decimation factor must be positive, got %d", ErrDesign, q)
	}
	if q == 1 {
		return append([]float64(nil), x...), nil
	}
	f, err := Cheby1(decimateOrder, decimateRipple, []float64{decimateCutoff / float64(q)}, Lowpass)
	if err != nil {
		return nil, err
	}
	y, err := SOSFiltFilt(f.SOS(), x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, (len(y)+q-1)/q)
	for i := 0; i < len(y); i += q {
		out = append(out, y[i])
	}
	return out, nil
}

// Downsample converts x from rate fs to rate target. Integer rate ratios use
// Decimate; other ratios low-pass filter with the same Chebyshev design and
// then interpolate linearly onto floor(len(x)·target/fs) evenly spaced points
// covering the original interval.
func Downsample(x []float64, fs, target float64) ([]float64, error) {
	if fs <= 0 || target <= 0 {
		return nil, fmt.Errorf("%w: sampling rates must be positive (fs=%g, target=%g)", ErrDesign, fs, target)
	}
	ratio := fs / target
	if ratio < 1 {
		return nil, fmt.Errorf("%w: cannot downsample %g Hz to a higher rate %g Hz", ErrDesign, fs, target)
	}
	if q := math.Round(ratio); math.Abs(ratio-q) < 1e-9 {
		return Decimate(x, int(q))
	}

	f, err := Cheby1(decimateOrder, decimateRipple, []float64{decimateCutoff / ratio}, Lowpass)
	if err != nil {
		return nil, err
	}
	y, err := SOSFiltFilt(f.SOS(), x)
	if err != nil {
		return nil, err
	}
	return Interpolate(y, int(float64(len(y))*target/fs)), nil
}

// Interpolate resamples y, taken to lie at positions 0..len(y)-1, onto m
// points at positions i·len(y)/m using linear interpolation.
func Interpolate(y []float64, m int) []float64 {
	n := len(y)
	if m <= 0 || n == 0 {
		return []float64{}
	}
	out := make([]float64, m)
	step := float64(n) / float64(m)
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= n-1 {
			out[i] = y[n-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = y[lo] + frac*(y[lo+1]-y[lo])
	}
	return out
}
