package dsp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"eegprep/internal/eeg"
	"eegprep/internal/services"
)

// BandPass is a linear-phase FIR design. When High is at or above Nyquist the
// design degrades to a high-pass at Low.
type BandPass struct {
	Low, High  float64
	SampleRate float64
	LowTrans   float64
	HighTrans  float64
	HighPass   bool
	Taps       []float64
}

// TransitionBandwidths returns the automatic transition widths for edges l
// and h at sample rate fs.
func TransitionBandwidths(l, h, fs float64) (lTrans, hTrans float64) {
	nyq := fs / 2
	lTrans = math.Min(math.Max(0.25*l, 2), l)
	hTrans = math.Min(math.Max(0.25*h, 2), nyq-h)
	return lTrans, hTrans
}

// FilterLength returns ceil(3.3/minTrans·fs) rounded up to an odd length.
func FilterLength(minTrans, fs float64) int {
	n := int(math.Ceil(3.3 / minTrans * fs))
	if n%2 == 0 {
		n++
	}
	return n
}

// DesignBandPass builds a Hamming-windowed sinc band-pass whose -6 dB points
// sit at l-lTrans/2 and h+hTrans/2.
func DesignBandPass(l, h, fs float64) (*BandPass, error) {
	nyq := fs / 2
	if fs <= 0 || l <= 0 || l >= nyq {
		return nil, fmt.Errorf("band edges %g-%g Hz invalid at %g Hz", l, h, fs)
	}
	f := &BandPass{Low: l, High: h, SampleRate: fs}
	lTrans, hTrans := TransitionBandwidths(l, math.Min(h, nyq), fs)
	f.LowTrans = lTrans
	minTrans := lTrans
	if h >= nyq {
		f.HighPass = true
	} else {
		if h <= l {
			return nil, fmt.Errorf("high edge %g Hz must exceed low edge %g Hz", h, l)
		}
		f.HighTrans = hTrans
		minTrans = math.Min(lTrans, hTrans)
	}

	length := FilterLength(minTrans, fs)
	mid := (length - 1) / 2
	low6 := (l - lTrans/2) / fs
	high6 := 0.0
	if !f.HighPass {
		high6 = (h + hTrans/2) / fs
	}

	taps := make([]float64, length)
	for k := range taps {
		t := float64(k - mid)
		var v float64
		if f.HighPass {
			v = -2 * low6 * sinc(2*low6*t)
			if k == mid {
				v += 1
			}
		} else {
			v = 2*high6*sinc(2*high6*t) - 2*low6*sinc(2*low6*t)
		}
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(k)/float64(length-1))
		taps[k] = v * w
	}

	// Unit gain at the passband centre (Nyquist for high-pass).
	center := 0.5
	if !f.HighPass {
		center = (low6 + high6) / 2
	}
	gain := 0.0
	for k, v := range taps {
		gain += v * math.Cos(2*math.Pi*center*float64(k-mid))
	}
	for k := range taps {
		taps[k] /= gain
	}
	f.Taps = taps
	return f, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// Response returns the magnitude response at freq Hz.
func (f *BandPass) Response(freq float64) float64 {
	mid := (len(f.Taps) - 1) / 2
	var re, im float64
	for k, v := range f.Taps {
		phase := -2 * math.Pi * freq / f.SampleRate * float64(k-mid)
		re += v * math.Cos(phase)
		im += v * math.Sin(phase)
	}
	return math.Hypot(re, im)
}

// Apply filters every channel of rec in place with zero phase.
func (f *BandPass) Apply(ctx context.Context, rec *eeg.Recording, pool Pool) error {
	if rec.SampleRate != f.SampleRate {
		return services.Wrap(services.ErrConfiguration, "filter", "", fmt.Sprintf("designed for %g Hz, recording is %g Hz", f.SampleRate, rec.SampleRate), nil)
	}
	n := rec.Samples()
	if n == 0 {
		return services.Wrap(services.ErrInsufficientSamples, "filter", "", "empty recording", nil)
	}
	pad := len(f.Taps) - 1
	size := nextPow2(n + 2*pad + len(f.Taps) - 1)
	kernel := make([]float64, size)
	copy(kernel, f.Taps)
	taps := fourier.NewFFT(size).Coefficients(nil, kernel)

	out := make([][]float64, len(rec.Data))
	err := pool.Each(ctx, len(rec.Data), func(_ context.Context, c int) error {
		out[c] = convolve(rec.Data[c], taps, size, pad, len(f.Taps))
		return nil
	})
	if err != nil {
		return err
	}
	rec.Data = out
	return nil
}

// convolve applies the kernel spectrum to x after reflect-limited padding and
// removes the group delay.
func convolve(x []float64, taps []complex128, size, pad, length int) []float64 {
	fft := fourier.NewFFT(size)
	buf := make([]float64, size)
	padded := reflectLimited(x, pad)
	copy(buf, padded)
	spec := fft.Coefficients(nil, buf)
	for i := range spec {
		spec[i] *= taps[i]
	}
	full := fft.Sequence(buf, spec)
	delay := (length - 1) / 2
	out := make([]float64, len(x))
	scale := 1 / float64(size)
	for i := range out {
		out[i] = full[i+pad+delay] * scale
	}
	return out
}

// reflectLimited pads x on both sides with its odd reflection about the edge
// samples, limited to len(x)-1 values; further padding is zero.
func reflectLimited(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, 0, n+2*pad)
	reflect := min(pad, n-1)
	zeros := pad - reflect
	out = append(out, make([]float64, zeros)...)
	for i := reflect; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := 1; i <= reflect; i++ {
		out = append(out, 2*x[n-1]-x[n-1-i])
	}
	return append(out, make([]float64, zeros)...)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
