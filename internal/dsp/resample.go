package dsp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"eegprep/internal/eeg"
	"eegprep/internal/services"
)

// ResampledLength returns round(n·target/source).
func ResampledLength(n int, source, target float64) int {
	return int(math.Round(float64(n) * target / source))
}

// Resample converts every channel of rec to target Hz in place.
func Resample(ctx context.Context, rec *eeg.Recording, target float64, pool Pool) error {
	if target <= 0 {
		return services.Wrap(services.ErrConfiguration, "resample", "", fmt.Sprintf("target rate %g", target), nil)
	}
	n := rec.Samples()
	if n < 2 {
		return services.Wrap(services.ErrInsufficientSamples, "resample", "", fmt.Sprintf("%d input samples", n), nil)
	}
	if rec.SampleRate == target {
		return nil
	}
	m := ResampledLength(n, rec.SampleRate, target)
	if m < 2 {
		return services.Wrap(services.ErrInsufficientSamples, "resample", "",
			fmt.Sprintf("%d samples at %g Hz leave %d at %g Hz", n, rec.SampleRate, m, target), nil)
	}

	out := make([][]float64, len(rec.Data))
	err := pool.Each(ctx, len(rec.Data), func(_ context.Context, c int) error {
		out[c] = ResampleFFT(rec.Data[c], m)
		return nil
	})
	if err != nil {
		return err
	}
	rec.Data = out
	rec.SampleRate = target
	return nil
}

// ResampleFFT changes the length of x to m by truncating or zero-padding its
// spectrum. An even-length Nyquist bin is doubled when it folds and halved
// when it splits, so the amplitude of band-limited content is preserved.
func ResampleFFT(x []float64, m int) []float64 {
	n := len(x)
	if m == n {
		return append([]float64(nil), x...)
	}
	spectrum := fourier.NewFFT(n).Coefficients(nil, x)

	out := make([]complex128, m/2+1)
	k := min(n, m)
	copy(out, spectrum[:k/2+1])
	if k%2 == 0 {
		switch {
		case m < n:
			out[k/2] *= 2
		case m > n:
			out[k/2] *= 0.5
		}
	}

	y := fourier.NewFFT(m).Sequence(nil, out)
	// Sequence is unnormalized by m; the m/n amplitude factor leaves 1/n.
	scale := 1 / float64(n)
	for i := range y {
		y[i] *= scale
	}
	return y
}
