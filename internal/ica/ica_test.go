package ica

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"eegprep/internal/config"
	"eegprep/internal/dsp"
	"eegprep/internal/eeg"
	"eegprep/internal/services"
)

func mixture(n int) (*eeg.Recording, [][]float64) {
	s1 := make([]float64, n)
	s2 := make([]float64, n)
	for i := range s1 {
		t := float64(i) / 250
		s1[i] = math.Sin(2 * math.Pi * 7 * t)
		if math.Sin(2*math.Pi*3.3*t) >= 0 {
			s2[i] = 1
		} else {
			s2[i] = -1
		}
	}
	mixing := [][2]float64{{1, 0.5}, {0.3, 1}, {-0.7, 0.2}, {0.4, -0.9}}
	rec := &eeg.Recording{Channels: []string{"a", "b", "c", "d"}, SampleRate: 250}
	for _, m := range mixing {
		row := make([]float64, n)
		for i := range row {
			row[i] = 1e-5 * (m[0]*s1[i] + m[1]*s2[i])
		}
		rec.Data = append(rec.Data, row)
	}
	return rec, [][]float64{s1, s2}
}

func options() Options {
	opts := OptionsFrom(config.Default().ICA)
	opts.Decim = 1
	return opts
}

func TestFitRecoversSources(t *testing.T) {
	rec, truth := mixture(5000)
	dec, err := NewFitter(options(), dsp.NewPool(2), nil).Fit(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Components(), "rank limits components")
	assert.True(t, dec.Converged)

	sources := dec.Sources(rec)
	for _, s := range truth {
		best := 0.0
		for k := 0; k < dec.Components(); k++ {
			best = math.Max(best, math.Abs(stat.Correlation(s, sources.RawRowView(k), nil)))
		}
		assert.Greater(t, best, 0.95)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	rec, _ := mixture(3000)
	fitter := NewFitter(options(), dsp.NewPool(1), nil)
	a, err := fitter.Fit(context.Background(), rec)
	require.NoError(t, err)
	b, err := NewFitter(options(), dsp.NewPool(4), nil).Fit(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.Unmixing, b.Unmixing))
	assert.Equal(t, a.Iterations, b.Iterations)
}

func TestRemove(t *testing.T) {
	rec, _ := mixture(2000)
	dec, err := NewFitter(options(), dsp.NewPool(1), nil).Fit(context.Background(), rec)
	require.NoError(t, err)

	before := append([]float64(nil), rec.Data[0]...)
	require.NoError(t, dec.Remove(rec, nil))
	assert.Equal(t, before, rec.Data[0], "no exclusions leave the signal unchanged")

	assert.ErrorIs(t, dec.Remove(rec, []int{5}), services.ErrConfiguration)

	require.NoError(t, dec.Remove(rec, []int{0, 1}))
	for c, row := range rec.Data {
		for _, v := range row[:100] {
			assert.InDelta(t, dec.Mean[c], v, 1e-9)
		}
	}
}

func TestFitInsufficientSamples(t *testing.T) {
	rec := &eeg.Recording{Channels: []string{"a", "b"}, Data: [][]float64{{1, 2, 3}, {3, 2, 1}}, SampleRate: 1}
	_, err := NewFitter(options(), dsp.NewPool(1), nil).Fit(context.Background(), rec)
	assert.ErrorIs(t, err, services.ErrInsufficientSamples)
}

func TestDecimate(t *testing.T) {
	got := decimate([][]float64{{0, 1, 2, 3, 4, 5, 6}}, 3)
	assert.Equal(t, [][]float64{{0, 3, 6}}, got)
}
