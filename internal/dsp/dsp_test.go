package dsp

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/internal/eeg"
	"eegprep/internal/services"
	"eegprep/internal/testsupport"
)

func sine(freq, rate float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func rms(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestResampleLengthAndAmplitude(t *testing.T) {
	tests := []struct {
		name   string
		source float64
		n      int
	}{
		{name: "downsample 1000", source: 1000, n: 4000},
		{name: "downsample 256", source: 256, n: 1024},
		{name: "upsample 250", source: 250, n: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &eeg.Recording{
				Channels:   []string{"Cz"},
				Data:       [][]float64{sine(10, tt.source, tt.n, 1)},
				SampleRate: tt.source,
			}
			require.NoError(t, Resample(context.Background(), rec, 500, NewPool(1)))
			want := ResampledLength(tt.n, tt.source, 500)
			assert.Equal(t, want, rec.Samples())
			assert.Equal(t, 500.0, rec.SampleRate)
			assert.InDelta(t, 1/math.Sqrt2, rms(rec.Data[0]), 1e-3)
			expect := sine(10, 500, want, 1)
			for i := 0; i < want; i += 37 {
				assert.InDelta(t, expect[i], rec.Data[0][i], 1e-6)
			}
		})
	}
}

func TestResampleIdentity(t *testing.T) {
	rec := &eeg.Recording{Channels: []string{"Cz"}, Data: [][]float64{{1, 2, 3}}, SampleRate: 500}
	require.NoError(t, Resample(context.Background(), rec, 500, NewPool(1)))
	assert.Equal(t, []float64{1, 2, 3}, rec.Data[0])
}

func TestResampleInsufficientSamples(t *testing.T) {
	rec := &eeg.Recording{Channels: []string{"Cz"}, Data: [][]float64{{1}}, SampleRate: 1000}
	err := Resample(context.Background(), rec, 500, NewPool(1))
	assert.ErrorIs(t, err, services.ErrInsufficientSamples)

	rec = &eeg.Recording{Channels: []string{"Cz"}, Data: [][]float64{{1, 2, 3}}, SampleRate: 5000}
	err = Resample(context.Background(), rec, 500, NewPool(1))
	assert.ErrorIs(t, err, services.ErrInsufficientSamples)
}

func TestDesignBandPassGeometry(t *testing.T) {
	f, err := DesignBandPass(1, 100, 500)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.LowTrans)
	assert.Equal(t, 25.0, f.HighTrans)
	assert.Len(t, f.Taps, 1651)

	assert.InDelta(t, 0.5, f.Response(0.5), 0.02, "-6 dB at low edge")
	assert.InDelta(t, 0.5, f.Response(112.5), 0.02, "-6 dB at high edge")
	assert.InDelta(t, 1.0, f.Response(10), 0.01)
	assert.InDelta(t, 1.0, f.Response(60), 0.01)
	assert.Less(t, f.Response(0), 0.01)
	assert.Less(t, f.Response(150), 0.01)
}

func TestDesignBandPassDegradesToHighPass(t *testing.T) {
	f, err := DesignBandPass(1, 100, 200)
	require.NoError(t, err)
	assert.True(t, f.HighPass)
	assert.Less(t, f.Response(0), 0.01)
	assert.InDelta(t, 1.0, f.Response(90), 0.01)
}

func TestTransitionBandwidths(t *testing.T) {
	l, h := TransitionBandwidths(1, 100, 500)
	assert.Equal(t, 1.0, l)
	assert.Equal(t, 25.0, h)

	l, h = TransitionBandwidths(20, 240, 500)
	assert.Equal(t, 5.0, l)
	assert.Equal(t, 10.0, h)
	assert.Equal(t, 1651, FilterLength(1, 500))
	assert.Equal(t, 331, FilterLength(5, 500))
}

func TestApplyRemovesDriftKeepsAlpha(t *testing.T) {
	const rate, n = 500.0, 10000
	alpha := sine(10, rate, n, 1e-5)
	drift := sine(0.05, rate, n, 1e-4)
	line := sine(200, rate, n, 1e-5)
	x := make([]float64, n)
	for i := range x {
		x[i] = alpha[i] + drift[i] + line[i]
	}
	rec := &eeg.Recording{Channels: []string{"Cz"}, Data: [][]float64{x}, SampleRate: rate}
	f, err := DesignBandPass(1, 100, rate)
	require.NoError(t, err)
	require.NoError(t, f.Apply(context.Background(), rec, NewPool(1)))

	// Compare away from the edges.
	mid := rec.Data[0][2000:8000]
	var maxErr float64
	for i, v := range mid {
		maxErr = math.Max(maxErr, math.Abs(v-alpha[2000+i]))
	}
	assert.Less(t, maxErr, 1e-6)
}

func TestApplyIndependentOfWorkerCount(t *testing.T) {
	base := testsupport.DefaultSignal(500, 6).Recording()
	f, err := DesignBandPass(1, 100, 500)
	require.NoError(t, err)

	var outputs [][][]float64
	for _, workers := range []int{1, 3, 8} {
		rec := &eeg.Recording{Channels: base.Channels, SampleRate: 500}
		for _, row := range base.Data {
			rec.Data = append(rec.Data, append([]float64(nil), row...))
		}
		require.NoError(t, f.Apply(context.Background(), rec, NewPool(workers)))
		require.NoError(t, Resample(context.Background(), rec, 250, NewPool(workers)))
		outputs = append(outputs, rec.Data)
	}
	for i := 1; i < len(outputs); i++ {
		if diff := cmp.Diff(outputs[0], outputs[i]); diff != "" {
			t.Fatalf("worker count changed output (-1 +%d):\n%s", i, diff)
		}
	}
}

func TestReflectLimited(t *testing.T) {
	assert.Equal(t, []float64{-1, 0, 1, 2, 3, 4, 5}, reflectLimited([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{0, 0, 1, 3, 5, 7, 0, 0}, reflectLimited([]float64{3, 5}, 3))
}

func TestAverageReference(t *testing.T) {
	rec := &eeg.Recording{Channels: []string{"a", "b", "c"}, Data: [][]float64{{1, 4}, {2, 5}, {3, 9}}, SampleRate: 1}
	AverageReference(rec)
	assert.Equal(t, [][]float64{{-1, -2}, {0, -1}, {1, 3}}, rec.Data)
	for tIdx := 0; tIdx < 2; tIdx++ {
		sum := rec.Data[0][tIdx] + rec.Data[1][tIdx] + rec.Data[2][tIdx]
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestPoolPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewPool(2).Each(ctx, 4, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
