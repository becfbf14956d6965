package formats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/internal/eeg"
	"eegprep/internal/testsupport"
)

func TestBrainVisionLayouts(t *testing.T) {
	tests := []struct {
		name  string
		opts  testsupport.BrainVisionOptions
		delta float64
	}{
		{name: "multiplexed float", delta: 1e-12},
		{name: "vectorized float", opts: testsupport.BrainVisionOptions{Vectorized: true}, delta: 1e-12},
		{name: "int16", opts: testsupport.BrainVisionOptions{Int16: true}, delta: 1e-7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := smallSignal()
			path := testsupport.WriteBrainVision(t, t.TempDir(), "rec", rec, tt.opts)

			got, details, err := NewBrainVisionStrategy(EncodingUTF8).Read(context.Background(), path)
			require.NoError(t, err)
			assert.False(t, details.Reshaped)
			assert.Equal(t, rec.Channels, got.Channels)
			assert.Equal(t, rec.SampleRate, got.SampleRate)
			require.Equal(t, rec.Samples(), got.Samples())
			for c := range rec.Data {
				for i := 0; i < rec.Samples(); i += 53 {
					assert.InDelta(t, rec.Data[c][i], got.Data[c][i], tt.delta)
				}
			}
		})
	}
}

func TestBrainVisionLatin1Fallback(t *testing.T) {
	dir := t.TempDir()
	rec := smallSignal()
	testsupport.WriteBrainVision(t, dir, "rec", rec, testsupport.BrainVisionOptions{Latin1: true})

	got, result, err := NewLoader(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "brainvision-latin1", result.Strategy)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "brainvision-utf8", result.Failures[0].Strategy)
	assert.ErrorContains(t, result.Failures[0], "UTF-8")
	assert.InDelta(t, rec.Data[1][10], got.Data[1][10], 1e-12)
}

func TestBrainVisionUTF8PreferredWhenValid(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteBrainVision(t, dir, "rec", smallSignal(), testsupport.BrainVisionOptions{})

	_, result, err := NewLoader(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "brainvision-utf8", result.Strategy)
	assert.Empty(t, result.Failures)
}

func TestBrainVisionSegmentedIsReshaped(t *testing.T) {
	dir := t.TempDir()
	rec := smallSignal()
	testsupport.WriteBrainVision(t, dir, "rec", rec, testsupport.BrainVisionOptions{SegmentSamples: 250})

	got, result, err := NewLoader(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, result.Reshaped)
	assert.Equal(t, 4, result.Segments)
	assert.Equal(t, rec.Samples(), got.Samples())
	assert.Equal(t, rec.Channels, got.Channels)
	assert.Equal(t, rec.SampleRate, got.SampleRate)
}

func TestBrainVisionSegmentedWithoutDataPoints(t *testing.T) {
	dir := t.TempDir()
	rec := smallSignal()
	path := testsupport.WriteBrainVision(t, dir, "rec", rec, testsupport.BrainVisionOptions{SegmentSamples: 250, OmitSegmentPoints: true})

	got, details, err := NewBrainVisionStrategy(EncodingUTF8).Read(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, details.Reshaped)
	assert.Equal(t, 4, details.Segments)
	assert.Equal(t, rec.Samples(), got.Samples())
}

func TestBrainVisionMarkersAndBads(t *testing.T) {
	dir := t.TempDir()
	rec := smallSignal()
	rec.Annotations = []eeg.Annotation{{Onset: 2, Description: "Stimulus/S  1"}}
	path := testsupport.WriteBrainVision(t, dir, "rec", rec, testsupport.BrainVisionOptions{Bads: []string{"Oz"}})

	got, _, err := NewBrainVisionStrategy(EncodingUTF8).Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oz"}, got.Bads)
	require.Len(t, got.Annotations, 1)
	assert.Equal(t, "Stimulus/S  1", got.Annotations[0].Description)
	assert.InDelta(t, 2.0, got.Annotations[0].Onset, 1e-9)
}

func TestParseVHDRRejectsUnknownFormat(t *testing.T) {
	text := "Brain Vision Data Exchange Header File Version 1.0\n[Common Infos]\nDataFile=x.eeg\nNumberOfChannels=1\nSamplingInterval=2000\n[Binary Infos]\nBinaryFormat=UINT_8\n[Channel Infos]\nCh1=Cz,,1,uV\n"
	_, err := parseVHDR(text)
	assert.ErrorContains(t, err, "UINT_8")

	_, err = parseVHDR("not a header")
	assert.Error(t, err)
}
