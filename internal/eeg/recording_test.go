package eeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalChannels(t *testing.T) {
	require.Len(t, CanonicalChannels, CanonicalChannelCount)
	seen := map[string]bool{}
	for _, ch := range CanonicalChannels {
		assert.False(t, seen[ch], "duplicate %s", ch)
		seen[ch] = true
	}
	assert.Equal(t, []string{"Fpz", "Fp1", "Fp2"}, CanonicalChannels[:3])
}

func TestRecordingValidate(t *testing.T) {
	rec := &Recording{
		Channels:   []string{"Cz", "Pz"},
		Data:       [][]float64{{1, 2, 3}, {4, 5, 6}},
		SampleRate: 100,
	}
	require.NoError(t, rec.Validate())
	assert.Equal(t, 3, rec.Samples())
	assert.InDelta(t, 0.03, rec.Duration(), 1e-12)

	rec.Data[1] = []float64{1}
	assert.Error(t, rec.Validate())

	rec.Data[1] = []float64{1, 2, 3}
	rec.Channels[1] = "Cz"
	assert.ErrorContains(t, rec.Validate(), "duplicate")

	assert.Error(t, (&Recording{SampleRate: 0}).Validate())
}

func TestMarkBadIsIdempotent(t *testing.T) {
	rec := &Recording{Channels: []string{"Cz"}}
	rec.MarkBad("Cz")
	rec.MarkBad("Cz")
	assert.Equal(t, []string{"Cz"}, rec.Bads)
	assert.True(t, rec.IsBad("Cz"))
}

func TestHasPositions(t *testing.T) {
	rec := &Recording{Channels: []string{"Cz", "Pz"}}
	assert.False(t, rec.HasPositions())
	rec.Positions = map[string]Position{"Cz": {Z: 1}}
	assert.False(t, rec.HasPositions())
	rec.Positions["Pz"] = Position{Y: -1}
	assert.True(t, rec.HasPositions())
}

func TestEpochSetShape(t *testing.T) {
	var empty *EpochSet
	assert.True(t, empty.Empty())

	set := &EpochSet{Data: [][][]float64{{{1, 2}, {3, 4}, {5, 6}}}}
	n, c, s := set.Shape()
	assert.Equal(t, []int{1, 3, 2}, []int{n, c, s})
	assert.False(t, set.Empty())
}
