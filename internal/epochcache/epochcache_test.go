package epochcache

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/internal/eeg"
	"eegprep/internal/services"
	"eegprep/internal/testsupport"
)

func sampleSet() *eeg.EpochSet {
	return &eeg.EpochSet{
		Data:       [][][]float64{{{1, 2, 3}, {4, 5, 6}}},
		Channels:   []string{"Cz", "Pz"},
		SampleRate: 500,
		Onsets:     []int{500},
		Status:     eeg.StatusSuccess,
		Attempts:   []eeg.Attempt{{Threshold: 150e-6, Survivors: 1}},
		Threshold:  150e-6,
	}
}

func TestNewManagerDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutCache())
	manager := NewManager(cfg, nil)
	assert.Nil(t, manager)

	set, ok, err := manager.Load(context.Background(), t.TempDir())
	assert.Nil(t, set)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, manager.Store(context.Background(), t.TempDir(), sampleSet()))
}

func TestStoreLoadRoundTrip(t *testing.T) {
	manager := NewManager(testsupport.NewConfig(t), nil)
	dir := t.TempDir()

	_, ok, err := manager.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, manager.Store(context.Background(), dir, sampleSet()))
	got, ok, err := manager.Load(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(sampleSet(), got); diff != "" {
		t.Fatalf("cache mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreIsByteStable(t *testing.T) {
	manager := NewManager(testsupport.NewConfig(t), nil)
	dir := t.TempDir()
	require.NoError(t, manager.Store(context.Background(), dir, sampleSet()))
	first, err := os.ReadFile(manager.Path(dir))
	require.NoError(t, err)

	loaded, _, err := manager.Load(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, manager.Store(context.Background(), dir, loaded))
	second, err := os.ReadFile(manager.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadRemovesInvalidArtifacts(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, m *Manager, dir string)
	}{
		{name: "garbage", write: func(t *testing.T, m *Manager, dir string) {
			require.NoError(t, os.WriteFile(m.Path(dir), []byte("garbage"), 0o644))
		}},
		{name: "empty tensor", write: func(t *testing.T, m *Manager, dir string) {
			require.NoError(t, m.Store(context.Background(), dir, &eeg.EpochSet{Channels: []string{"Cz"}, SampleRate: 500}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(testsupport.NewConfig(t), nil)
			dir := t.TempDir()
			tt.write(t, manager, dir)

			set, ok, err := manager.Load(context.Background(), dir)
			assert.Nil(t, set)
			assert.False(t, ok)
			assert.True(t, errors.Is(err, services.ErrCacheCorrupt), "got %v", err)
			_, statErr := os.Stat(manager.Path(dir))
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "invalid artifact should be removed")
		})
	}
}

func TestClearAndStat(t *testing.T) {
	manager := NewManager(testsupport.NewConfig(t), nil)
	dir := t.TempDir()

	stats, err := manager.Stat(dir)
	require.NoError(t, err)
	assert.False(t, stats.Exists)

	require.NoError(t, manager.Store(context.Background(), dir, sampleSet()))
	stats, err = manager.Stat(dir)
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, []int{1, 2, 3}, stats.Shape)
	assert.Equal(t, "success", stats.Status)
	assert.Len(t, stats.SHA256, 64)
	assert.Empty(t, stats.Problem)

	removed, err := manager.Clear(dir)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = manager.Clear(dir)
	require.NoError(t, err)
	assert.False(t, removed)
}
