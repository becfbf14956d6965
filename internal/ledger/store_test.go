package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginFinishRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	run, err := store.Begin(ctx, "/data/sub-01")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	run.Status = StatusRetryExhausted
	run.Epochs = 48
	run.Attempts = 5
	run.Threshold = 1.5
	run.Format = "edf"
	run.Error = "processing completed with fewer than expected epochs (48/108)"
	require.NoError(t, store.Finish(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusRetryExhausted, got.Status)
	assert.Equal(t, 48, got.Epochs)
	assert.Equal(t, 5, got.Attempts)
	assert.Equal(t, 1.5, got.Threshold)
	assert.Equal(t, "edf", got.Format)
	assert.Equal(t, run.Error, got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestRecentFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for _, dir := range []string{"/a", "/b", "/a"} {
		run, err := store.Begin(ctx, dir)
		require.NoError(t, err)
		run.Status = StatusSuccess
		require.NoError(t, store.Finish(ctx, run))
	}

	all, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "/a", all[0].Directory)

	onlyA, err := store.Recent(ctx, "/a", 10)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	limited, err := store.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetMissing(t *testing.T) {
	got, err := openStore(t).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFinishUnknownRun(t *testing.T) {
	err := openStore(t).Finish(context.Background(), &Run{ID: "missing", Status: StatusFailed})
	assert.Error(t, err)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.Begin(ctx, "/a")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, "UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(ctx, path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
