package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/internal/config"
	"eegprep/internal/eeg"
	"eegprep/internal/ledger"
	"eegprep/internal/services"
	"eegprep/internal/testsupport"
)

func newTestProcessor(t *testing.T, cfg *config.Config, opts ...Option) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg, nil, opts...)
	require.NoError(t, err)
	return p
}

func fastConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithICAComponents(4)}, opts...)...)
}

func writeEDFRecording(t *testing.T, seconds float64) string {
	t.Helper()
	dir := t.TempDir()
	rec := testsupport.DefaultSignal(256, seconds).Recording()
	testsupport.WriteEDF(t, filepath.Join(dir, "sub-01.edf"), rec, testsupport.EDFOptions{})
	return dir
}

func recordEvents(events *[]Event) Option {
	return WithEventSink(func(ev Event) { *events = append(*events, ev) })
}

func TestProcessFullLengthRecording(t *testing.T) {
	dir := writeEDFRecording(t, 300)
	var events []Event
	p := newTestProcessor(t, fastConfig(t), recordEvents(&events))

	set, err := p.Process(context.Background(), dir)
	require.NoError(t, err)

	n, c, s := set.Shape()
	assert.Equal(t, []int{108, 59, 1000}, []int{n, c, s})
	assert.Equal(t, eeg.StatusSuccess, set.Status)
	assert.Equal(t, eeg.CanonicalChannels, set.Channels)
	assert.Equal(t, 500.0, set.SampleRate)

	var started []string
	for _, ev := range events {
		if ev.Kind == EventStageStart {
			started = append(started, ev.Stage)
		}
	}
	assert.Equal(t, []string{
		StageLoad, StageCanonicalize, StageMontage, StageRepair, StageResample,
		StageFilter, StageICA, StageReference, StageEpochs,
	}, started)

	_, err = os.Stat(filepath.Join(dir, "preprocessed-epo.eegx"))
	require.NoError(t, err)
}

func TestProcessShortRecordingReturnsDataWithRetryExhausted(t *testing.T) {
	dir := writeEDFRecording(t, 50)
	p := newTestProcessor(t, fastConfig(t))

	set, err := p.Process(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrRetryExhausted))
	assert.False(t, services.IsFatal(err))

	require.NotNil(t, set)
	n, c, s := set.Shape()
	assert.Equal(t, []int{48, 59, 1000}, []int{n, c, s})
	assert.Equal(t, eeg.StatusRetryExhausted, set.Status)
	assert.Len(t, set.Attempts, 5)
}

func TestProcessUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recording.xyz"), []byte("not eeg"), 0o644))
	p := newTestProcessor(t, fastConfig(t))

	set, err := p.Process(context.Background(), dir)
	assert.Nil(t, set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNoSupportedFormat))
	assert.True(t, services.IsFatal(err))
}

func TestProcessUsesCacheWithoutRawInput(t *testing.T) {
	dir := writeEDFRecording(t, 300)
	p := newTestProcessor(t, fastConfig(t))

	first, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	artifact := filepath.Join(dir, "preprocessed-epo.eegx")
	before, err := os.ReadFile(artifact)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "sub-01.edf")))

	var events []Event
	cached := newTestProcessor(t, fastConfig(t), recordEvents(&events))
	second, err := cached.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, events, "cache hit must not run any stage")
	assert.Equal(t, first.Data, second.Data)

	after, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, before, after, "re-serialized artifact must be byte-identical")
}

func TestProcessReplacesInvalidCache(t *testing.T) {
	dir := writeEDFRecording(t, 300)
	artifact := filepath.Join(dir, "preprocessed-epo.eegx")
	require.NoError(t, os.WriteFile(artifact, []byte("EEGX garbage"), 0o644))

	var events []Event
	p := newTestProcessor(t, fastConfig(t), recordEvents(&events))
	set, err := p.Process(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, set.Empty())
	assert.NotEmpty(t, events)

	reloaded, err := newTestProcessor(t, fastConfig(t)).Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, set.Data, reloaded.Data)
}

func TestProcessCanonicalizesChannelSuperset(t *testing.T) {
	sig := testsupport.DefaultSignal(500, 300)
	sig.Channels = append([]string{"EOG1"}, sig.Channels...)
	for i := len(sig.Channels) - 1; i > len(sig.Channels)-10; i-- {
		sig.Channels[i] = strings.ToUpper(sig.Channels[i])
	}
	sig.Channels = append(sig.Channels, "ECG")
	dir := t.TempDir()
	testsupport.WriteNative(t, dir, "raw", sig.Recording())

	set, err := newTestProcessor(t, fastConfig(t, testsupport.WithoutCache())).Process(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, eeg.CanonicalChannels, set.Channels)
	_, c, _ := set.Shape()
	assert.Equal(t, 59, c)
	_, err = os.Stat(filepath.Join(dir, "preprocessed-epo.eegx"))
	assert.True(t, os.IsNotExist(err), "disabled cache must not write an artifact")
}

func TestProcessMissingChannelsIsFatal(t *testing.T) {
	sig := testsupport.DefaultSignal(500, 60)
	sig.Channels = sig.Channels[:50]
	dir := t.TempDir()
	testsupport.WriteNative(t, dir, "raw", sig.Recording())

	_, err := newTestProcessor(t, fastConfig(t)).Process(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrMissingChannels))
}

func TestProcessBadChannelsWithoutPositionsIsFatal(t *testing.T) {
	rec := testsupport.DefaultSignal(500, 60).Recording()
	rec.Bads = []string{"C3"}
	dir := t.TempDir()
	testsupport.WriteNative(t, dir, "raw", rec)

	cfg := fastConfig(t)
	cfg.Montage.Primary = "sidecar"
	cfg.Montage.Fallbacks = nil

	_, err := newTestProcessor(t, cfg).Process(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrInterpolationUnavailable))
}

func TestProcessCancelledBeforeFirstStage(t *testing.T) {
	dir := writeEDFRecording(t, 60)
	var events []Event
	p := newTestProcessor(t, fastConfig(t), recordEvents(&events))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, events)
}

func TestStageFailureStopsChain(t *testing.T) {
	boom := services.Wrap(services.ErrInsufficientSamples, "second", "", "boom", nil)
	var ran []string
	stages := []Stage{
		stageFunc{name: "first", run: func(context.Context, *State) error { ran = append(ran, "first"); return nil }},
		stageFunc{name: "second", run: func(context.Context, *State) error { ran = append(ran, "second"); return boom }},
		stageFunc{name: "third", run: func(context.Context, *State) error { ran = append(ran, "third"); return nil }},
	}
	var events []Event
	p := newTestProcessor(t, fastConfig(t, testsupport.WithoutCache()), WithStages(stages...), recordEvents(&events))
	assert.Equal(t, []string{"first", "second", "third"}, p.Stages())

	_, err := p.Process(context.Background(), t.TempDir())
	require.ErrorIs(t, err, services.ErrInsufficientSamples)
	assert.Equal(t, []string{"first", "second"}, ran)

	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{EventStageStart, EventStageComplete, EventStageStart, EventStageFailure}, kinds)
	assert.Equal(t, boom, events[3].Err)
}

func TestICAStageSkippedWithoutComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithICAComponents(0))
	p := newTestProcessor(t, cfg)
	assert.NotContains(t, p.Stages(), StageICA)
}

func TestNewProcessorRejectsInvalidConfig(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Pipeline.HighFreq = 0.5
	_, err := NewProcessor(cfg, nil)
	require.ErrorIs(t, err, services.ErrConfiguration)
}

func TestProcessBatchRecordsLedger(t *testing.T) {
	cfg := fastConfig(t, testsupport.WithLedger())
	require.NoError(t, cfg.EnsureDirectories())
	store, err := ledger.Open(context.Background(), cfg.LedgerPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	good := writeEDFRecording(t, 300)
	short := writeEDFRecording(t, 50)
	empty := t.TempDir()

	p := newTestProcessor(t, cfg, WithLedger(store))
	outcomes := p.ProcessBatch(context.Background(), []string{good, short, empty})
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, services.ErrRetryExhausted)
	assert.False(t, outcomes[1].Fatal())
	assert.True(t, outcomes[2].Fatal())

	want := []ledger.Status{ledger.StatusSuccess, ledger.StatusRetryExhausted, ledger.StatusFailed}
	for i, outcome := range outcomes {
		run, err := store.Get(context.Background(), outcome.RunID)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, want[i], run.Status, outcome.Dir)
		assert.NotNil(t, run.FinishedAt)
	}

	again := p.ProcessBatch(context.Background(), []string{good})
	require.NoError(t, again[0].Err)
	assert.True(t, again[0].Cached)
	run, err := store.Get(context.Background(), again[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCached, run.Status)
	assert.Equal(t, 108, run.Epochs)
}
