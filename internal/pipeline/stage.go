package pipeline

import (
	"context"
	"time"

	"eegprep/internal/channels"
	"eegprep/internal/eeg"
	"eegprep/internal/epochs"
	"eegprep/internal/formats"
	"eegprep/internal/ica"
	"eegprep/internal/logging"
	"eegprep/internal/repair"
)

// State is the per-recording working set passed between stages.
type State struct {
	Dir       string
	Recording *eeg.Recording
	Load      formats.Result
	Selection channels.Selection
	Montage   string
	Repair    repair.Report
	ICA       *ica.Decomposition
	Epochs    *eeg.EpochSet
	Report    epochs.Report
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// metricsReporter is implemented by stages that expose completion metrics.
type metricsReporter interface {
	Metrics(st *State) []logging.Attr
}

// EventKind classifies a stage event.
type EventKind string

const (
	EventStageStart    EventKind = "stage_start"
	EventStageComplete EventKind = "stage_complete"
	EventStageFailure  EventKind = "stage_failure"
)

// Event is emitted around every stage execution.
type Event struct {
	Kind     EventKind
	Stage    string
	Dir      string
	Duration time.Duration
	Err      error
	Metrics  []logging.Attr
}

// EventSink receives stage events in order. It is called synchronously.
type EventSink func(Event)

type stageFunc struct {
	name    string
	run     func(ctx context.Context, st *State) error
	metrics func(st *State) []logging.Attr
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, st *State) error { return s.run(ctx, st) }

func (s stageFunc) Metrics(st *State) []logging.Attr {
	if s.metrics == nil {
		return nil
	}
	return s.metrics(st)
}
