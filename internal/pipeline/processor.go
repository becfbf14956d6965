package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eegprep/internal/config"
	"eegprep/internal/eeg"
	"eegprep/internal/epochcache"
	"eegprep/internal/ledger"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// Option customizes a Processor.
type Option func(*Processor)

// WithLedger records every Process call in store.
func WithLedger(store *ledger.Store) Option {
	return func(p *Processor) { p.ledger = store }
}

// WithEventSink forwards stage events to sink.
func WithEventSink(sink EventSink) Option {
	return func(p *Processor) { p.sink = sink }
}

// WithStages replaces the default conditioning chain.
func WithStages(stages ...Stage) Option {
	return func(p *Processor) { p.stages = stages }
}

// Processor runs the pipeline for one recording directory at a time.
type Processor struct {
	cfg    *config.Config
	logger *slog.Logger
	cache  *epochcache.Manager
	ledger *ledger.Store
	sink   EventSink
	stages []Stage
}

// Outcome is the result of processing one directory.
type Outcome struct {
	Dir    string
	RunID  string
	Set    *eeg.EpochSet
	Cached bool
	Format string
	Err    error
}

// Fatal reports whether the directory produced no usable epochs.
func (o Outcome) Fatal() bool {
	return services.IsFatal(o.Err)
}

// NewProcessor validates cfg and builds the default stage chain.
func NewProcessor(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Processor, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "validate config", "", err)
	}
	p := &Processor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		cache:  epochcache.NewManager(cfg, logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.stages == nil {
		stages, err := DefaultStages(cfg, logger)
		if err != nil {
			return nil, err
		}
		p.stages = stages
	}
	return p, nil
}

// Stages returns the stage names in execution order.
func (p *Processor) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Process turns dir into an epoch tensor. A RetryExhausted result returns
// the undersized set together with an error wrapping ErrRetryExhausted.
func (p *Processor) Process(ctx context.Context, dir string) (*eeg.EpochSet, error) {
	outcome := p.run(ctx, dir)
	return outcome.Set, outcome.Err
}

// ProcessBatch processes dirs sequentially. Cancellation stops the batch
// before the next directory; directories not reached are reported with the
// context error.
func (p *Processor) ProcessBatch(ctx context.Context, dirs []string) []Outcome {
	outcomes := make([]Outcome, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Dir: dir, Err: err})
			continue
		}
		outcomes = append(outcomes, p.run(ctx, dir))
	}
	return outcomes
}

func (p *Processor) run(ctx context.Context, dir string) Outcome {
	ctx = services.WithRecording(ctx, dir)
	outcome := Outcome{Dir: dir}

	run := p.beginRun(ctx, dir)
	if run != nil {
		outcome.RunID = run.ID
		ctx = services.WithRunID(ctx, run.ID)
	}
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	outcome.Set, outcome.Cached, outcome.Format, outcome.Err = p.process(ctx, dir)

	switch {
	case outcome.Err == nil:
		logger.Info("recording processed",
			logging.Shape("shape", shapeOf(outcome.Set)...),
			logging.Bool("cached", outcome.Cached),
			logging.Duration("duration", time.Since(started)),
		)
	case !outcome.Fatal():
		n, _, _ := outcome.Set.Shape()
		logging.WarnWithContext(logger, "recording processed with fewer epochs than expected", "recording_degraded",
			logging.Int("epochs", n),
			logging.Int("expected", p.cfg.Pipeline.EpochCount),
			logging.Bool("cached", outcome.Cached),
			logging.String(logging.FieldImpact, "classifiers receive an undersized tensor"),
			logging.String(logging.FieldErrorHint, "inspect the recording for artifacts or insufficient length"),
		)
	default:
		logging.ErrorWithContext(logger, "recording processing failed", "recording_failed",
			logging.String("reason", services.Reason(outcome.Err)),
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, "run eegprep inspect on the directory"),
		)
	}

	p.finishRun(ctx, run, outcome)
	return outcome
}

func (p *Processor) process(ctx context.Context, dir string) (*eeg.EpochSet, bool, string, error) {
	logger := logging.WithContext(ctx, p.logger)

	set, ok, err := p.cache.Load(ctx, dir)
	if err != nil && !errors.Is(err, services.ErrCacheCorrupt) {
		logging.WarnWithContext(logger, "epoch cache unreadable; reprocessing", "cache_unreadable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording will be processed from raw input"),
			logging.String(logging.FieldErrorHint, "check permissions on the recording directory"),
		)
	}
	if ok {
		if err := p.cache.Store(ctx, dir, set); err != nil {
			return nil, true, "", err
		}
		return set, true, "", p.statusError(set)
	}

	st := &State{Dir: dir}
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, false, st.Load.Strategy, fmt.Errorf("pipeline cancelled before %s: %w", stage.Name(), err)
		}
		if err := p.runStage(ctx, stage, st); err != nil {
			return nil, false, st.Load.Strategy, err
		}
	}
	if st.Epochs == nil {
		return nil, false, st.Load.Strategy, services.Wrap(services.ErrConfiguration, "pipeline", "run", "stage chain produced no epochs", nil)
	}

	if err := p.cache.Store(ctx, dir, st.Epochs); err != nil {
		return nil, false, st.Load.Strategy, err
	}
	return st.Epochs, false, st.Load.Strategy, p.statusError(st.Epochs)
}

func (p *Processor) runStage(ctx context.Context, stage Stage, st *State) error {
	name := stage.Name()
	stageCtx := logging.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, p.logger)

	logger.Info("stage started", logging.String(logging.FieldEventType, string(EventStageStart)))
	p.emit(Event{Kind: EventStageStart, Stage: name, Dir: st.Dir})

	started := time.Now()
	err := stage.Run(stageCtx, st)
	elapsed := time.Since(started)

	if err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, string(EventStageFailure)),
			logging.Duration("duration", elapsed),
			logging.String("reason", services.Reason(err)),
			logging.String("error_message", strings.TrimSpace(err.Error())),
			logging.String(logging.FieldErrorHint, "run eegprep inspect on the directory"),
		)
		p.emit(Event{Kind: EventStageFailure, Stage: name, Dir: st.Dir, Duration: elapsed, Err: err})
		return err
	}

	var metrics []logging.Attr
	if reporter, ok := stage.(metricsReporter); ok {
		metrics = reporter.Metrics(st)
	}
	attrs := append([]logging.Attr{
		logging.String(logging.FieldEventType, string(EventStageComplete)),
		logging.Duration("duration", elapsed),
	}, metrics...)
	logger.Info("stage completed", logging.Args(attrs...)...)
	p.emit(Event{Kind: EventStageComplete, Stage: name, Dir: st.Dir, Duration: elapsed, Metrics: metrics})
	return nil
}

func (p *Processor) emit(ev Event) {
	if p.sink != nil {
		p.sink(ev)
	}
}

func (p *Processor) statusError(set *eeg.EpochSet) error {
	if set.Status != eeg.StatusRetryExhausted {
		return nil
	}
	n, _, _ := set.Shape()
	return services.Wrap(services.ErrRetryExhausted, StageEpochs, "reject",
		fmt.Sprintf("%d/%d epochs after %d attempts", n, p.cfg.Pipeline.EpochCount, len(set.Attempts)), nil)
}

func (p *Processor) beginRun(ctx context.Context, dir string) *ledger.Run {
	if p.ledger == nil {
		return nil
	}
	run, err := p.ledger.Begin(ctx, dir)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "ledger begin failed", "ledger_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run will not appear in history"),
			logging.String(logging.FieldErrorHint, "check the state directory"),
		)
		return nil
	}
	return run
}

func (p *Processor) finishRun(ctx context.Context, run *ledger.Run, outcome Outcome) {
	if run == nil {
		return
	}
	run.Format = outcome.Format
	switch {
	case outcome.Fatal():
		run.Status = ledger.StatusFailed
	case outcome.Cached:
		run.Status = ledger.StatusCached
	case outcome.Err != nil:
		run.Status = ledger.StatusRetryExhausted
	default:
		run.Status = ledger.StatusSuccess
	}
	if outcome.Err != nil {
		run.Error = outcome.Err.Error()
	}
	if set := outcome.Set; set != nil {
		run.Epochs, _, _ = set.Shape()
		run.Attempts = len(set.Attempts)
		run.Threshold = set.Threshold
	}
	// Record the outcome even when ctx was cancelled mid-batch.
	if err := p.ledger.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "ledger finish failed", "ledger_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run outcome missing from history"),
			logging.String(logging.FieldErrorHint, "check the state directory"),
		)
	}
}

func shapeOf(set *eeg.EpochSet) []int {
	n, c, s := set.Shape()
	return []int{n, c, s}
}
