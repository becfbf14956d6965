package epochs

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"eegprep/internal/config"
	"eegprep/internal/eeg"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// State is a rejection loop state.
type State string

const (
	StateInitial        State = "initial"
	StateTrying         State = "trying"
	StateSuccess        State = "success"
	StateRetryExhausted State = "retry_exhausted"
)

// Options fixes epoch geometry and the retry policy.
type Options struct {
	Count       int
	Samples     int
	Tmin, Tmax  float64
	Spacing     float64
	Criteria    RejectionCriteria
	Growth      float64
	MaxAttempts int
}

// OptionsFrom converts pipeline configuration.
func OptionsFrom(cfg config.Pipeline) Options {
	return Options{
		Count:       cfg.EpochCount,
		Samples:     cfg.EpochSamples,
		Tmin:        cfg.EpochTmin,
		Tmax:        cfg.EpochTmax,
		Spacing:     cfg.EventSpacing,
		Criteria:    RejectionCriteria{PeakToPeak: cfg.RejectPeakToPeak},
		Growth:      cfg.RejectGrowth,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Report describes how epochs were selected.
type Report struct {
	Events           int
	AnnotationEvents int
	Windows          int
	Transitions      []State
}

// Epocher runs the rejection loop.
type Epocher struct {
	opts   Options
	logger *slog.Logger
}

// New builds an epocher.
func New(opts Options, logger *slog.Logger) *Epocher {
	return &Epocher{opts: opts, logger: logging.NewComponentLogger(logger, "epochs")}
}

type window struct {
	onset int
	start int
	ptp   float64
}

// Extract builds the epoch set. A RetryExhausted outcome is reported through
// EpochSet.Status, not an error.
func (e *Epocher) Extract(ctx context.Context, rec *eeg.Recording) (*eeg.EpochSet, Report, error) {
	logger := logging.WithContext(ctx, e.logger)
	n := rec.Samples()
	report := Report{Transitions: []State{StateInitial}}

	events := FixedLengthEvents(n, rec.SampleRate, e.opts.Spacing)
	annotated := AnnotationEvents(rec.Annotations, rec.SampleRate, n)
	report.Events = len(events)
	report.AnnotationEvents = len(annotated)
	if len(annotated) > 0 {
		logger.Debug("annotation events superseded by fixed-length events",
			logging.Int("annotation_events", len(annotated)),
			logging.Int("fixed_events", len(events)),
		)
	}

	offset := int(math.Round(e.opts.Tmin * rec.SampleRate))
	length := int(math.Round((e.opts.Tmax-e.opts.Tmin)*rec.SampleRate)) + 1
	windows := make([]window, 0, len(events))
	for _, ev := range events {
		start := ev.Sample + offset
		if start < 0 || start+length > n {
			continue
		}
		windows = append(windows, window{onset: ev.Sample, start: start, ptp: worstPeakToPeak(rec.Data, start, length)})
	}
	report.Windows = len(windows)
	if len(windows) == 0 {
		return nil, report, services.Wrap(services.ErrInsufficientSamples, "epochs", "cut windows",
			fmt.Sprintf("%d samples hold no %d-sample window", n, length), nil)
	}

	criteria := e.opts.Criteria
	var attempts []eeg.Attempt
	var survivors []window
	state := StateInitial
	for attempt := 1; ; attempt++ {
		state = StateTrying
		report.Transitions = append(report.Transitions, state)
		survivors = survivors[:0]
		for _, w := range windows {
			if criteria.Accepts(w.ptp) {
				survivors = append(survivors, w)
			}
		}
		attempts = append(attempts, eeg.Attempt{Threshold: criteria.PeakToPeak, Survivors: len(survivors)})
		logger.Debug("epoch rejection attempt",
			logging.Int("attempt", attempt),
			logging.Float64("threshold", criteria.PeakToPeak),
			logging.Int("survivors", len(survivors)),
			logging.Int("windows", len(windows)),
		)
		if len(survivors) >= e.opts.Count {
			state = StateSuccess
			break
		}
		if attempt >= e.opts.MaxAttempts {
			state = StateRetryExhausted
			break
		}
		criteria = criteria.Grow(e.opts.Growth)
	}
	report.Transitions = append(report.Transitions, state)

	if len(survivors) > e.opts.Count {
		survivors = survivors[len(survivors)-e.opts.Count:]
	}
	set := &eeg.EpochSet{
		Data:       make([][][]float64, len(survivors)),
		Channels:   append([]string(nil), rec.Channels...),
		SampleRate: rec.SampleRate,
		Onsets:     make([]int, len(survivors)),
		Attempts:   attempts,
		Threshold:  criteria.PeakToPeak,
		Status:     eeg.StatusSuccess,
	}
	for i, w := range survivors {
		epoch := make([][]float64, len(rec.Data))
		for c, row := range rec.Data {
			epoch[c] = append([]float64(nil), Trim(row[w.start:w.start+length], e.opts.Samples)...)
		}
		set.Data[i] = epoch
		set.Onsets[i] = w.onset
	}

	if state == StateRetryExhausted {
		set.Status = eeg.StatusRetryExhausted
		logging.WarnWithContext(logger, "epoch retries exhausted", "epochs_retry_exhausted",
			logging.Int("epochs", len(survivors)),
			logging.Int("expected", e.opts.Count),
			logging.Int("attempts", len(attempts)),
			logging.Float64("threshold", criteria.PeakToPeak),
			logging.String(logging.FieldImpact, "fewer epochs than classifiers expect"),
			logging.String(logging.FieldErrorHint, "check recording length and artifact level"),
		)
	}
	return set, report, nil
}

func worstPeakToPeak(data [][]float64, start, length int) float64 {
	worst := 0.0
	for _, row := range data {
		lo, hi := row[start], row[start]
		for _, v := range row[start+1 : start+length] {
			if v < lo {
				lo = v
			} else if v > hi {
				hi = v
			}
		}
		worst = math.Max(worst, hi-lo)
	}
	return worst
}

// Trim cuts a window to samples; windows already that short are unchanged.
func Trim(window []float64, samples int) []float64 {
	if len(window) <= samples {
		return window
	}
	return window[:samples]
}
