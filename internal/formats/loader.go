package formats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"eegprep/internal/eeg"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// Details carries strategy-specific facts about a successful decode.
type Details struct {
	Reshaped bool
	Segments int
}

// Strategy decodes one family of recording files.
type Strategy interface {
	Name() string
	// Extensions lists the lower-cased file extensions the strategy reads.
	Extensions() []string
	Read(ctx context.Context, path string) (*eeg.Recording, Details, error)
}

// Failure records one unsuccessful strategy attempt.
type Failure struct {
	Strategy string
	File     string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Strategy, filepath.Base(f.File), f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result describes how a recording was selected.
type Result struct {
	Strategy string
	File     string
	Reshaped bool
	Segments int
	Failures []Failure
}

// Loader selects and decodes the recording stored in a directory.
type Loader struct {
	strategies []Strategy
	logger     *slog.Logger
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NativeStrategy{},
		EDFStrategy{},
		NewBrainVisionStrategy(EncodingUTF8),
		NewBrainVisionStrategy(EncodingLatin1),
	}
}

// NewLoader builds a loader; with no strategies the defaults are used.
func NewLoader(logger *slog.Logger, strategies ...Strategy) *Loader {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Loader{
		strategies: strategies,
		logger:     logging.NewComponentLogger(logger, "formats"),
	}
}

// Load decodes the highest-priority recording in dir.
func (l *Loader) Load(ctx context.Context, dir string) (*eeg.Recording, Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, Result{}, services.Wrap(services.ErrNoSupportedFormat, "load", "read directory", dir, err)
	}
	byExt := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		byExt[ext] = append(byExt[ext], filepath.Join(dir, entry.Name()))
	}
	for ext := range byExt {
		slices.Sort(byExt[ext])
	}

	logger := logging.WithContext(ctx, l.logger)
	var result Result
	for _, strategy := range l.strategies {
		for _, path := range candidates(strategy, byExt) {
			rec, details, err := readSafely(ctx, strategy, path)
			if err == nil {
				err = rec.Validate()
			}
			if err != nil {
				failure := Failure{Strategy: strategy.Name(), File: path, Err: err}
				result.Failures = append(result.Failures, failure)
				logger.Debug("format strategy failed",
					logging.String("strategy", strategy.Name()),
					logging.String("file", filepath.Base(path)),
					logging.Error(err),
				)
				continue
			}
			rec.SourcePath = path
			rec.SourceFormat = strategy.Name()
			result.Strategy = strategy.Name()
			result.File = path
			result.Reshaped = details.Reshaped
			result.Segments = details.Segments
			return rec, result, nil
		}
	}

	errs := make([]error, 0, len(result.Failures))
	for _, f := range result.Failures {
		errs = append(errs, f)
	}
	message := "no readable recording"
	if len(errs) == 0 {
		message = "no recording files"
	}
	return nil, result, services.Wrap(services.ErrNoSupportedFormat, "load", "select format", message, errors.Join(errs...))
}

func candidates(strategy Strategy, byExt map[string][]string) []string {
	var out []string
	for _, ext := range strategy.Extensions() {
		out = append(out, byExt[ext]...)
	}
	return out
}

// readSafely turns decoder panics on malformed input into strategy failures.
func readSafely(ctx context.Context, strategy Strategy, path string) (rec *eeg.Recording, details Details, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	rec, details, err = strategy.Read(ctx, path)
	if err == nil && rec == nil {
		err = errors.New("decoder returned no recording")
	}
	return rec, details, err
}
