package montage

import (
	"context"
	"log/slog"

	"eegprep/internal/eeg"
	"eegprep/internal/logging"
)

// Assigner tries templates in order and stores the first full match on the
// recording.
type Assigner struct {
	templates []Template
	logger    *slog.Logger
}

// NewAssigner builds an assigner for primary followed by fallbacks.
func NewAssigner(logger *slog.Logger, primary string, fallbacks ...string) *Assigner {
	names := append([]string{primary}, fallbacks...)
	templates := make([]Template, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		templates = append(templates, Resolve(n))
	}
	return &Assigner{templates: templates, logger: logging.NewComponentLogger(logger, "montage")}
}

// Embedded is reported when the recording file already carried positions for
// every channel.
const Embedded = "embedded"

// Assign sets rec.Positions from the first template covering every channel
// and returns its name. When none does, positions are cleared, a warning is
// logged and the empty name is returned.
func (a *Assigner) Assign(ctx context.Context, rec *eeg.Recording, dir string) string {
	logger := logging.WithContext(ctx, a.logger)
	if rec.HasPositions() {
		return Embedded
	}
	for _, tpl := range a.templates {
		positions, err := tpl.Positions(dir, rec.Channels)
		if err != nil {
			logger.Debug("montage template rejected",
				logging.String("template", tpl.Name()),
				logging.Error(err),
			)
			continue
		}
		rec.Positions = positions
		logger.Debug("montage assigned", logging.String("template", tpl.Name()))
		return tpl.Name()
	}
	rec.Positions = nil
	tried := make([]string, len(a.templates))
	for i, tpl := range a.templates {
		tried[i] = tpl.Name()
	}
	logging.WarnWithContext(logger, "no montage template covers the recording", "montage_unavailable",
		logging.Strings("templates", tried),
		logging.String(logging.FieldImpact, "bad channel interpolation unavailable"),
		logging.String(logging.FieldErrorHint, "add electrodes.tsv to the recording directory or set montage.fallbacks"),
	)
	return ""
}
