package repair

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"eegprep/internal/config"
	"eegprep/internal/eeg"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// madScale converts a median absolute deviation to a normal-consistent sigma.
const madScale = 1.4826

// Report describes one repair pass.
type Report struct {
	// Detected lists channels flagged by automatic detection, in channel order.
	Detected     []string
	Interpolated []string
}

// Repairer flags and rebuilds bad channels.
type Repairer struct {
	flatThreshold float64
	deviationZ    float64
	logger        *slog.Logger
}

// New builds a repairer from repair settings.
func New(cfg config.Repair, logger *slog.Logger) *Repairer {
	return &Repairer{
		flatThreshold: cfg.FlatThreshold,
		deviationZ:    cfg.DeviationZ,
		logger:        logging.NewComponentLogger(logger, "repair"),
	}
}

// Detect marks flat and, when enabled, high-deviation channels bad and
// returns the newly flagged names.
func (r *Repairer) Detect(rec *eeg.Recording) []string {
	var flagged []string
	logVar := make([]float64, len(rec.Channels))
	for i, row := range rec.Data {
		if len(row) == 0 {
			continue
		}
		if floats.Max(row)-floats.Min(row) < r.flatThreshold {
			flagged = append(flagged, rec.Channels[i])
		}
		logVar[i] = math.Log(stat.Variance(row, nil) + 1e-300)
	}
	if r.deviationZ > 0 && len(rec.Channels) >= 3 {
		median, mad := robustSpread(logVar)
		if mad > 0 {
			for i, v := range logVar {
				if math.Abs(v-median)/(madScale*mad) > r.deviationZ && !slices.Contains(flagged, rec.Channels[i]) {
					flagged = append(flagged, rec.Channels[i])
				}
			}
		}
	}
	var fresh []string
	for _, name := range rec.Channels {
		if slices.Contains(flagged, name) && !rec.IsBad(name) {
			rec.MarkBad(name)
			fresh = append(fresh, name)
		}
	}
	return fresh
}

func robustSpread(values []float64) (median, mad float64) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	slices.Sort(dev)
	return median, stat.Quantile(0.5, stat.Empirical, dev, nil)
}

// Repair runs detection and interpolates every bad channel in place.
func (r *Repairer) Repair(ctx context.Context, rec *eeg.Recording) (Report, error) {
	logger := logging.WithContext(ctx, r.logger)
	report := Report{Detected: r.Detect(rec)}
	if len(report.Detected) > 0 {
		logger.Info("bad channels detected", logging.Strings("channels", report.Detected))
	}
	if len(rec.Bads) == 0 {
		return report, nil
	}
	if !rec.HasPositions() {
		return report, services.Wrap(services.ErrInterpolationUnavailable, "repair", "interpolate",
			fmt.Sprintf("%d bad channels but no electrode positions", len(rec.Bads)), nil)
	}

	var goodIdx, badIdx []int
	for i, name := range rec.Channels {
		if rec.IsBad(name) {
			badIdx = append(badIdx, i)
		} else {
			goodIdx = append(goodIdx, i)
		}
	}
	if len(badIdx) == 0 {
		rec.Bads = nil
		return report, nil
	}
	if len(goodIdx) < 3 {
		return report, services.Wrap(services.ErrInterpolationUnavailable, "repair", "interpolate",
			fmt.Sprintf("only %d good channels remain", len(goodIdx)), nil)
	}

	from := make([]eeg.Position, len(goodIdx))
	for k, i := range goodIdx {
		from[k] = rec.Positions[rec.Channels[i]]
	}
	to := make([]eeg.Position, len(badIdx))
	for k, i := range badIdx {
		to[k] = rec.Positions[rec.Channels[i]]
	}
	m, err := InterpolationMatrix(from, to)
	if err != nil {
		return report, services.Wrap(services.ErrInterpolationUnavailable, "repair", "build spline", "", err)
	}

	n := rec.Samples()
	for k, bi := range badIdx {
		weights := m.RawRowView(k)
		out := make([]float64, n)
		for g, gi := range goodIdx {
			floats.AddScaled(out, weights[g], rec.Data[gi])
		}
		rec.Data[bi] = out
		report.Interpolated = append(report.Interpolated, rec.Channels[bi])
	}
	rec.Bads = nil
	logger.Info("bad channels interpolated",
		logging.Strings("channels", report.Interpolated),
		logging.Int("good_channels", len(goodIdx)),
	)
	return report, nil
}
