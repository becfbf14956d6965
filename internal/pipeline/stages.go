package pipeline

import (
	"context"
	"log/slog"

	"eegprep/internal/channels"
	"eegprep/internal/config"
	"eegprep/internal/dsp"
	"eegprep/internal/eeg"
	"eegprep/internal/epochs"
	"eegprep/internal/formats"
	"eegprep/internal/ica"
	"eegprep/internal/logging"
	"eegprep/internal/montage"
	"eegprep/internal/repair"
	"eegprep/internal/services"
)

// Stage names, in execution order.
const (
	StageLoad         = "load"
	StageCanonicalize = "canonicalize"
	StageMontage      = "montage"
	StageRepair       = "repair"
	StageResample     = "resample"
	StageFilter       = "filter"
	StageICA          = "ica"
	StageReference    = "reference"
	StageEpochs       = "epochs"
)

// DefaultStages builds the conditioning chain for cfg. The ica stage is
// omitted when ica.components is zero.
func DefaultStages(cfg *config.Config, logger *slog.Logger) ([]Stage, error) {
	pool := dsp.NewPool(cfg.DSP.Workers)
	bandPass, err := dsp.DesignBandPass(cfg.Pipeline.LowFreq, cfg.Pipeline.HighFreq, cfg.Pipeline.TargetRate)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, StageFilter, "design", "", err)
	}

	loader := formats.NewLoader(logger, formats.DefaultStrategies()...)
	assigner := montage.NewAssigner(logger, cfg.Montage.Primary, cfg.Montage.Fallbacks...)
	repairer := repair.New(cfg.Repair, logger)
	epocher := epochs.New(epochs.OptionsFrom(cfg.Pipeline), logger)
	target := cfg.Pipeline.TargetRate

	stages := []Stage{
		stageFunc{
			name: StageLoad,
			run: func(ctx context.Context, st *State) error {
				rec, result, err := loader.Load(ctx, st.Dir)
				st.Load = result
				if err != nil {
					return err
				}
				st.Recording = rec
				return nil
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{
					logging.String("format", st.Load.Strategy),
					logging.Int("channels", len(st.Recording.Channels)),
					logging.Float64("sample_rate", st.Recording.SampleRate),
					logging.Float64("duration_s", st.Recording.Duration()),
					logging.Bool("reshaped", st.Load.Reshaped),
				}
			},
		},
		stageFunc{
			name: StageCanonicalize,
			run: func(_ context.Context, st *State) error {
				sel, err := channels.Canonicalize(st.Recording, eeg.CanonicalChannels)
				st.Selection = sel
				return err
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{
					logging.Int("channels", len(st.Recording.Channels)),
					logging.Strings("dropped_channels", st.Selection.Dropped),
					logging.Int("renamed", len(st.Selection.Renamed)),
				}
			},
		},
		stageFunc{
			name: StageMontage,
			run: func(ctx context.Context, st *State) error {
				st.Montage = assigner.Assign(ctx, st.Recording, st.Dir)
				return nil
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{logging.String("montage", st.Montage)}
			},
		},
		stageFunc{
			name: StageRepair,
			run: func(ctx context.Context, st *State) error {
				report, err := repairer.Repair(ctx, st.Recording)
				st.Repair = report
				return err
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{
					logging.Strings("detected", st.Repair.Detected),
					logging.Strings("interpolated", st.Repair.Interpolated),
				}
			},
		},
		stageFunc{
			name: StageResample,
			run: func(ctx context.Context, st *State) error {
				return dsp.Resample(ctx, st.Recording, target, pool)
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{
					logging.Float64("sample_rate", st.Recording.SampleRate),
					logging.Int("samples", st.Recording.Samples()),
				}
			},
		},
		stageFunc{
			name: StageFilter,
			run: func(ctx context.Context, st *State) error {
				return bandPass.Apply(ctx, st.Recording, pool)
			},
			metrics: func(*State) []logging.Attr {
				return []logging.Attr{
					logging.Int("taps", len(bandPass.Taps)),
					logging.Bool("high_pass_only", bandPass.HighPass),
				}
			},
		},
	}

	if cfg.ICA.Components > 0 {
		fitter := ica.NewFitter(ica.OptionsFrom(cfg.ICA), pool, logger)
		exclude := append([]int(nil), cfg.ICA.Exclude...)
		stages = append(stages, stageFunc{
			name: StageICA,
			run: func(ctx context.Context, st *State) error {
				dec, err := fitter.Fit(ctx, st.Recording)
				if err != nil {
					return err
				}
				st.ICA = dec
				return dec.Remove(st.Recording, exclude)
			},
			metrics: func(st *State) []logging.Attr {
				return []logging.Attr{
					logging.Int("components", st.ICA.Components()),
					logging.Int("iterations", st.ICA.Iterations),
					logging.Bool("converged", st.ICA.Converged),
					logging.Int("excluded", len(exclude)),
				}
			},
		})
	}

	stages = append(stages,
		stageFunc{
			name: StageReference,
			run: func(_ context.Context, st *State) error {
				dsp.AverageReference(st.Recording)
				return nil
			},
		},
		stageFunc{
			name: StageEpochs,
			run: func(ctx context.Context, st *State) error {
				set, report, err := epocher.Extract(ctx, st.Recording)
				st.Report = report
				if err != nil {
					return err
				}
				st.Epochs = set
				st.Recording.Release()
				return nil
			},
			metrics: func(st *State) []logging.Attr {
				n, c, s := st.Epochs.Shape()
				return []logging.Attr{
					logging.Shape("shape", n, c, s),
					logging.String("status", string(st.Epochs.Status)),
					logging.Int("attempts", len(st.Epochs.Attempts)),
					logging.Float64("threshold", st.Epochs.Threshold),
					logging.Int("windows", st.Report.Windows),
				}
			},
		},
	)
	return stages, nil
}
