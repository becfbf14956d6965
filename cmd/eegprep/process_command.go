package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"eegprep/internal/config"
	"eegprep/internal/ledger"
	"eegprep/internal/logging"
	"eegprep/internal/pipeline"
	"eegprep/internal/preflight"
	"eegprep/internal/qcplot"
	"eegprep/internal/services"
)

const qcPlotName = "qc-peak-to-peak.png"

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var qcPlot bool

	cmd := &cobra.Command{
		Use:   "process <dir>...",
		Short: "Process recording directories into epoch tensors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dirs := make([]string, 0, len(args))
			for _, arg := range args {
				dir, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", arg, err)
				}
				dirs = append(dirs, filepath.Clean(dir))
			}

			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire batch lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another eegprep batch is already running (lock %s)", cfg.LockPath())
			}
			defer func() { _ = lock.Unlock() }()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			ready, failed, err := runPreflight(out, cfg, dirs, colorize)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var opts []pipeline.Option
			if cfg.Ledger.Enabled {
				store, err := ledger.Open(signalCtx, cfg.LedgerPath())
				if err != nil {
					return fmt.Errorf("open ledger %s: %w", cfg.LedgerPath(), err)
				}
				defer store.Close()
				opts = append(opts, pipeline.WithLedger(store))
			}
			processor, err := pipeline.NewProcessor(cfg, logger, opts...)
			if err != nil {
				return err
			}

			warned := 0
			for _, outcome := range processor.ProcessBatch(signalCtx, ready) {
				switch {
				case outcome.Fatal():
					failed++
					fmt.Fprintln(out, renderStatusLine("failed", statusError,
						fmt.Sprintf("processing failed for recording %s: %v", outcome.Dir, outcome.Err), colorize))
					continue
				case outcome.Err != nil:
					warned++
					n, _, _ := outcome.Set.Shape()
					fmt.Fprintln(out, renderStatusLine("warning", statusWarn,
						fmt.Sprintf("%s: processing completed with fewer than expected epochs (%d/%d)", outcome.Dir, n, cfg.Pipeline.EpochCount), colorize))
				default:
					n, c, s := outcome.Set.Shape()
					source := "processed"
					if outcome.Cached {
						source = "cached"
					}
					fmt.Fprintln(out, renderStatusLine("ok", statusOK,
						fmt.Sprintf("%s: %dx%dx%d (%s)", outcome.Dir, n, c, s, source), colorize))
				}
				if qcPlot {
					path := filepath.Join(outcome.Dir, qcPlotName)
					if err := qcplot.PeakToPeak(outcome.Set, outcome.Set.Threshold, path); err != nil {
						logging.WarnWithContext(logger, "qc plot failed", "qc_plot_failed",
							logging.String(logging.FieldRecording, outcome.Dir),
							logging.Error(err),
							logging.String(logging.FieldImpact, "no diagnostic plot for this recording"),
						)
					} else {
						fmt.Fprintln(out, renderStatusLine("plot", statusInfo, path, colorize))
					}
				}
			}

			if err := signalCtx.Err(); err != nil {
				return err
			}
			total := len(dirs)
			switch {
			case failed > 0:
				return &exitError{code: exitFailure, msg: fmt.Sprintf("%d of %d recordings failed", failed, total)}
			case warned > 0:
				return &exitError{code: exitWarnings, msg: fmt.Sprintf("%d of %d recordings produced fewer epochs than expected", warned, total)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&qcPlot, "qc-plot", false, "Write a peak-to-peak histogram next to each processed recording")
	return cmd
}

// runPreflight prints check results and returns the directories that passed
// plus the count that did not. A failing state directory aborts the batch.
func runPreflight(out io.Writer, cfg *config.Config, dirs []string, colorize bool) ([]string, int, error) {
	results := preflight.RunAll(cfg, dirs)
	offset := 0
	if cfg.Ledger.Enabled {
		state := results[0]
		offset = 1
		if !state.Passed {
			fmt.Fprintln(out, renderStatusLine("preflight", statusError, state.Name+": "+state.Detail, colorize))
			return nil, 0, &exitError{code: exitFailure, msg: "state directory unusable; no recordings processed"}
		}
	}

	ready := make([]string, 0, len(dirs))
	failed := 0
	for i, dir := range dirs {
		result := results[offset+i]
		if !result.Passed {
			failed++
			err := services.Wrap(services.ErrConfiguration, "preflight", "check directory", result.Detail, nil)
			fmt.Fprintln(out, renderStatusLine("failed", statusError,
				fmt.Sprintf("processing failed for recording %s: %v", dir, err), colorize))
			continue
		}
		ready = append(ready, dir)
	}
	return ready, failed, nil
}
