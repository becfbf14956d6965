package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"eegprep/internal/channels"
	"eegprep/internal/config"
	"eegprep/internal/eeg"
	"eegprep/internal/formats"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var showChannels bool

	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Show the recording the loader selects in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}

			loader := formats.NewLoader(logger, formats.DefaultStrategies()...)
			rec, result, err := loader.Load(cmd.Context(), dir)
			out := cmd.OutOrStdout()
			if len(result.Failures) > 0 {
				rows := make([][]string, len(result.Failures))
				for i, f := range result.Failures {
					rows[i] = []string{f.Strategy, filepath.Base(f.File), f.Err.Error()}
				}
				fmt.Fprintln(out, renderTable("Rejected candidates", []string{"Strategy", "File", "Error"}, rows, nil))
			}
			if err != nil {
				return err
			}

			present, missing := channels.Coverage(rec.Channels, eeg.CanonicalChannels)
			fields := [][2]string{
				{"Directory", dir},
				{"File", filepath.Base(result.File)},
				{"Format", result.Strategy},
				{"Channels", strconv.Itoa(len(rec.Channels))},
				{"Sample rate", fmt.Sprintf("%g Hz", rec.SampleRate)},
				{"Samples", strconv.Itoa(rec.Samples())},
				{"Duration", fmt.Sprintf("%.1f s", rec.Duration())},
				{"Bad channels", joinOrNone(rec.Bads)},
				{"Annotations", strconv.Itoa(len(rec.Annotations))},
				{"Positions", yesNo(rec.HasPositions())},
				{"Canonical coverage", fmt.Sprintf("%d/%d", len(present), len(eeg.CanonicalChannels))},
				{"Missing canonical", joinOrNone(missing)},
			}
			if result.Reshaped {
				fields = append(fields, [2]string{"Segments", fmt.Sprintf("%d (concatenated)", result.Segments)})
			}
			fmt.Fprintln(out, renderFields("Recording", fields))

			if showChannels {
				canonical := make(map[string]bool, len(present))
				for _, name := range present {
					canonical[channels.Fold(name)] = true
				}
				rows := make([][]string, len(rec.Channels))
				for i, name := range rec.Channels {
					rows[i] = []string{strconv.Itoa(i + 1), name, yesNo(canonical[channels.Fold(name)]), yesNo(rec.IsBad(name))}
				}
				fmt.Fprintln(out, renderTable("Channels", []string{"#", "Name", "Canonical", "Bad"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showChannels, "channels", false, "List every channel with its canonical status")
	return cmd
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
