package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"eegprep/internal/config"
	"eegprep/internal/epochcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or remove per-recording epoch artifacts",
	}
	cacheCmd.AddCommand(newCacheStatCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func cacheManager(ctx *commandContext) (*epochcache.Manager, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	manager := epochcache.NewManager(cfg, logger)
	if manager == nil {
		return nil, errors.New("epoch cache is disabled (set cache.enabled = true)")
	}
	return manager, nil
}

func newCacheStatCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stat <dir>...",
		Short: "Show artifact presence, shape and checksum",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			stats := make([]epochcache.Stats, 0, len(args))
			for _, arg := range args {
				dir, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", arg, err)
				}
				st, err := manager.Stat(dir)
				if err != nil {
					return err
				}
				stats = append(stats, st)
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}

			rows := make([][]string, 0, len(stats))
			for _, st := range stats {
				if !st.Exists {
					rows = append(rows, []string{st.Path, "missing", "", "", "", ""})
					continue
				}
				status := st.Status
				if st.Problem != "" {
					status = "invalid: " + st.Problem
				}
				rows = append(rows, []string{
					st.Path,
					status,
					formatShape(st.Shape),
					strconv.FormatInt(st.SizeBytes, 10),
					strconv.Itoa(len(st.Attempts)),
					shortHash(st.SHA256),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("", []string{"Artifact", "Status", "Shape", "Bytes", "Attempts", "SHA-256"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <dir>...",
		Short: "Delete the epoch artifact so the next run reprocesses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				dir, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", arg, err)
				}
				removed, err := manager.Clear(dir)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(out, "Removed %s\n", manager.Path(dir))
				} else {
					fmt.Fprintf(out, "No artifact at %s\n", manager.Path(dir))
				}
			}
			return nil
		},
	}
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}

func shortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
