package preflight

import (
	"eegprep/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the preflight checks for a batch over dirs.
// The state directory is only checked when the ledger is enabled.
func RunAll(cfg *config.Config, dirs []string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if cfg.Ledger.Enabled {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	}

	for _, dir := range dirs {
		results = append(results, CheckRecordingDir(dir, cfg.Cache.Enabled))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
