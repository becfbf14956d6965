package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"eegprep/internal/config"
	"eegprep/internal/epochcache"
	"eegprep/internal/ledger"
	"eegprep/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithLedger(), testsupport.WithICAComponents(4))
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "eegprep.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\n\n[logging]\nlevel = \"warn\"\n\n[ica]\ncomponents = %d\n\n[dsp]\nworkers = %d\n\n[ledger]\nenabled = %t\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.ICA.Components,
		cfg.DSP.Workers,
		cfg.Ledger.Enabled,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeEDFDir(t *testing.T, seconds float64) string {
	t.Helper()
	dir := t.TempDir()
	rec := testsupport.DefaultSignal(256, seconds).Recording()
	testsupport.WriteEDF(t, filepath.Join(dir, "rec.edf"), rec, testsupport.EDFOptions{})
	return dir
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "epoch_count = 108")
	requireContains(t, out, env.cfg.Paths.StateDir)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestProcessHistoryAndCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := writeEDFDir(t, 300)

	out, _, err := runCLI(t, []string{"process", "--qc-plot", dir}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	requireContains(t, out, "108x59x1000 (processed)")
	if _, err := os.Stat(filepath.Join(dir, qcPlotName)); err != nil {
		t.Fatalf("expected qc plot: %v", err)
	}

	out, _, err = runCLI(t, []string{"process", dir}, env.configPath)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	requireContains(t, out, "108x59x1000 (cached)")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []ledger.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(runs) != 2 || runs[0].Status != ledger.StatusCached || runs[1].Status != ledger.StatusSuccess {
		t.Fatalf("unexpected history: %+v", runs)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history table: %v", err)
	}
	requireContains(t, out, "cached")

	out, _, err = runCLI(t, []string{"cache", "stat", "--json", dir}, env.configPath)
	if err != nil {
		t.Fatalf("cache stat: %v", err)
	}
	var stats []epochcache.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats) != 1 || !stats[0].Exists || fmt.Sprint(stats[0].Shape) != "[108 59 1000]" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	out, _, err = runCLI(t, []string{"cache", "clear", dir}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed")
	out, _, err = runCLI(t, []string{"cache", "stat", dir}, env.configPath)
	if err != nil {
		t.Fatalf("cache stat after clear: %v", err)
	}
	requireContains(t, out, "missing")
}

func TestProcessShortRecordingExitsWithWarnings(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := writeEDFDir(t, 50)

	out, _, err := runCLI(t, []string{"process", dir}, env.configPath)
	if err == nil {
		t.Fatal("expected warning exit")
	}
	if code := exitCode(err); code != exitWarnings {
		t.Fatalf("exit code = %d, want %d", code, exitWarnings)
	}
	requireContains(t, out, "processing completed with fewer than expected epochs (48/108)")
}

func TestProcessFailuresExitWithFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	unsupported := t.TempDir()
	if err := os.WriteFile(filepath.Join(unsupported, "rec.xyz"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "absent")

	out, _, err := runCLI(t, []string{"process", unsupported, missing}, env.configPath)
	if err == nil {
		t.Fatal("expected failure exit")
	}
	if code := exitCode(err); code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	requireContains(t, out, "processing failed for recording "+unsupported+": no supported format")
	requireContains(t, out, "processing failed for recording "+missing)
	requireContains(t, err.Error(), "2 of 2 recordings failed")
}

func TestProcessRefusesConcurrentBatch(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(env.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("acquire lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = lock.Unlock() }()

	_, _, err = runCLI(t, []string{"process", t.TempDir()}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestInspectCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := writeEDFDir(t, 20)

	out, _, err := runCLI(t, []string{"inspect", "--channels", dir}, env.configPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "edf")
	requireContains(t, out, "59/59")
	requireContains(t, out, "256 Hz")
	requireContains(t, out, "Fpz")
}

func TestRenderStatusLine(t *testing.T) {
	got := renderStatusLine("failed", statusError, "boom", false)
	want := fmt.Sprintf("%-*s [ERROR] boom", statusLabelWidth, "failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
	colored := renderStatusLine("ok", statusOK, "done", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected green wrapping, got %q", colored)
	}
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
