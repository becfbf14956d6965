package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"eegprep/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRecordingDir(t *testing.T) {
	dir := t.TempDir()
	if r := CheckRecordingDir(dir, false); !r.Passed {
		t.Fatalf("read-only check failed: %s", r.Detail)
	}
	if r := CheckRecordingDir(dir, true); !r.Passed {
		t.Fatalf("writable check failed: %s", r.Detail)
	}
	if r := CheckRecordingDir(filepath.Join(dir, "missing"), false); r.Passed {
		t.Fatal("expected failure for missing recording dir")
	}
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Fatal("expected non-zero free space on temp filesystem")
	}
}

func TestRunAll(t *testing.T) {
	if got := RunAll(nil, nil); got != nil {
		t.Fatalf("nil config should yield no results, got %v", got)
	}

	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "absent")
	good := t.TempDir()
	bad := filepath.Join(t.TempDir(), "nope")

	results := RunAll(&cfg, []string{good, bad})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected state dir and missing recording to fail, got %+v", failed)
	}

	cfg.Ledger.Enabled = false
	results = RunAll(&cfg, []string{good})
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("expected single passing recording check, got %+v", results)
	}
}
