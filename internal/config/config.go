package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Pipeline contains the fixed geometry of the processed epoch tensor and the
// adaptive rejection policy.
type Pipeline struct {
	// TargetRate is the sampling rate (Hz) every recording is resampled to.
	TargetRate float64 `toml:"target_rate"`
	// LowFreq and HighFreq are the band-pass edges in Hz.
	LowFreq  float64 `toml:"l_freq"`
	HighFreq float64 `toml:"h_freq"`
	// EpochCount is the exact number of epochs handed to classifiers.
	EpochCount int `toml:"epoch_count"`
	// EpochSamples is the per-window sample count after trimming.
	EpochSamples int     `toml:"epoch_samples"`
	EpochTmin    float64 `toml:"epoch_tmin"`
	EpochTmax    float64 `toml:"epoch_tmax"`
	// EventSpacing is the distance in seconds between synthetic events.
	EventSpacing float64 `toml:"event_spacing"`
	// RejectPeakToPeak is the initial peak-to-peak threshold in volts.
	RejectPeakToPeak float64 `toml:"reject_peak_to_peak"`
	// RejectGrowth multiplies the threshold after each failed attempt.
	RejectGrowth float64 `toml:"reject_growth"`
	MaxAttempts  int     `toml:"max_attempts"`
}

// Montage lists electrode-position templates in the order they are tried.
type Montage struct {
	Primary   string   `toml:"primary"`
	Fallbacks []string `toml:"fallbacks"`
}

// Repair contains bad-channel detection settings.
type Repair struct {
	// FlatThreshold marks channels whose peak-to-peak amplitude (volts) falls
	// below it as bad.
	FlatThreshold float64 `toml:"flat_threshold"`
	// DeviationZ marks channels whose robust z-score of log variance exceeds
	// it. Zero disables deviation detection.
	DeviationZ float64 `toml:"deviation_z"`
}

// ICA contains component decomposition settings.
type ICA struct {
	Components int     `toml:"components"`
	MaxIter    int     `toml:"max_iter"`
	Seed       uint64  `toml:"seed"`
	Decim      int     `toml:"decim"`
	Tolerance  float64 `toml:"tolerance"`
	// Exclude lists component indices to subtract from the signal. Empty by
	// default; component review happens outside the pipeline.
	Exclude []int `toml:"exclude"`
}

// DSP contains numerical stage tuning.
type DSP struct {
	// Workers bounds channel-parallel filtering and resampling. Zero means one
	// worker per CPU.
	Workers int `toml:"workers"`
}

// Cache contains configuration for the per-recording processed artifact.
type Cache struct {
	Enabled  bool   `toml:"enabled"`
	FileName string `toml:"file_name"`
}

// Ledger contains configuration for the processing run history.
type Ledger struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for eegprep.
//
// Configuration sections by subsystem:
//   - Paths: state (ledger, lock) and log directories
//   - Logging: log format and level
//   - Pipeline: sampling rate, band edges, epoch geometry, rejection policy
//   - Montage: electrode-position templates
//   - Repair: bad-channel detection
//   - ICA: component decomposition
//   - DSP: worker counts
//   - Cache: processed artifact settings
//   - Ledger: run history
type Config struct {
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
	Pipeline Pipeline `toml:"pipeline"`
	Montage  Montage  `toml:"montage"`
	Repair   Repair   `toml:"repair"`
	ICA      ICA      `toml:"ica"`
	DSP      DSP      `toml:"dsp"`
	Cache    Cache    `toml:"cache"`
	Ledger   Ledger   `toml:"ledger"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/eegprep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/eegprep/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("eegprep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the batch lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "eegprep.lock")
}

// WindowSamples returns the inclusive sample count of one epoch window before
// trimming (1001 for the default geometry).
func (c *Config) WindowSamples() int {
	span := (c.Pipeline.EpochTmax - c.Pipeline.EpochTmin) * c.Pipeline.TargetRate
	return int(span+0.5) + 1
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
