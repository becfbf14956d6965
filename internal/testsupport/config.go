package testsupport

import (
	"path/filepath"
	"testing"

	"eegprep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.DSP.Workers = 2
	cfgVal.Ledger.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers overrides the DSP worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.DSP.Workers = n
	}
}

// WithLedger enables the run ledger under the temp state dir.
func WithLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = true
	}
}

// WithoutCache disables artifact reads and writes.
func WithoutCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = false
	}
}

// WithRejectThreshold sets the initial peak-to-peak threshold in volts.
func WithRejectThreshold(v float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RejectPeakToPeak = v
	}
}

// WithICAComponents lowers the component count for faster fits.
func WithICAComponents(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ICA.Components = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
