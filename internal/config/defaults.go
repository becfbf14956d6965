package config

const (
	defaultStateDir         = "~/.local/share/eegprep"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultTargetRate       = 500.0
	defaultLowFreq          = 1.0
	defaultHighFreq         = 100.0
	defaultEpochCount       = 108
	defaultEpochSamples     = 1000
	defaultEpochTmin        = -1.0
	defaultEpochTmax        = 1.0
	defaultEventSpacing     = 1.0
	defaultRejectPeakToPeak = 150e-6
	defaultRejectGrowth     = 10.0
	defaultMaxAttempts      = 5
	defaultMontagePrimary   = "standard_1010"
	defaultFlatThreshold    = 1e-12
	defaultICAComponents    = 20
	defaultICAMaxIter       = 200
	defaultICASeed          = 97
	defaultICADecim         = 3
	defaultICATolerance     = 1e-4
	defaultCacheFileName    = "preprocessed-epo.eegx"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Pipeline: Pipeline{
			TargetRate:       defaultTargetRate,
			LowFreq:          defaultLowFreq,
			HighFreq:         defaultHighFreq,
			EpochCount:       defaultEpochCount,
			EpochSamples:     defaultEpochSamples,
			EpochTmin:        defaultEpochTmin,
			EpochTmax:        defaultEpochTmax,
			EventSpacing:     defaultEventSpacing,
			RejectPeakToPeak: defaultRejectPeakToPeak,
			RejectGrowth:     defaultRejectGrowth,
			MaxAttempts:      defaultMaxAttempts,
		},
		Montage: Montage{
			Primary:   defaultMontagePrimary,
			Fallbacks: []string{"standard_1020", "sidecar"},
		},
		Repair: Repair{
			FlatThreshold: defaultFlatThreshold,
		},
		ICA: ICA{
			Components: defaultICAComponents,
			MaxIter:    defaultICAMaxIter,
			Seed:       defaultICASeed,
			Decim:      defaultICADecim,
			Tolerance:  defaultICATolerance,
		},
		Cache: Cache{
			Enabled:  true,
			FileName: defaultCacheFileName,
		},
		Ledger: Ledger{
			Enabled: true,
		},
	}
}
