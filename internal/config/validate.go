package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateRepair(); err != nil {
		return err
	}
	if err := c.validateICA(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.TargetRate <= 0 {
		return errors.New("pipeline.target_rate must be positive")
	}
	if p.LowFreq <= 0 {
		return errors.New("pipeline.l_freq must be positive")
	}
	if p.HighFreq <= p.LowFreq {
		return fmt.Errorf("pipeline.h_freq (%g) must exceed pipeline.l_freq (%g)", p.HighFreq, p.LowFreq)
	}
	if p.EpochCount <= 0 {
		return errors.New("pipeline.epoch_count must be positive")
	}
	if p.EpochSamples <= 0 {
		return errors.New("pipeline.epoch_samples must be positive")
	}
	if p.EpochTmax <= p.EpochTmin {
		return errors.New("pipeline.epoch_tmax must exceed pipeline.epoch_tmin")
	}
	if window := c.WindowSamples(); window < p.EpochSamples {
		return fmt.Errorf("pipeline epoch window yields %d samples, fewer than epoch_samples %d", window, p.EpochSamples)
	}
	if p.EventSpacing <= 0 {
		return errors.New("pipeline.event_spacing must be positive")
	}
	if p.RejectPeakToPeak <= 0 {
		return errors.New("pipeline.reject_peak_to_peak must be positive")
	}
	if p.RejectGrowth < 1 {
		return errors.New("pipeline.reject_growth must be at least 1")
	}
	if p.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateRepair() error {
	if c.Repair.FlatThreshold < 0 {
		return errors.New("repair.flat_threshold must not be negative")
	}
	if c.Repair.DeviationZ < 0 {
		return errors.New("repair.deviation_z must not be negative")
	}
	return nil
}

func (c *Config) validateICA() error {
	if c.ICA.Components < 0 {
		return errors.New("ica.components must not be negative")
	}
	if c.ICA.MaxIter < 1 {
		return errors.New("ica.max_iter must be at least 1")
	}
	if c.ICA.Tolerance <= 0 {
		return errors.New("ica.tolerance must be positive")
	}
	for _, idx := range c.ICA.Exclude {
		if idx < 0 || (c.ICA.Components > 0 && idx >= c.ICA.Components) {
			return fmt.Errorf("ica.exclude index %d out of range [0,%d)", idx, c.ICA.Components)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if filepath.Base(c.Cache.FileName) != c.Cache.FileName {
		return fmt.Errorf("cache.file_name %q must be a bare file name", c.Cache.FileName)
	}
	return nil
}
