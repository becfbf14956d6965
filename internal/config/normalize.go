package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeMontage()
	c.normalizeDSP()
	c.normalizeCache()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("EEGPREP_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = value
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMontage() {
	c.Montage.Primary = strings.TrimSpace(c.Montage.Primary)
	if c.Montage.Primary == "" {
		c.Montage.Primary = defaultMontagePrimary
	}
	fallbacks := make([]string, 0, len(c.Montage.Fallbacks))
	seen := map[string]struct{}{c.Montage.Primary: {}}
	for _, name := range c.Montage.Fallbacks {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fallbacks = append(fallbacks, name)
	}
	c.Montage.Fallbacks = fallbacks
}

func (c *Config) normalizeDSP() {
	if c.DSP.Workers <= 0 {
		c.DSP.Workers = runtime.NumCPU()
	}
	if c.ICA.Decim <= 0 {
		c.ICA.Decim = 1
	}
}

func (c *Config) normalizeCache() {
	c.Cache.FileName = strings.TrimSpace(c.Cache.FileName)
	if c.Cache.FileName == "" {
		c.Cache.FileName = defaultCacheFileName
	}
}
