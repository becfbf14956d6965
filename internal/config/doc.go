// Package config loads, normalizes, and validates eegprep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the EEGPREP_STATE_DIR environment
// fallback. The Config type centralizes every knob the pipeline and CLI need:
// target sampling rate, band edges, epoch geometry, rejection policy, montage
// templates, ICA parameters, and worker counts.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
