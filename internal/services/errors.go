package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSupportedFormat        = errors.New("no supported format")
	ErrMissingChannels          = errors.New("missing canonical channels")
	ErrInterpolationUnavailable = errors.New("interpolation unavailable")
	ErrInsufficientSamples      = errors.New("insufficient samples")
	ErrRetryExhausted           = errors.New("epoch retries exhausted")
	ErrCacheCorrupt             = errors.New("cache corrupt")
	ErrConfiguration            = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrConfiguration.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrConfiguration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err prevents a recording from producing any epochs.
// RetryExhausted carries usable output and CacheCorrupt is recovered in place.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryExhausted) || errors.Is(err, ErrCacheCorrupt) {
		return false
	}
	return true
}

// Reason returns the short marker label for err, or "unknown".
func Reason(err error) string {
	for _, marker := range []error{
		ErrNoSupportedFormat,
		ErrMissingChannels,
		ErrInterpolationUnavailable,
		ErrInsufficientSamples,
		ErrRetryExhausted,
		ErrCacheCorrupt,
		ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
