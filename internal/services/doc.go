// Package services defines shared utilities consumed by the pipeline stages
// and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp recording directories, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers tell
//     fatal failures (no format, missing channels, no interpolation basis, too
//     few samples) from the non-fatal RetryExhausted outcome.
//
// Use these helpers when wiring new stage logic so error classification and
// observability stay uniform across the pipeline.
package services
