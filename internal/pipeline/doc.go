// Package pipeline turns a recording directory into a processed epoch tensor.
//
// Processor consults the epoch cache first. On a miss it runs the stage list
// in order (load, canonicalize, montage, repair, resample, filter, ica,
// reference, epochs) against a shared State and persists the result. Every
// stage start, completion and failure is emitted as a structured log event
// and, when configured, to an EventSink.
//
// Context cancellation is checked between stages only; a stage that has
// started runs to completion.
package pipeline
