// Package epochs cuts a conditioned recording into fixed-length windows and
// runs the adaptive peak-to-peak rejection loop that must yield an exact
// epoch count.
//
// The loop is a small state machine over RejectionCriteria values:
//
//	Initial -> Trying -> Success
//	                  -> Trying (threshold x growth, while attempts remain)
//	                  -> RetryExhausted
//
// Events are synthesized every EventSpacing seconds from the first sample.
// Annotation-derived events are computed and reported but do not drive
// epoching.
package epochs
