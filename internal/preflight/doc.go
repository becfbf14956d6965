// Package preflight provides readiness checks for the filesystem paths a
// processing batch depends on.
//
// The CLI runs RunAll before a batch starts. Recording directories that fail
// are reported and skipped; a failing state directory aborts the batch since
// no run could be recorded.
package preflight
