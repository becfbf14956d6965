// Package main hosts the eegprep CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration and logging once, then hands
// off to the internal packages: process runs the pipeline over recording
// directories, inspect shows what the loader sees, cache and history expose
// the per-recording artifact and the run ledger, and config scaffolds the
// TOML file.
//
// Exit status is 1 when any recording failed and 2 when recordings only
// produced warnings (fewer epochs than expected).
package main
