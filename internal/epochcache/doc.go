// Package epochcache persists the processed epoch tensor next to the raw
// recording so repeated runs skip conditioning entirely.
//
// # Validity
//
// An artifact is valid when it decodes and holds a non-empty tensor. An
// invalid artifact is deleted on read and the recording is reprocessed. Writes
// go through a temp file and rename, so concurrent readers see either the old
// or the new artifact and the last writer wins.
//
// Use `eegprep cache stat <dir>` to inspect an artifact and
// `eegprep cache clear <dir>` to force reprocessing.
package epochcache
