// Package formats turns a recording directory into one eeg.Recording.
//
// A Loader walks an ordered list of strategies; the first strategy that
// decodes a file in the directory wins and later-priority files are ignored.
// Supported inputs are the native .eegc container, EDF/BDF (including EDF+
// annotations) and BrainVision header/data/marker triples, with a Latin-1
// fallback for headers that are not valid UTF-8.
package formats
