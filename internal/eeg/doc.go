// Package eeg holds the in-memory data model shared by every pipeline stage:
// the continuous Recording that conditioning stages mutate in place, the
// fixed canonical channel layout, and the EpochSet handed to classifiers.
package eeg
