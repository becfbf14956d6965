// Package montage assigns electrode positions to canonical channels.
//
// Templates are tried in configured order and the first that covers every
// channel wins. Built-in templates use idealized spherical 10-10 geometry;
// "sidecar" reads electrodes.tsv from the recording directory, and any other
// value is read as a TSV or CSV file path.
package montage
