// Package dsp holds the channel-parallel signal conditioning stages:
// FFT resampling, zero-phase FIR band-pass filtering and average
// re-referencing. Every routine writes a fresh slice per channel, so results
// do not depend on the worker count.
package dsp
