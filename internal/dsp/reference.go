package dsp

import "eegprep/internal/eeg"

// AverageReference subtracts the cross-channel mean from every sample.
func AverageReference(rec *eeg.Recording) {
	nch := len(rec.Data)
	if nch == 0 {
		return
	}
	n := rec.Samples()
	for t := 0; t < n; t++ {
		var sum float64
		for c := 0; c < nch; c++ {
			sum += rec.Data[c][t]
		}
		mean := sum / float64(nch)
		for c := 0; c < nch; c++ {
			rec.Data[c][t] -= mean
		}
	}
}
