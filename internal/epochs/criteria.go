package epochs

import "fmt"

// RejectionCriteria is an immutable rejection policy. Grow returns a new
// value; callers never modify one in place.
type RejectionCriteria struct {
	// PeakToPeak is the largest accepted max-min amplitude, in volts, on any
	// channel of a window.
	PeakToPeak float64
}

// Grow returns the criteria with the threshold multiplied by factor.
func (c RejectionCriteria) Grow(factor float64) RejectionCriteria {
	return RejectionCriteria{PeakToPeak: c.PeakToPeak * factor}
}

// Accepts reports whether a window's worst-channel peak-to-peak passes.
func (c RejectionCriteria) Accepts(peakToPeak float64) bool {
	return peakToPeak <= c.PeakToPeak
}

func (c RejectionCriteria) String() string {
	return fmt.Sprintf("peak_to_peak<=%g", c.PeakToPeak)
}
