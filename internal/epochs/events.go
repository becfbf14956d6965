package epochs

import (
	"math"

	"eegprep/internal/eeg"
)

// Event is a sample index with an optional label.
type Event struct {
	Sample int
	Label  string
}

// FixedLengthEvents places an event every spacing seconds from sample 0 while
// a full spacing still fits in n samples.
func FixedLengthEvents(n int, rate, spacing float64) []Event {
	step := int(math.Round(spacing * rate))
	if step <= 0 || n <= 0 {
		return nil
	}
	events := make([]Event, 0, n/step)
	for s := 0; s+step <= n; s += step {
		events = append(events, Event{Sample: s})
	}
	return events
}

// AnnotationEvents converts annotation onsets to in-range sample events.
func AnnotationEvents(anns []eeg.Annotation, rate float64, n int) []Event {
	var events []Event
	for _, a := range anns {
		s := int(math.Round(a.Onset * rate))
		if s < 0 || s >= n {
			continue
		}
		events = append(events, Event{Sample: s, Label: a.Description})
	}
	return events
}
