package eeg

import (
	"fmt"
	"slices"
)

// Position is an electrode location in head coordinates (metres).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Annotation is a time-stamped marker carried by a recording file.
type Annotation struct {
	Onset       float64 `json:"onset"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// Recording is one continuous multi-channel signal. Data is channel-major and
// expressed in volts.
type Recording struct {
	Channels     []string
	Data         [][]float64
	SampleRate   float64
	Bads         []string
	Positions    map[string]Position
	Annotations  []Annotation
	SourceFormat string
	SourcePath   string
}

// Samples returns the per-channel sample count.
func (r *Recording) Samples() int {
	if r == nil || len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Duration returns the recording length in seconds.
func (r *Recording) Duration() float64 {
	if r == nil || r.SampleRate <= 0 {
		return 0
	}
	return float64(r.Samples()) / r.SampleRate
}

// ChannelIndex returns the index of name or -1.
func (r *Recording) ChannelIndex(name string) int {
	return slices.Index(r.Channels, name)
}

// IsBad reports whether name is flagged bad.
func (r *Recording) IsBad(name string) bool {
	return slices.Contains(r.Bads, name)
}

// MarkBad adds name to the bad list once.
func (r *Recording) MarkBad(name string) {
	if !r.IsBad(name) {
		r.Bads = append(r.Bads, name)
	}
}

// HasPositions reports whether every channel has an assigned position.
func (r *Recording) HasPositions() bool {
	if r == nil || len(r.Positions) == 0 {
		return false
	}
	for _, ch := range r.Channels {
		if _, ok := r.Positions[ch]; !ok {
			return false
		}
	}
	return true
}

// Validate checks the structural invariants every stage relies on.
func (r *Recording) Validate() error {
	if r == nil {
		return fmt.Errorf("recording is nil")
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", r.SampleRate)
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("recording has no channels")
	}
	if len(r.Channels) != len(r.Data) {
		return fmt.Errorf("recording has %d channel names but %d data rows", len(r.Channels), len(r.Data))
	}
	n := len(r.Data[0])
	for i, row := range r.Data {
		if len(row) != n {
			return fmt.Errorf("channel %q has %d samples, expected %d", r.Channels[i], len(row), n)
		}
	}
	seen := make(map[string]struct{}, len(r.Channels))
	for _, ch := range r.Channels {
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("duplicate channel %q", ch)
		}
		seen[ch] = struct{}{}
	}
	return nil
}

// Release drops the sample buffers once epoching no longer needs them.
func (r *Recording) Release() {
	if r == nil {
		return
	}
	r.Data = nil
}
