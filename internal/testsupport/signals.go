package testsupport

import (
	"math"
	"math/rand/v2"

	"eegprep/internal/eeg"
)

// Signal describes a deterministic synthetic recording.
type Signal struct {
	Channels   []string
	SampleRate float64
	Seconds    float64
	// Amplitude is the peak amplitude of the 10 Hz rhythm in volts.
	Amplitude float64
	// Noise is the standard deviation of additive white noise in volts.
	Noise float64
	// Seed makes the noise reproducible.
	Seed uint64
	// Spikes adds a large transient at each listed second to every channel.
	Spikes []float64
	// SpikeAmplitude defaults to 1 mV.
	SpikeAmplitude float64
}

// DefaultSignal returns a clean canonical-channel signal of the given length.
func DefaultSignal(rate, seconds float64) Signal {
	return Signal{
		Channels:   append([]string(nil), eeg.CanonicalChannels...),
		SampleRate: rate,
		Seconds:    seconds,
		Amplitude:  10e-6,
		Noise:      2e-6,
		Seed:       1,
	}
}

// Recording renders the signal. Each channel carries a phase-shifted 10 Hz
// rhythm, a slow 0.3 Hz drift and noise.
func (s Signal) Recording() *eeg.Recording {
	n := int(math.Round(s.Seconds * s.SampleRate))
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	spike := s.SpikeAmplitude
	if spike == 0 {
		spike = 1e-3
	}
	data := make([][]float64, len(s.Channels))
	for c := range data {
		row := make([]float64, n)
		phase := float64(c) * 0.37
		for i := range row {
			t := float64(i) / s.SampleRate
			row[i] = s.Amplitude*math.Sin(2*math.Pi*10*t+phase) +
				0.5*s.Amplitude*math.Sin(2*math.Pi*0.3*t+phase) +
				s.Noise*rng.NormFloat64()
		}
		for _, at := range s.Spikes {
			center := int(at * s.SampleRate)
			for k := -2; k <= 2; k++ {
				if j := center + k; j >= 0 && j < n {
					row[j] += spike * (1 - math.Abs(float64(k))/3)
				}
			}
		}
		data[c] = row
	}
	return &eeg.Recording{
		Channels:   append([]string(nil), s.Channels...),
		Data:       data,
		SampleRate: s.SampleRate,
	}
}

// Multiply scales every sample.
func Multiply(rec *eeg.Recording, factor float64) {
	for _, row := range rec.Data {
		for i := range row {
			row[i] *= factor
		}
	}
}
