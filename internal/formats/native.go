package formats

import (
	"context"
	"os"

	"eegprep/internal/container"
	"eegprep/internal/eeg"
)

// NativeStrategy reads the project .eegc container.
type NativeStrategy struct{}

func (NativeStrategy) Name() string { return "native" }

func (NativeStrategy) Extensions() []string { return []string{".eegc"} }

func (NativeStrategy) Read(_ context.Context, path string) (*eeg.Recording, Details, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Details{}, err
	}
	defer f.Close()
	rec, err := container.DecodeRecording(f)
	if err != nil {
		return nil, Details{}, err
	}
	return rec, Details{}, nil
}
