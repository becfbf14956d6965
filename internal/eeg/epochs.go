package eeg

// Status describes how epoch extraction ended.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusRetryExhausted Status = "retry_exhausted"
)

// Attempt records one pass of the rejection loop.
type Attempt struct {
	Threshold float64 `json:"threshold"`
	Survivors int     `json:"survivors"`
}

// EpochSet is the epoch × channel × sample tensor produced by the pipeline.
// It is never mutated after creation.
type EpochSet struct {
	Data       [][][]float64
	Channels   []string
	SampleRate float64
	// Onsets holds the event sample index of each epoch, in event order.
	Onsets    []int
	Status    Status
	Attempts  []Attempt
	Threshold float64
}

// Shape returns (epochs, channels, samples).
func (e *EpochSet) Shape() (int, int, int) {
	if e == nil || len(e.Data) == 0 {
		return 0, len(channelsOf(e)), 0
	}
	channels := len(e.Data[0])
	samples := 0
	if channels > 0 {
		samples = len(e.Data[0][0])
	}
	return len(e.Data), channels, samples
}

// Empty reports whether the tensor holds no samples.
func (e *EpochSet) Empty() bool {
	n, c, s := e.Shape()
	return n == 0 || c == 0 || s == 0
}

func channelsOf(e *EpochSet) []string {
	if e == nil {
		return nil
	}
	return e.Channels
}
