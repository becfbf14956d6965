package eeg

// CanonicalChannels is the fixed 59-electrode layout every processed
// recording is reduced to, in output order.
var CanonicalChannels = []string{
	"Fpz", "Fp1", "Fp2",
	"AF3", "AF4", "AF7", "AF8",
	"Fz", "F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8",
	"FCz", "FC1", "FC2", "FC3", "FC4", "FC5", "FC6",
	"FT7", "FT8",
	"Cz", "C1", "C2", "C3", "C4", "C5", "C6",
	"T7", "T8",
	"CPz", "CP1", "CP2", "CP3", "CP4", "CP5", "CP6",
	"TP7", "TP8",
	"Pz", "P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8",
	"PO3", "PO4", "PO7", "PO8",
	"Oz", "O1", "O2",
}

// CanonicalChannelCount is len(CanonicalChannels).
const CanonicalChannelCount = 59
