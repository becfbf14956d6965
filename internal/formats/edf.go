package formats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"eegprep/internal/eeg"
)

const (
	edfFixedHeader  = 256
	edfSignalHeader = 256
	edfAnnotations  = "EDF Annotations"
	bdfAnnotations  = "BDF Annotations"
)

// EDFStrategy reads EDF/EDF+ (16-bit) and BDF (24-bit) files.
type EDFStrategy struct{}

func (EDFStrategy) Name() string { return "edf" }

func (EDFStrategy) Extensions() []string { return []string{".edf", ".bdf"} }

type edfSignal struct {
	label      string
	unit       string
	physMin    float64
	physMax    float64
	digMin     float64
	digMax     float64
	perRecord  int
	annotation bool
}

func (s edfSignal) gain() float64 {
	if s.digMax == s.digMin {
		return 0
	}
	return (s.physMax - s.physMin) / (s.digMax - s.digMin)
}

func (EDFStrategy) Read(_ context.Context, path string) (*eeg.Recording, Details, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, Details{}, err
	}
	rec, err := decodeEDF(payload)
	if err != nil {
		return nil, Details{}, err
	}
	return rec, Details{}, nil
}

func decodeEDF(payload []byte) (*eeg.Recording, error) {
	if len(payload) < edfFixedHeader {
		return nil, errors.New("edf: file shorter than fixed header")
	}
	width := 2
	if payload[0] == 0xFF && bytes.HasPrefix(payload[1:8], []byte("BIOSEMI")) {
		width = 3
	} else if field(payload, 0, 8) != "0" {
		return nil, fmt.Errorf("edf: unexpected version %q", field(payload, 0, 8))
	}

	headerBytes, err := intField(payload, 184, 8)
	if err != nil {
		return nil, fmt.Errorf("edf: header length: %w", err)
	}
	records, err := intField(payload, 236, 8)
	if err != nil {
		return nil, fmt.Errorf("edf: record count: %w", err)
	}
	recordDuration, err := floatField(payload, 244, 8)
	if err != nil {
		return nil, fmt.Errorf("edf: record duration: %w", err)
	}
	ns, err := intField(payload, 252, 4)
	if err != nil {
		return nil, fmt.Errorf("edf: signal count: %w", err)
	}
	if ns <= 0 {
		return nil, errors.New("edf: no signals")
	}
	if recordDuration <= 0 {
		return nil, fmt.Errorf("edf: record duration %g not supported", recordDuration)
	}
	if headerBytes != edfFixedHeader+ns*edfSignalHeader || len(payload) < headerBytes {
		return nil, fmt.Errorf("edf: header length %d inconsistent with %d signals", headerBytes, ns)
	}

	signals, err := parseEDFSignals(payload, ns)
	if err != nil {
		return nil, err
	}

	recordSamples := 0
	maxPerRecord := 0
	for _, sig := range signals {
		recordSamples += sig.perRecord
		if !sig.annotation && sig.perRecord > maxPerRecord {
			maxPerRecord = sig.perRecord
		}
	}
	if maxPerRecord == 0 {
		return nil, errors.New("edf: no data signals")
	}
	for _, sig := range signals {
		if !sig.annotation && sig.perRecord != maxPerRecord {
			return nil, fmt.Errorf("edf: signal %q has %d samples per record, mixed rates are unsupported", sig.label, sig.perRecord)
		}
	}

	recordBytes := recordSamples * width
	body := payload[headerBytes:]
	available := len(body) / recordBytes
	if records < 0 || records > available {
		records = available
	}
	if records == 0 {
		return nil, errors.New("edf: no complete data records")
	}

	rec := &eeg.Recording{SampleRate: float64(maxPerRecord) / recordDuration}
	scales := make([]float64, 0, ns)
	for _, sig := range signals {
		if sig.annotation {
			continue
		}
		scale, err := unitScale(sig.unit)
		if err != nil {
			return nil, fmt.Errorf("edf: signal %q: %w", sig.label, err)
		}
		scales = append(scales, scale)
		rec.Channels = append(rec.Channels, sig.label)
		rec.Data = append(rec.Data, make([]float64, 0, records*maxPerRecord))
	}

	for r := 0; r < records; r++ {
		off := r * recordBytes
		ch := 0
		for _, sig := range signals {
			chunk := body[off : off+sig.perRecord*width]
			off += sig.perRecord * width
			if sig.annotation {
				anns, err := parseTAL(chunk)
				if err != nil {
					return nil, fmt.Errorf("edf: record %d annotations: %w", r, err)
				}
				rec.Annotations = append(rec.Annotations, anns...)
				continue
			}
			gain := sig.gain()
			for i := 0; i < sig.perRecord; i++ {
				d := digital(chunk[i*width:], width)
				phys := (d-sig.digMin)*gain + sig.physMin
				rec.Data[ch] = append(rec.Data[ch], phys*scales[ch])
			}
			ch++
		}
	}
	return rec, nil
}

func parseEDFSignals(payload []byte, ns int) ([]edfSignal, error) {
	base := edfFixedHeader
	col := func(offset, width, i int) string {
		return field(payload, base+offset*ns+i*width, width)
	}
	signals := make([]edfSignal, ns)
	for i := range signals {
		sig := edfSignal{
			label: col(0, 16, i),
			unit:  col(16+80, 8, i),
		}
		sig.annotation = sig.label == edfAnnotations || sig.label == bdfAnnotations
		var err error
		nums := []struct {
			dst    *float64
			offset int
			name   string
		}{
			{&sig.physMin, 16 + 80 + 8, "physical minimum"},
			{&sig.physMax, 16 + 80 + 8 + 8, "physical maximum"},
			{&sig.digMin, 16 + 80 + 8 + 8 + 8, "digital minimum"},
			{&sig.digMax, 16 + 80 + 8 + 8 + 8 + 8, "digital maximum"},
		}
		for _, n := range nums {
			if *n.dst, err = strconv.ParseFloat(col(n.offset, 8, i), 64); err != nil {
				return nil, fmt.Errorf("edf: signal %d %s: %w", i, n.name, err)
			}
		}
		perRecord := col(16+80+8+8+8+8+8+80, 8, i)
		if sig.perRecord, err = strconv.Atoi(perRecord); err != nil || sig.perRecord <= 0 {
			return nil, fmt.Errorf("edf: signal %d samples per record %q", i, perRecord)
		}
		signals[i] = sig
	}
	return signals, nil
}

func digital(b []byte, width int) float64 {
	if width == 3 {
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		return float64(v)
	}
	return float64(int16(uint16(b[0]) | uint16(b[1])<<8))
}

// parseTAL decodes EDF+ time-stamped annotation lists. The empty annotation
// that time-keeps each record is skipped.
func parseTAL(chunk []byte) ([]eeg.Annotation, error) {
	var out []eeg.Annotation
	for _, tal := range bytes.Split(chunk, []byte{0}) {
		if len(tal) == 0 {
			continue
		}
		parts := bytes.Split(tal, []byte{0x14})
		head := string(parts[0])
		onsetText, durationText, _ := strings.Cut(head, "\x15")
		onset, err := strconv.ParseFloat(strings.TrimPrefix(onsetText, "+"), 64)
		if err != nil {
			return nil, fmt.Errorf("onset %q: %w", onsetText, err)
		}
		duration := 0.0
		if durationText != "" {
			if duration, err = strconv.ParseFloat(durationText, 64); err != nil {
				return nil, fmt.Errorf("duration %q: %w", durationText, err)
			}
		}
		for _, text := range parts[1:] {
			desc := strings.TrimSpace(string(text))
			if desc == "" {
				continue
			}
			out = append(out, eeg.Annotation{Onset: onset, Duration: duration, Description: desc})
		}
	}
	return out, nil
}

func field(b []byte, offset, width int) string {
	if offset+width > len(b) {
		return ""
	}
	return strings.TrimSpace(string(b[offset : offset+width]))
}

func intField(b []byte, offset, width int) (int, error) {
	return strconv.Atoi(field(b, offset, width))
}

func floatField(b []byte, offset, width int) (float64, error) {
	v, err := strconv.ParseFloat(field(b, offset, width), 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("non-finite value")
	}
	return v, err
}
