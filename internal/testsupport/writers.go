package testsupport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"eegprep/internal/container"
	"eegprep/internal/eeg"
)

// WriteNative stores rec as <dir>/<name>.eegc.
func WriteNative(t testing.TB, dir, name string, rec *eeg.Recording) string {
	t.Helper()
	var buf bytes.Buffer
	if err := container.EncodeRecording(&buf, rec); err != nil {
		t.Fatalf("encode native: %v", err)
	}
	path := filepath.Join(dir, name+".eegc")
	writeBytes(t, path, buf.Bytes())
	return path
}

// EDFOptions controls WriteEDF output.
type EDFOptions struct {
	// BDF writes 24-bit samples with the BIOSEMI signature.
	BDF bool
	// Unit is the physical dimension written for every signal (default uV).
	Unit string
}

// WriteEDF stores rec as an EDF+ (or BDF) file with one-second records and
// an annotation signal carrying rec.Annotations.
func WriteEDF(t testing.TB, path string, rec *eeg.Recording, opts EDFOptions) string {
	t.Helper()
	if opts.Unit == "" {
		opts.Unit = "uV"
	}
	scale := map[string]float64{"uV": 1e6, "mV": 1e3, "V": 1, "nV": 1e9}[opts.Unit]
	perRecord := int(rec.SampleRate)
	if float64(perRecord) != rec.SampleRate {
		t.Fatalf("edf writer needs an integer sample rate, got %g", rec.SampleRate)
	}
	records := rec.Samples() / perRecord
	width, digMax := 2, 32767.0
	if opts.BDF {
		width, digMax = 3, 8388607.0
	}
	digMin := -digMax - 1

	peak := 1.0
	for _, row := range rec.Data {
		for _, v := range row {
			peak = math.Max(peak, math.Abs(v*scale))
		}
	}
	physMax, physMin := math.Ceil(peak), -math.Ceil(peak)

	tals := make([][]byte, records)
	for r := range tals {
		tals[r] = fmt.Appendf(nil, "+%d\x14\x14\x00", r)
	}
	for _, ann := range rec.Annotations {
		r := min(max(int(ann.Onset), 0), records-1)
		tals[r] = fmt.Appendf(tals[r], "+%g\x15%g\x14%s\x14\x00", ann.Onset, ann.Duration, ann.Description)
	}
	annBytes := 0
	for _, tal := range tals {
		annBytes = max(annBytes, len(tal))
	}
	annSamples := (annBytes + width - 1) / width

	ns := len(rec.Channels) + 1
	var hdr bytes.Buffer
	if opts.BDF {
		hdr.WriteByte(0xFF)
		hdr.WriteString(pad("BIOSEMI", 7))
	} else {
		hdr.WriteString(pad("0", 8))
	}
	hdr.WriteString(pad("X X X X", 80))
	hdr.WriteString(pad("Startdate X X X X", 80))
	hdr.WriteString("01.01.26")
	hdr.WriteString("00.00.00")
	hdr.WriteString(pad(fmt.Sprint(256+ns*256), 8))
	reserved := "EDF+C"
	if opts.BDF {
		reserved = "24BIT"
	}
	hdr.WriteString(pad(reserved, 44))
	hdr.WriteString(pad(fmt.Sprint(records), 8))
	hdr.WriteString(pad("1", 8))
	hdr.WriteString(pad(fmt.Sprint(ns), 4))

	annLabel := "EDF Annotations"
	if opts.BDF {
		annLabel = "BDF Annotations"
	}
	labels := append(append([]string(nil), rec.Channels...), annLabel)
	column := func(width int, value func(i int) string) {
		for i := 0; i < ns; i++ {
			hdr.WriteString(pad(value(i), width))
		}
	}
	isAnn := func(i int) bool { return i == ns-1 }
	column(16, func(i int) string { return labels[i] })
	column(80, func(int) string { return "" })
	column(8, func(i int) string {
		if isAnn(i) {
			return ""
		}
		return opts.Unit
	})
	column(8, func(i int) string {
		if isAnn(i) {
			return "-1"
		}
		return headerNumber(t, physMin)
	})
	column(8, func(i int) string {
		if isAnn(i) {
			return "1"
		}
		return headerNumber(t, physMax)
	})
	column(8, func(int) string { return headerNumber(t, digMin) })
	column(8, func(int) string { return headerNumber(t, digMax) })
	column(80, func(int) string { return "" })
	column(8, func(i int) string {
		if isAnn(i) {
			return fmt.Sprint(annSamples)
		}
		return fmt.Sprint(perRecord)
	})
	column(32, func(int) string { return "" })

	gain := (digMax - digMin) / (physMax - physMin)
	body := hdr.Bytes()
	for r := 0; r < records; r++ {
		for _, row := range rec.Data {
			for i := 0; i < perRecord; i++ {
				phys := row[r*perRecord+i] * scale
				d := math.Round((phys-physMin)*gain + digMin)
				d = math.Max(digMin, math.Min(digMax, d))
				body = appendDigital(body, int32(d), width)
			}
		}
		tal := make([]byte, annSamples*width)
		copy(tal, tals[r])
		body = append(body, tal...)
	}
	writeBytes(t, path, body)
	return path
}

func appendDigital(b []byte, v int32, width int) []byte {
	if width == 3 {
		u := uint32(v) & 0xFFFFFF
		return append(b, byte(u), byte(u>>8), byte(u>>16))
	}
	return binary.LittleEndian.AppendUint16(b, uint16(int16(v)))
}

// BrainVisionOptions controls WriteBrainVision output.
type BrainVisionOptions struct {
	// Latin1 encodes header and markers as ISO-8859-1 with a µV unit, which
	// is not valid UTF-8.
	Latin1 bool
	// SegmentSamples marks the data as marker-based segments of this length.
	SegmentSamples int
	// OmitSegmentPoints leaves SegmentDataPoints out of a segmented header,
	// so only the New Segment markers delimit trials.
	OmitSegmentPoints bool
	// Vectorized writes channel-major data instead of multiplexed.
	Vectorized bool
	// Int16 stores INT_16 samples at 0.1 µV resolution.
	Int16 bool
	// Bads are written as "Bad" markers.
	Bads []string
}

// WriteBrainVision stores rec as <dir>/<base>.vhdr/.eeg/.vmrk.
func WriteBrainVision(t testing.TB, dir, base string, rec *eeg.Recording, opts BrainVisionOptions) string {
	t.Helper()
	orientation := "MULTIPLEXED"
	if opts.Vectorized {
		orientation = "VECTORIZED"
	}
	format, resolution := "IEEE_FLOAT_32", 1.0
	if opts.Int16 {
		format, resolution = "INT_16", 0.1
	}
	unit := "uV"
	if opts.Latin1 {
		unit = "µV"
	}

	var hdr strings.Builder
	hdr.WriteString("Brain Vision Data Exchange Header File Version 1.0\r\n")
	hdr.WriteString("; Data created by eegprep tests\r\n\r\n")
	hdr.WriteString("[Common Infos]\r\n")
	fmt.Fprintf(&hdr, "DataFile=%s.eeg\r\nMarkerFile=%s.vmrk\r\n", base, base)
	fmt.Fprintf(&hdr, "DataFormat=BINARY\r\nDataOrientation=%s\r\n", orientation)
	fmt.Fprintf(&hdr, "NumberOfChannels=%d\r\n", len(rec.Channels))
	fmt.Fprintf(&hdr, "SamplingInterval=%s\r\n", trimFloat(1e6/rec.SampleRate))
	if opts.SegmentSamples > 0 {
		hdr.WriteString("SegmentationType=MARKERBASED\r\n")
		if !opts.OmitSegmentPoints {
			fmt.Fprintf(&hdr, "SegmentDataPoints=%d\r\n", opts.SegmentSamples)
		}
	}
	fmt.Fprintf(&hdr, "\r\n[Binary Infos]\r\nBinaryFormat=%s\r\n\r\n[Channel Infos]\r\n", format)
	for i, ch := range rec.Channels {
		fmt.Fprintf(&hdr, "Ch%d=%s,,%s,%s\r\n", i+1, ch, trimFloat(resolution), unit)
	}

	var mrk strings.Builder
	mrk.WriteString("Brain Vision Data Exchange Marker File, Version 1.0\r\n\r\n[Common Infos]\r\n")
	fmt.Fprintf(&mrk, "DataFile=%s.eeg\r\n\r\n[Marker Infos]\r\n", base)
	k := 1
	if opts.SegmentSamples > 0 {
		for start := 0; start < rec.Samples(); start += opts.SegmentSamples {
			fmt.Fprintf(&mrk, "Mk%d=New Segment,,%d,1,0\r\n", k, start+1)
			k++
		}
	}
	for _, ann := range rec.Annotations {
		kind, desc, ok := strings.Cut(ann.Description, "/")
		if !ok {
			kind, desc = "Comment", ann.Description
		}
		fmt.Fprintf(&mrk, "Mk%d=%s,%s,%d,1,0\r\n", k, kind, desc, int(math.Round(ann.Onset*rec.SampleRate))+1)
		k++
	}
	for _, bad := range opts.Bads {
		fmt.Fprintf(&mrk, "Mk%d=Bad,%s,1,1,0\r\n", k, bad)
		k++
	}

	n := rec.Samples()
	nch := len(rec.Channels)
	var data []byte
	value := func(c, i int) float64 { return rec.Data[c][i] * 1e6 / resolution }
	emit := func(c, i int) {
		if opts.Int16 {
			data = binary.LittleEndian.AppendUint16(data, uint16(int16(math.Round(value(c, i)))))
			return
		}
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(value(c, i))))
	}
	if opts.Vectorized {
		for c := 0; c < nch; c++ {
			for i := 0; i < n; i++ {
				emit(c, i)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for c := 0; c < nch; c++ {
				emit(c, i)
			}
		}
	}

	header, markers := []byte(hdr.String()), []byte(mrk.String())
	if opts.Latin1 {
		var err error
		encoder := charmap.ISO8859_1.NewEncoder()
		if header, err = encoder.Bytes(header); err != nil {
			t.Fatalf("latin-1 header: %v", err)
		}
		if markers, err = encoder.Bytes(markers); err != nil {
			t.Fatalf("latin-1 markers: %v", err)
		}
	}
	path := filepath.Join(dir, base+".vhdr")
	writeBytes(t, path, header)
	writeBytes(t, filepath.Join(dir, base+".vmrk"), markers)
	writeBytes(t, filepath.Join(dir, base+".eeg"), data)
	return path
}

// WriteElectrodesTSV writes a BIDS-style electrodes.tsv sidecar.
func WriteElectrodesTSV(t testing.TB, dir string, positions map[string]eeg.Position, order []string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("name\tx\ty\tz\n")
	for _, name := range order {
		p := positions[name]
		fmt.Fprintf(&b, "%s\t%g\t%g\t%g\n", name, p.X, p.Y, p.Z)
	}
	path := filepath.Join(dir, "electrodes.tsv")
	writeBytes(t, path, []byte(b.String()))
	return path
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func pad(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// headerNumber formats v for an 8-byte EDF header field without exponent
// notation; values that do not fit fail the test instead of being truncated.
func headerNumber(t testing.TB, v float64) string {
	t.Helper()
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 8 {
		t.Fatalf("edf header number %s exceeds 8 bytes", s)
	}
	return s
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
