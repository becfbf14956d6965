package container

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"math/bits"

	"eegprep/internal/eeg"
)

const (
	// MagicRaw prefixes continuous recordings.
	MagicRaw = "EEGC"
	// MagicEpochs prefixes epoch artifacts.
	MagicEpochs = "EEGX"
	// Version is the only layout version this package reads and writes.
	Version uint16 = 1

	KindRaw    = "raw"
	KindEpochs = "epochs"

	maxHeaderLen = 64 << 20
	// maxRows bounds the slice headers allocated before the sample block is
	// indexed: epochs x channels for EEGX, channels for EEGC.
	maxRows      = 1 << 20
	preambleLen  = 4 + 2 + 4
)

// ErrCorrupt marks any structural decode failure.
var ErrCorrupt = errors.New("container corrupt")

// Header is the JSON metadata block.
type Header struct {
	Kind        string                  `json:"kind"`
	Channels    []string                `json:"channels"`
	SampleRate  float64                 `json:"sample_rate"`
	Shape       []int                   `json:"shape"`
	Bads        []string                `json:"bads,omitempty"`
	Positions   map[string]eeg.Position `json:"positions,omitempty"`
	Annotations []eeg.Annotation        `json:"annotations,omitempty"`
	Status      string                  `json:"status,omitempty"`
	Attempts    []eeg.Attempt           `json:"attempts,omitempty"`
	Threshold   float64                 `json:"threshold,omitempty"`
	Onsets      []int                   `json:"onsets,omitempty"`
}

// Values returns the number of samples the header describes, or -1 when a
// dimension is negative or the product overflows.
func (h Header) Values() int {
	if len(h.Shape) == 0 {
		return 0
	}
	total := uint64(1)
	for _, d := range h.Shape {
		if d < 0 {
			return -1
		}
		hi, lo := bits.Mul64(total, uint64(d))
		if hi != 0 || lo > math.MaxInt {
			return -1
		}
		total = lo
	}
	return int(total)
}

// checkShape validates shape against a sample block of have bytes before any
// allocation sized by the header takes place.
func checkShape(shape []int, width, have int) error {
	if len(shape) == 0 {
		return corrupt("empty shape")
	}
	rows := uint64(1)
	for i, d := range shape {
		if d < 0 {
			return corrupt("negative dimension in shape %v", shape)
		}
		if i == len(shape)-1 {
			break
		}
		hi, lo := bits.Mul64(rows, uint64(d))
		if hi != 0 || lo > maxRows {
			return corrupt("shape %v exceeds %d rows", shape, maxRows)
		}
		rows = lo
	}
	hi, values := bits.Mul64(rows, uint64(shape[len(shape)-1]))
	if hi != 0 {
		return corrupt("shape %v overflows", shape)
	}
	hi, want := bits.Mul64(values, uint64(width))
	if hi != 0 || want != uint64(have) {
		return corrupt("sample block is %d bytes, shape %v needs %d-byte samples", have, shape, width)
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// EncodeRecording writes rec as an EEGC container.
func EncodeRecording(w io.Writer, rec *eeg.Recording) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	header := Header{
		Kind:        KindRaw,
		Channels:    rec.Channels,
		SampleRate:  rec.SampleRate,
		Shape:       []int{len(rec.Channels), rec.Samples()},
		Bads:        rec.Bads,
		Positions:   rec.Positions,
		Annotations: rec.Annotations,
	}
	return encode(w, MagicRaw, header, func(buf []byte) []byte {
		for _, row := range rec.Data {
			for _, v := range row {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
		}
		return buf
	}, header.Values()*4)
}

// EncodeEpochs writes set as an EEGX container.
func EncodeEpochs(w io.Writer, set *eeg.EpochSet) error {
	if set == nil {
		return errors.New("encode epochs: nil set")
	}
	n, c, s := set.Shape()
	header := Header{
		Kind:       KindEpochs,
		Channels:   set.Channels,
		SampleRate: set.SampleRate,
		Shape:      []int{n, c, s},
		Status:     string(set.Status),
		Attempts:   set.Attempts,
		Threshold:  set.Threshold,
		Onsets:     set.Onsets,
	}
	for i, epoch := range set.Data {
		if len(epoch) != c {
			return fmt.Errorf("encode epochs: epoch %d has %d channels, expected %d", i, len(epoch), c)
		}
		for _, row := range epoch {
			if len(row) != s {
				return fmt.Errorf("encode epochs: epoch %d is ragged", i)
			}
		}
	}
	return encode(w, MagicEpochs, header, func(buf []byte) []byte {
		for _, epoch := range set.Data {
			for _, row := range epoch {
				for _, v := range row {
					buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
				}
			}
		}
		return buf
	}, header.Values()*8)
}

func encode(w io.Writer, magic string, header Header, appendSamples func([]byte) []byte, sampleBytes int) error {
	meta, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	buf := make([]byte, 0, preambleLen+len(meta)+sampleBytes+4)
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint16(buf, Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta)))
	buf = append(buf, meta...)
	buf = appendSamples(buf)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	_, err = w.Write(buf)
	return err
}

// DecodeRecording reads an EEGC container.
func DecodeRecording(r io.Reader) (*eeg.Recording, error) {
	header, samples, err := decode(r, MagicRaw, KindRaw, 4)
	if err != nil {
		return nil, err
	}
	if len(header.Shape) != 2 {
		return nil, corrupt("raw shape %v", header.Shape)
	}
	channels, n := header.Shape[0], header.Shape[1]
	if channels != len(header.Channels) {
		return nil, corrupt("shape declares %d channels, header lists %d", channels, len(header.Channels))
	}
	data := make([][]float64, channels)
	off := 0
	for c := range data {
		row := make([]float64, n)
		for i := range row {
			row[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(samples[off:])))
			off += 4
		}
		data[c] = row
	}
	rec := &eeg.Recording{
		Channels:     header.Channels,
		Data:         data,
		SampleRate:   header.SampleRate,
		Bads:         header.Bads,
		Positions:    header.Positions,
		Annotations:  header.Annotations,
		SourceFormat: "native",
	}
	if err := rec.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}
	return rec, nil
}

// DecodeEpochs reads an EEGX container.
func DecodeEpochs(r io.Reader) (*eeg.EpochSet, error) {
	header, samples, err := decode(r, MagicEpochs, KindEpochs, 8)
	if err != nil {
		return nil, err
	}
	if len(header.Shape) != 3 {
		return nil, corrupt("epoch shape %v", header.Shape)
	}
	n, c, s := header.Shape[0], header.Shape[1], header.Shape[2]
	if n > 0 && c != len(header.Channels) {
		return nil, corrupt("shape declares %d channels, header lists %d", c, len(header.Channels))
	}
	data := make([][][]float64, n)
	off := 0
	for e := range data {
		epoch := make([][]float64, c)
		for ch := range epoch {
			row := make([]float64, s)
			for i := range row {
				row[i] = math.Float64frombits(binary.LittleEndian.Uint64(samples[off:]))
				off += 8
			}
			epoch[ch] = row
		}
		data[e] = epoch
	}
	return &eeg.EpochSet{
		Data:       data,
		Channels:   header.Channels,
		SampleRate: header.SampleRate,
		Onsets:     header.Onsets,
		Status:     eeg.Status(header.Status),
		Attempts:   header.Attempts,
		Threshold:  header.Threshold,
	}, nil
}

func decode(r io.Reader, magic, kind string, width int) (Header, []byte, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read container: %w", err)
	}
	if len(payload) < preambleLen+4 {
		return Header{}, nil, corrupt("truncated: %d bytes", len(payload))
	}
	body, tail := payload[:len(payload)-4], payload[len(payload)-4:]
	if got, want := crc32.ChecksumIEEE(body), binary.LittleEndian.Uint32(tail); got != want {
		return Header{}, nil, corrupt("checksum mismatch: %08x != %08x", got, want)
	}
	header, rest, err := parsePreamble(bytes.NewReader(body), magic)
	if err != nil {
		return Header{}, nil, err
	}
	if header.Kind != kind {
		return Header{}, nil, corrupt("kind %q, expected %q", header.Kind, kind)
	}
	samples := body[preambleLen+rest:]
	if err := checkShape(header.Shape, width, len(samples)); err != nil {
		return Header{}, nil, err
	}
	return header, samples, nil
}

// ReadHeader returns the metadata of a container without reading samples.
// Checksums are not verified.
func ReadHeader(r io.Reader) (string, Header, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return "", Header{}, corrupt("read magic: %v", err)
	}
	m := string(magic[:])
	if m != MagicRaw && m != MagicEpochs {
		return "", Header{}, corrupt("unknown magic %q", m)
	}
	header, _, err := parsePreamble(io.MultiReader(bytes.NewReader(magic[:]), r), m)
	return m, header, err
}

// parsePreamble reads magic, version and header; it returns the header
// length so callers can locate the sample block.
func parsePreamble(r io.Reader, magic string) (Header, int, error) {
	var pre [preambleLen]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Header{}, 0, corrupt("read preamble: %v", err)
	}
	if got := string(pre[:4]); got != magic {
		return Header{}, 0, corrupt("magic %q, expected %q", got, magic)
	}
	if v := binary.LittleEndian.Uint16(pre[4:6]); v != Version {
		return Header{}, 0, corrupt("unsupported version %d", v)
	}
	n := binary.LittleEndian.Uint32(pre[6:10])
	if n == 0 || n > maxHeaderLen {
		return Header{}, 0, corrupt("header length %d", n)
	}
	meta := make([]byte, n)
	if _, err := io.ReadFull(r, meta); err != nil {
		return Header{}, 0, corrupt("read header: %v", err)
	}
	var header Header
	if err := json.Unmarshal(meta, &header); err != nil {
		return Header{}, 0, corrupt("decode header: %v", err)
	}
	return header, int(n), nil
}
