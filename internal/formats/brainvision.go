package formats

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"eegprep/internal/eeg"
)

// TextEncoding selects how BrainVision header and marker text is decoded.
type TextEncoding string

const (
	EncodingUTF8   TextEncoding = "utf8"
	EncodingLatin1 TextEncoding = "latin1"
)

const newSegmentMarker = "New Segment"

// BrainVisionStrategy reads .vhdr/.eeg/.vmrk triples.
type BrainVisionStrategy struct {
	encoding TextEncoding
}

// NewBrainVisionStrategy returns a reader bound to one text encoding.
func NewBrainVisionStrategy(enc TextEncoding) BrainVisionStrategy {
	return BrainVisionStrategy{encoding: enc}
}

func (s BrainVisionStrategy) Name() string { return "brainvision-" + string(s.encoding) }

func (BrainVisionStrategy) Extensions() []string { return []string{".vhdr"} }

func (s BrainVisionStrategy) decodeText(raw []byte) (string, error) {
	switch s.encoding {
	case EncodingLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("latin-1 decode: %w", err)
		}
		return string(out), nil
	default:
		raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(raw) {
			return "", errors.New("header is not valid UTF-8")
		}
		return string(raw), nil
	}
}

// iniFile maps lower-cased section names to key/value pairs in file order.
type iniFile map[string]*iniSection

type iniSection struct {
	keys   []string
	values map[string]string
}

func (f iniFile) get(section, key string) string {
	sec, ok := f[strings.ToLower(section)]
	if !ok {
		return ""
	}
	return strings.TrimSpace(sec.values[key])
}

func parseINI(text string) iniFile {
	out := iniFile{}
	var current *iniSection
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			current = &iniSection{values: map[string]string{}}
			out[name] = current
			continue
		}
		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := current.values[key]; !seen {
			current.keys = append(current.keys, key)
		}
		current.values[key] = value
	}
	return out
}

type vhdrChannel struct {
	name       string
	resolution float64
	scale      float64
}

type vhdr struct {
	dataFile    string
	markerFile  string
	orientation string
	format      string
	rate        float64
	channels    []vhdrChannel
	segmented   bool
	segmentLen  int
}

func (s BrainVisionStrategy) Read(_ context.Context, path string) (*eeg.Recording, Details, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Details{}, err
	}
	text, err := s.decodeText(raw)
	if err != nil {
		return nil, Details{}, err
	}
	hdr, err := parseVHDR(text)
	if err != nil {
		return nil, Details{}, err
	}

	dir := filepath.Dir(path)
	payload, err := os.ReadFile(filepath.Join(dir, hdr.dataFile))
	if err != nil {
		return nil, Details{}, fmt.Errorf("brainvision data file: %w", err)
	}
	data, err := decodeBrainVisionData(hdr, payload)
	if err != nil {
		return nil, Details{}, err
	}

	rec := &eeg.Recording{SampleRate: hdr.rate, Data: data}
	for _, ch := range hdr.channels {
		rec.Channels = append(rec.Channels, ch.name)
	}

	var details Details
	n := rec.Samples()
	if hdr.segmented {
		// Trials are stored back to back, so concatenation along time is
		// already the sample order on disk.
		details.Reshaped = true
		if hdr.segmentLen > 0 {
			if n%hdr.segmentLen != 0 {
				return nil, Details{}, fmt.Errorf("brainvision: %d samples are not a whole number of %d-sample segments", n, hdr.segmentLen)
			}
			details.Segments = n / hdr.segmentLen
		}
	}

	if hdr.markerFile != "" {
		markerRaw, err := os.ReadFile(filepath.Join(dir, hdr.markerFile))
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, Details{}, fmt.Errorf("brainvision marker file: %w", err)
		default:
			markerText, err := s.decodeText(markerRaw)
			if err != nil {
				return nil, Details{}, fmt.Errorf("brainvision markers: %w", err)
			}
			anns, bads, err := parseVMRK(markerText, hdr.rate)
			if err != nil {
				return nil, Details{}, err
			}
			rec.Annotations = anns
			rec.Bads = bads
			if details.Reshaped && details.Segments == 0 {
				details.Segments = countSegments(anns)
			}
		}
	}
	return rec, details, nil
}

// countSegments counts "New Segment" markers, the segment boundaries of
// marker-based files that omit SegmentDataPoints.
func countSegments(anns []eeg.Annotation) int {
	count := 0
	for _, ann := range anns {
		if strings.EqualFold(ann.Description, newSegmentMarker) {
			count++
		}
	}
	return count
}

func parseVHDR(text string) (vhdr, error) {
	first, _, _ := strings.Cut(text, "\n")
	if !strings.Contains(first, "Data Exchange Header File") {
		return vhdr{}, errors.New("brainvision: missing header identification line")
	}
	ini := parseINI(text)
	hdr := vhdr{
		dataFile:    ini.get("Common Infos", "DataFile"),
		markerFile:  ini.get("Common Infos", "MarkerFile"),
		orientation: strings.ToUpper(ini.get("Common Infos", "DataOrientation")),
		format:      strings.ToUpper(ini.get("Binary Infos", "BinaryFormat")),
	}
	if hdr.dataFile == "" {
		return vhdr{}, errors.New("brainvision: DataFile missing")
	}
	if df := strings.ToUpper(ini.get("Common Infos", "DataFormat")); df != "" && df != "BINARY" {
		return vhdr{}, fmt.Errorf("brainvision: data format %q unsupported", df)
	}
	if hdr.orientation == "" {
		hdr.orientation = "MULTIPLEXED"
	}
	if hdr.orientation != "MULTIPLEXED" && hdr.orientation != "VECTORIZED" {
		return vhdr{}, fmt.Errorf("brainvision: orientation %q unsupported", hdr.orientation)
	}
	if hdr.format != "IEEE_FLOAT_32" && hdr.format != "INT_16" {
		return vhdr{}, fmt.Errorf("brainvision: binary format %q unsupported", hdr.format)
	}
	interval, err := strconv.ParseFloat(ini.get("Common Infos", "SamplingInterval"), 64)
	if err != nil || interval <= 0 {
		return vhdr{}, fmt.Errorf("brainvision: sampling interval %q", ini.get("Common Infos", "SamplingInterval"))
	}
	hdr.rate = 1e6 / interval

	count, err := strconv.Atoi(ini.get("Common Infos", "NumberOfChannels"))
	if err != nil || count <= 0 {
		return vhdr{}, fmt.Errorf("brainvision: channel count %q", ini.get("Common Infos", "NumberOfChannels"))
	}
	for i := 1; i <= count; i++ {
		entry := ini.get("Channel Infos", "Ch"+strconv.Itoa(i))
		if entry == "" {
			return vhdr{}, fmt.Errorf("brainvision: Ch%d missing", i)
		}
		ch, err := parseChannelInfo(entry)
		if err != nil {
			return vhdr{}, fmt.Errorf("brainvision: Ch%d: %w", i, err)
		}
		hdr.channels = append(hdr.channels, ch)
	}

	if strings.EqualFold(ini.get("Common Infos", "SegmentationType"), "MARKERBASED") {
		hdr.segmented = true
		if points := ini.get("Common Infos", "SegmentDataPoints"); points != "" {
			if hdr.segmentLen, err = strconv.Atoi(points); err != nil || hdr.segmentLen < 0 {
				return vhdr{}, fmt.Errorf("brainvision: segment data points %q", points)
			}
		}
	}
	return hdr, nil
}

// parseChannelInfo reads "name,reference,resolution,unit"; commas inside the
// name are escaped as \1.
func parseChannelInfo(entry string) (vhdrChannel, error) {
	parts := strings.Split(entry, ",")
	name := strings.ReplaceAll(strings.TrimSpace(parts[0]), `\1`, ",")
	if name == "" {
		return vhdrChannel{}, errors.New("empty channel name")
	}
	ch := vhdrChannel{name: name, resolution: 1}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		res, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return vhdrChannel{}, fmt.Errorf("resolution %q: %w", parts[2], err)
		}
		ch.resolution = res
	}
	unit := ""
	if len(parts) > 3 {
		unit = parts[3]
	}
	scale, err := unitScale(unit)
	if err != nil {
		return vhdrChannel{}, err
	}
	ch.scale = scale
	return ch, nil
}

func decodeBrainVisionData(hdr vhdr, payload []byte) ([][]float64, error) {
	width := 4
	if hdr.format == "INT_16" {
		width = 2
	}
	nch := len(hdr.channels)
	frame := width * nch
	if len(payload) == 0 || len(payload)%frame != 0 {
		return nil, fmt.Errorf("brainvision: data size %d is not a multiple of %d-byte frames", len(payload), frame)
	}
	n := len(payload) / frame
	read := func(i int) float64 {
		b := payload[i*width:]
		if width == 2 {
			return float64(int16(binary.LittleEndian.Uint16(b)))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	data := make([][]float64, nch)
	for c, ch := range hdr.channels {
		row := make([]float64, n)
		factor := ch.resolution * ch.scale
		for t := range row {
			idx := t*nch + c
			if hdr.orientation == "VECTORIZED" {
				idx = c*n + t
			}
			row[t] = read(idx) * factor
		}
		data[c] = row
	}
	return data, nil
}

// parseVMRK reads marker entries "type,description,position,size,channel".
// Positions are 1-based samples. Entries typed "Bad" name a bad channel in
// their description field.
func parseVMRK(text string, rate float64) ([]eeg.Annotation, []string, error) {
	ini := parseINI(text)
	sec, ok := ini["marker infos"]
	if !ok {
		return nil, nil, nil
	}
	var anns []eeg.Annotation
	var bads []string
	for _, key := range sec.keys {
		if !strings.HasPrefix(strings.ToLower(key), "mk") {
			continue
		}
		parts := strings.Split(sec.values[key], ",")
		if len(parts) < 3 {
			return nil, nil, fmt.Errorf("brainvision marker %s: %q", key, sec.values[key])
		}
		kind := strings.TrimSpace(parts[0])
		desc := strings.ReplaceAll(strings.TrimSpace(parts[1]), `\1`, ",")
		pos, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, nil, fmt.Errorf("brainvision marker %s position: %w", key, err)
		}
		size := 1
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			if size, err = strconv.Atoi(strings.TrimSpace(parts[3])); err != nil {
				return nil, nil, fmt.Errorf("brainvision marker %s size: %w", key, err)
			}
		}
		if strings.EqualFold(kind, "Bad") && desc != "" {
			bads = append(bads, desc)
			continue
		}
		label := kind
		if desc != "" {
			label = kind + "/" + desc
		}
		duration := 0.0
		if size > 1 {
			duration = float64(size) / rate
		}
		anns = append(anns, eeg.Annotation{
			Onset:       float64(pos-1) / rate,
			Duration:    duration,
			Description: label,
		})
	}
	return anns, bads, nil
}
