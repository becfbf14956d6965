package montage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"eegprep/internal/channels"
	"eegprep/internal/eeg"
)

const (
	Standard1010 = "standard_1010"
	Standard1020 = "standard_1020"
	Sidecar      = "sidecar"

	sidecarFile = "electrodes.tsv"
)

// Template supplies positions for a set of channel names.
type Template interface {
	Name() string
	// Positions returns a position for every requested channel or an error
	// naming the ones it cannot place.
	Positions(dir string, names []string) (map[string]eeg.Position, error)
}

// Resolve maps a configured template name to a Template.
func Resolve(name string) Template {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Standard1010:
		return builtin{name: Standard1010, positions: idealized10_10()}
	case Standard1020:
		return builtin{name: Standard1020, positions: subset(idealized10_10(), tenTwenty)}
	case Sidecar:
		return fileTemplate{name: Sidecar, relative: sidecarFile}
	default:
		return fileTemplate{name: name, path: name}
	}
}

type builtin struct {
	name      string
	positions map[string]eeg.Position
}

func (b builtin) Name() string { return b.name }

func (b builtin) Positions(_ string, names []string) (map[string]eeg.Position, error) {
	return pick(b.name, foldKeys(b.positions), names)
}

type fileTemplate struct {
	name     string
	path     string
	relative string
}

func (f fileTemplate) Name() string { return f.name }

func (f fileTemplate) Positions(dir string, names []string) (map[string]eeg.Position, error) {
	path := f.path
	if f.relative != "" {
		path = filepath.Join(dir, f.relative)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	defer file.Close()
	comma := '\t'
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		comma = ','
	}
	table, err := ReadPositions(file, comma)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return pick(f.name, table, names)
}

// ReadPositions parses a "name x y z" table with a header row. Column order is
// taken from the header; extra columns are ignored and "n/a" rows skipped.
// Keys of the result are case-folded names.
func ReadPositions(r io.Reader, comma rune) (map[string]eeg.Position, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range []string{"name", "x", "y", "z"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("missing %q column", want)
		}
	}

	out := map[string]eeg.Position{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(key string) string {
			if i := col[key]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		name := get("name")
		if name == "" || strings.EqualFold(get("x"), "n/a") {
			continue
		}
		var xyz [3]float64
		for i, key := range []string{"x", "y", "z"} {
			if xyz[i], err = strconv.ParseFloat(get(key), 64); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, key, err)
			}
		}
		out[channels.Fold(name)] = eeg.Position{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	if len(out) == 0 {
		return nil, errors.New("no positions")
	}
	return out, nil
}

func foldKeys(in map[string]eeg.Position) map[string]eeg.Position {
	out := make(map[string]eeg.Position, len(in))
	for k, v := range in {
		out[channels.Fold(k)] = v
	}
	return out
}

func pick(template string, folded map[string]eeg.Position, names []string) (map[string]eeg.Position, error) {
	out := make(map[string]eeg.Position, len(names))
	var missing []string
	for _, name := range names {
		p, ok := folded[channels.Fold(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s does not cover %d channels: %s", template, len(missing), strings.Join(missing, ","))
	}
	return out, nil
}
