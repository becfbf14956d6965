// Package channels reduces a recording to a fixed, ordered channel set.
package channels

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"eegprep/internal/eeg"
	"eegprep/internal/services"
)

var folder = cases.Fold()

// Fold returns the case-folded key used to match channel names.
func Fold(name string) string {
	return folder.String(strings.TrimSpace(name))
}

// Selection reports what Canonicalize changed.
type Selection struct {
	Dropped []string
	Renamed map[string]string
}

// Canonicalize restricts rec to set, in set order, renaming case variants to
// the canonical spelling. Bad-channel and position entries follow the rename;
// entries for dropped channels are discarded.
func Canonicalize(rec *eeg.Recording, set []string) (Selection, error) {
	index := make(map[string]int, len(rec.Channels))
	for i, name := range rec.Channels {
		key := Fold(name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	var missing []string
	picked := make([]int, len(set))
	for i, name := range set {
		j, ok := index[Fold(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		picked[i] = j
	}
	if len(missing) > 0 {
		return Selection{}, services.Wrap(
			services.ErrMissingChannels,
			"canonicalize",
			"select channels",
			fmt.Sprintf("%d of %d canonical channels absent: %s", len(missing), len(set), strings.Join(missing, ",")),
			nil,
		)
	}

	sel := Selection{Renamed: map[string]string{}}
	keep := make(map[int]bool, len(set))
	rename := make(map[string]string, len(set))
	data := make([][]float64, len(set))
	for i, j := range picked {
		keep[j] = true
		data[i] = rec.Data[j]
		raw := rec.Channels[j]
		rename[raw] = set[i]
		if raw != set[i] {
			sel.Renamed[raw] = set[i]
		}
	}
	for i, name := range rec.Channels {
		if !keep[i] {
			sel.Dropped = append(sel.Dropped, name)
		}
	}

	var bads []string
	for _, bad := range rec.Bads {
		if canonical, ok := rename[bad]; ok {
			bads = append(bads, canonical)
			continue
		}
		// Bad lists are sometimes written in a different case than labels.
		if j, ok := index[Fold(bad)]; ok && keep[j] {
			bads = append(bads, rename[rec.Channels[j]])
		}
	}
	var positions map[string]eeg.Position
	if len(rec.Positions) > 0 {
		positions = make(map[string]eeg.Position, len(set))
		for raw, pos := range rec.Positions {
			if canonical, ok := rename[raw]; ok {
				positions[canonical] = pos
			}
		}
	}

	rec.Channels = append([]string(nil), set...)
	rec.Data = data
	rec.Bads = dedupe(bads)
	rec.Positions = positions
	return sel, nil
}

// Coverage returns the members of set present in names, and those absent.
func Coverage(names, set []string) (present, missing []string) {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[Fold(n)] = true
	}
	for _, s := range set {
		if have[Fold(s)] {
			present = append(present, s)
		} else {
			missing = append(missing, s)
		}
	}
	return present, missing
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
