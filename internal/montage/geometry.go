package montage

import (
	"math"
	"strconv"

	"eegprep/internal/eeg"
)

// HeadRadius is the sphere radius (metres) of the built-in templates.
const HeadRadius = 0.095

// electrodeRow places one anterior-posterior row of the 10-10 system.
// theta is the polar angle of the midline electrode from Cz, positive toward
// the nose. azimuth is where the row's lateral electrode sits on the
// theta=72° ring, measured from the nose toward the left ear.
type electrodeRow struct {
	prefix  string
	theta   float64
	azimuth float64
	// lateral overrides the prefix of the n=7/8 electrodes (T7, FT7, TP7).
	lateral string
	// ring rows have no midline interpolation; the electrode sits on the ring.
	ring bool
}

var rows = []electrodeRow{
	{prefix: "Fp", theta: 72, azimuth: 18, ring: true},
	{prefix: "AF", theta: 54, azimuth: 36},
	{prefix: "F", theta: 36, azimuth: 54},
	{prefix: "FC", theta: 18, azimuth: 72, lateral: "FT"},
	{prefix: "C", theta: 0, azimuth: 90, lateral: "T"},
	{prefix: "CP", theta: -18, azimuth: 108, lateral: "TP"},
	{prefix: "P", theta: -36, azimuth: 126},
	{prefix: "PO", theta: -54, azimuth: 144},
	{prefix: "O", theta: -72, azimuth: 162, ring: true},
}

type vec [3]float64

func deg(v float64) float64 { return v * math.Pi / 180 }

func midline(theta float64) vec {
	t := deg(theta)
	return vec{0, math.Sin(t), math.Cos(t)}
}

func ring(azimuth float64) vec {
	t, a := deg(72), deg(azimuth)
	return vec{-math.Sin(t) * math.Sin(a), math.Sin(t) * math.Cos(a), math.Cos(t)}
}

func slerp(a, b vec, t float64) vec {
	dot := a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
	omega := math.Acos(math.Max(-1, math.Min(1, dot)))
	if omega < 1e-12 {
		return a
	}
	s := math.Sin(omega)
	wa, wb := math.Sin((1-t)*omega)/s, math.Sin(t*omega)/s
	return vec{wa*a[0] + wb*b[0], wa*a[1] + wb*b[1], wa*a[2] + wb*b[2]}
}

// idealized10_10 computes every electrode reachable by the row layout:
// midline "z" electrodes plus columns 1-8 on both hemispheres.
func idealized10_10() map[string]eeg.Position {
	out := make(map[string]eeg.Position)
	put := func(name string, v vec) {
		out[name] = eeg.Position{X: v[0] * HeadRadius, Y: v[1] * HeadRadius, Z: v[2] * HeadRadius}
	}
	for _, r := range rows {
		mid := midline(r.theta)
		put(r.prefix+"z", mid)
		left := ring(r.azimuth)
		if r.ring {
			put(r.prefix+"1", left)
			put(r.prefix+"2", mirror(left))
			continue
		}
		for n := 1; n <= 8; n++ {
			step := (n + 1) / 2
			v := slerp(mid, left, float64(step)/4)
			if n%2 == 0 {
				v = mirror(v)
			}
			prefix := r.prefix
			if n >= 7 && r.lateral != "" {
				prefix = r.lateral
			}
			put(prefix+strconv.Itoa(n), v)
		}
	}
	return out
}

func mirror(v vec) vec { return vec{-v[0], v[1], v[2]} }

// tenTwenty lists the electrodes of the original 10-20 system.
var tenTwenty = []string{
	"Fp1", "Fpz", "Fp2",
	"F7", "F3", "Fz", "F4", "F8",
	"T7", "C3", "Cz", "C4", "T8",
	"P7", "P3", "Pz", "P4", "P8",
	"O1", "Oz", "O2",
}

func subset(all map[string]eeg.Position, names []string) map[string]eeg.Position {
	out := make(map[string]eeg.Position, len(names))
	for _, n := range names {
		if p, ok := all[n]; ok {
			out[n] = p
		}
	}
	return out
}
