// Package qcplot renders diagnostic plots of processed epoch tensors.
package qcplot

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"eegprep/internal/eeg"
)

const (
	histogramBins = 40
	microvolts    = 1e6
)

var thresholdColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}

// EpochPeakToPeak returns each epoch's worst-channel peak-to-peak amplitude
// in volts.
func EpochPeakToPeak(set *eeg.EpochSet) []float64 {
	if set == nil {
		return nil
	}
	out := make([]float64, len(set.Data))
	for i, epoch := range set.Data {
		worst := 0.0
		for _, ch := range epoch {
			if len(ch) == 0 {
				continue
			}
			if ptp := floats.Max(ch) - floats.Min(ch); ptp > worst {
				worst = ptp
			}
		}
		out[i] = worst
	}
	return out
}

// PeakToPeak writes a histogram of per-epoch peak-to-peak amplitude (µV) to
// path with a vertical marker at threshold. The image format follows the file
// extension.
func PeakToPeak(set *eeg.EpochSet, threshold float64, path string) error {
	if set.Empty() {
		return errors.New("qcplot: epoch set is empty")
	}
	values := EpochPeakToPeak(set)
	floats.Scale(microvolts, values)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Epoch peak-to-peak (%d epochs, %s)", len(values), set.Status)
	p.X.Label.Text = "Peak-to-peak (µV)"
	p.Y.Label.Text = "Epochs"

	hist, err := plotter.NewHist(plotter.Values(values), histogramBins)
	if err != nil {
		return fmt.Errorf("qcplot: histogram: %w", err)
	}
	p.Add(hist)

	if threshold > 0 {
		tallest := 0.0
		for _, bin := range hist.Bins {
			tallest = max(tallest, bin.Weight)
		}
		x := threshold * microvolts
		marker, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: tallest}})
		if err != nil {
			return fmt.Errorf("qcplot: threshold line: %w", err)
		}
		marker.Color = thresholdColor
		marker.Width = vg.Points(1.5)
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("threshold %.4g µV", x), marker)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("qcplot: save %s: %w", path, err)
	}
	return nil
}
