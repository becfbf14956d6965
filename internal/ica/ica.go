// Package ica fits a FastICA decomposition (symmetric, logcosh) to a
// recording and optionally subtracts selected components.
package ica

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"eegprep/internal/config"
	"eegprep/internal/dsp"
	"eegprep/internal/eeg"
	"eegprep/internal/logging"
	"eegprep/internal/services"
)

// rankTolerance drops principal components below this fraction of the largest
// eigenvalue. Average-referenced or interpolated data are rank deficient.
const rankTolerance = 1e-10

// Options controls a fit.
type Options struct {
	Components int
	MaxIter    int
	Tolerance  float64
	Seed       uint64
	Decim      int
}

// OptionsFrom converts configuration to fit options.
func OptionsFrom(cfg config.ICA) Options {
	return Options{
		Components: cfg.Components,
		MaxIter:    cfg.MaxIter,
		Tolerance:  cfg.Tolerance,
		Seed:       cfg.Seed,
		Decim:      cfg.Decim,
	}
}

// Decomposition maps channels to components and back.
type Decomposition struct {
	// Unmixing is components × channels.
	Unmixing *mat.Dense
	// Mixing is channels × components.
	Mixing     *mat.Dense
	Mean       []float64
	Iterations int
	Converged  bool
}

// Components returns the fitted component count.
func (d *Decomposition) Components() int {
	r, _ := d.Unmixing.Dims()
	return r
}

// Fitter runs FastICA with fixed options.
type Fitter struct {
	opts   Options
	pool   dsp.Pool
	logger *slog.Logger
}

// NewFitter builds a fitter.
func NewFitter(opts Options, pool dsp.Pool, logger *slog.Logger) *Fitter {
	if opts.Decim <= 0 {
		opts.Decim = 1
	}
	return &Fitter{opts: opts, pool: pool, logger: logging.NewComponentLogger(logger, "ica")}
}

// Fit decomposes rec without modifying it.
func (f *Fitter) Fit(ctx context.Context, rec *eeg.Recording) (*Decomposition, error) {
	logger := logging.WithContext(ctx, f.logger)
	nch := len(rec.Data)
	fitData := decimate(rec.Data, f.opts.Decim)
	n := 0
	if nch > 0 {
		n = len(fitData[0])
	}
	if nch == 0 || n <= f.opts.Components || n < 2 {
		return nil, services.Wrap(services.ErrInsufficientSamples, "ica", "fit",
			fmt.Sprintf("%d fitting samples for %d components", n, f.opts.Components), nil)
	}

	mean := make([]float64, nch)
	centered := mat.NewDense(nch, n, nil)
	for c, row := range fitData {
		mean[c] = floats.Sum(row) / float64(n)
		dst := centered.RawRowView(c)
		for i, v := range row {
			dst[i] = v - mean[c]
		}
	}

	cov, err := covariance(ctx, centered, f.pool)
	if err != nil {
		return nil, err
	}
	whitening, dewhitening, k, err := whiten(cov, f.opts.Components)
	if err != nil {
		return nil, services.Wrap(services.ErrInsufficientSamples, "ica", "whiten", "", err)
	}
	if k < f.opts.Components {
		logger.Info("ica component count reduced to data rank",
			logging.Int("requested", f.opts.Components),
			logging.Int("components", k),
		)
	}

	var z mat.Dense
	z.Mul(whitening, centered)

	w, iterations, converged := fastICA(&z, k, f.opts)
	if !converged {
		logging.WarnWithContext(logger, "ica did not converge", "ica_not_converged",
			logging.Int("iterations", iterations),
			logging.Float64("tolerance", f.opts.Tolerance),
			logging.String(logging.FieldImpact, "components may be less independent"),
			logging.String(logging.FieldErrorHint, "raise ica.max_iter"),
		)
	}

	var unmixing, mixing mat.Dense
	unmixing.Mul(w, whitening)
	mixing.Mul(dewhitening, w.T())
	logger.Debug("ica fitted",
		logging.Int("components", k),
		logging.Int("iterations", iterations),
		logging.Bool("converged", converged),
	)
	return &Decomposition{
		Unmixing:   &unmixing,
		Mixing:     &mixing,
		Mean:       mean,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

func decimate(data [][]float64, step int) [][]float64 {
	if step <= 1 {
		return data
	}
	out := make([][]float64, len(data))
	for c, row := range data {
		dec := make([]float64, 0, (len(row)+step-1)/step)
		for i := 0; i < len(row); i += step {
			dec = append(dec, row[i])
		}
		out[c] = dec
	}
	return out
}

// covariance computes X Xᵀ / n with each worker filling disjoint rows.
func covariance(ctx context.Context, x *mat.Dense, pool dsp.Pool) (*mat.SymDense, error) {
	r, n := x.Dims()
	cov := mat.NewSymDense(r, nil)
	rows := make([][]float64, r)
	err := pool.Each(ctx, r, func(_ context.Context, i int) error {
		row := make([]float64, r)
		xi := x.RawRowView(i)
		for j := i; j < r; j++ {
			row[j] = floats.Dot(xi, x.RawRowView(j)) / float64(n)
		}
		rows[i] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			cov.SetSym(i, j, rows[i][j])
		}
	}
	return cov, nil
}

// whiten returns the k × channels whitening matrix K = D^-1/2 Eᵀ of the
// leading k eigenpairs, its channels × k pseudo-inverse E D^1/2, and k.
func whiten(cov *mat.SymDense, components int) (*mat.Dense, *mat.Dense, int, error) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, nil, 0, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case values[a] > values[b]:
			return -1
		case values[a] < values[b]:
			return 1
		}
		return 0
	})
	top := values[order[0]]
	if top <= 0 {
		return nil, nil, 0, fmt.Errorf("signal has no variance")
	}
	k := 0
	for _, idx := range order {
		if k == components || values[idx] <= rankTolerance*top {
			break
		}
		k++
	}

	nch := len(values)
	white := mat.NewDense(k, nch, nil)
	dewhite := mat.NewDense(nch, k, nil)
	for row := 0; row < k; row++ {
		idx := order[row]
		s := math.Sqrt(values[idx])
		for c := 0; c < nch; c++ {
			v := vectors.At(c, idx)
			white.Set(row, c, v/s)
			dewhite.Set(c, row, v*s)
		}
	}
	return white, dewhite, k, nil
}

// fastICA runs the symmetric fixed-point iteration with g = tanh.
func fastICA(z *mat.Dense, k int, opts Options) (*mat.Dense, int, bool) {
	_, n := z.Dims()
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(opts.Seed, opts.Seed)}
	init := make([]float64, k*k)
	for i := range init {
		init[i] = normal.Rand()
	}
	w := symDecorrelate(mat.NewDense(k, k, init))

	var wz, gz, next mat.Dense
	gPrimeMean := make([]float64, k)
	for iter := 1; iter <= opts.MaxIter; iter++ {
		wz.Mul(w, z)
		gz.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &wz)
		for i := 0; i < k; i++ {
			var sum float64
			for _, g := range gz.RawRowView(i) {
				sum += 1 - g*g
			}
			gPrimeMean[i] = sum / float64(n)
		}
		next.Mul(&gz, z.T())
		next.Scale(1/float64(n), &next)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				next.Set(i, j, next.At(i, j)-gPrimeMean[i]*w.At(i, j))
			}
		}
		updated := symDecorrelate(&next)

		var lim float64
		for i := 0; i < k; i++ {
			d := floats.Dot(updated.RawRowView(i), w.RawRowView(i))
			lim = math.Max(lim, math.Abs(math.Abs(d)-1))
		}
		w = updated
		if lim < opts.Tolerance {
			return w, iter, true
		}
	}
	return w, opts.MaxIter, false
}

// symDecorrelate returns (W Wᵀ)^-1/2 W.
func symDecorrelate(w *mat.Dense) *mat.Dense {
	k, _ := w.Dims()
	var wwt mat.Dense
	wwt.Mul(w, w.T())
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, (wwt.At(i, j)+wwt.At(j, i))/2)
		}
	}
	var eig mat.EigenSym
	eig.Factorize(sym, true)
	values := eig.Values(nil)
	var e mat.Dense
	eig.VectorsTo(&e)
	d := mat.NewDiagDense(k, nil)
	for i, v := range values {
		d.SetDiag(i, 1/math.Sqrt(math.Max(v, 1e-300)))
	}
	var tmp, inv, out mat.Dense
	tmp.Mul(&e, d)
	inv.Mul(&tmp, e.T())
	out.Mul(&inv, w)
	return &out
}

// Sources projects rec onto the components.
func (d *Decomposition) Sources(rec *eeg.Recording) *mat.Dense {
	nch := len(rec.Data)
	n := rec.Samples()
	x := mat.NewDense(nch, n, nil)
	for c, row := range rec.Data {
		dst := x.RawRowView(c)
		for i, v := range row {
			dst[i] = v - d.Mean[c]
		}
	}
	var s mat.Dense
	s.Mul(d.Unmixing, x)
	return &s
}

// Remove subtracts the back-projection of the excluded components from rec.
// An empty exclude list leaves rec untouched.
func (d *Decomposition) Remove(rec *eeg.Recording, exclude []int) error {
	if len(exclude) == 0 {
		return nil
	}
	k := d.Components()
	for _, idx := range exclude {
		if idx < 0 || idx >= k {
			return services.Wrap(services.ErrConfiguration, "ica", "remove", fmt.Sprintf("component %d out of range [0,%d)", idx, k), nil)
		}
	}
	sources := d.Sources(rec)
	for c, row := range rec.Data {
		for _, idx := range exclude {
			floats.AddScaled(row, -d.Mixing.At(c, idx), sources.RawRowView(idx))
		}
	}
	return nil
}
