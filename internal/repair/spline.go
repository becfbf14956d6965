package repair

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"eegprep/internal/eeg"
)

const (
	legendreTerms = 50
	stiffness     = 4
	regularize    = 1e-5
	pinvRcond     = 1e-15
)

var legendreFactors = func() []float64 {
	f := make([]float64, legendreTerms+1)
	for n := 1; n <= legendreTerms; n++ {
		nn := float64(n)
		f[n] = (2*nn + 1) / (math.Pow(nn, stiffness) * math.Pow(nn+1, stiffness) * 4 * math.Pi)
	}
	return f
}()

// splineG evaluates the Legendre series g(x) = Σ f_n P_n(x).
func splineG(x float64) float64 {
	p0, p1 := 1.0, x
	sum := legendreFactors[1] * p1
	for n := 1; n < legendreTerms; n++ {
		nn := float64(n)
		p2 := ((2*nn+1)*x*p1 - nn*p0) / (nn + 1)
		sum += legendreFactors[n+1] * p2
		p0, p1 = p1, p2
	}
	return sum
}

func unit(p eeg.Position) ([3]float64, error) {
	r := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	if r == 0 || math.IsNaN(r) {
		return [3]float64{}, errors.New("electrode at origin")
	}
	return [3]float64{p.X / r, p.Y / r, p.Z / r}, nil
}

func cosines(a, b [][3]float64) *mat.Dense {
	out := mat.NewDense(len(a), len(b), nil)
	for i, u := range a {
		for j, v := range b {
			c := u[0]*v[0] + u[1]*v[1] + u[2]*v[2]
			out.Set(i, j, math.Max(-1, math.Min(1, c)))
		}
	}
	return out
}

// InterpolationMatrix returns the len(to) × len(from) matrix mapping signals
// at the from electrodes onto the to electrodes.
func InterpolationMatrix(from, to []eeg.Position) (*mat.Dense, error) {
	if len(from) == 0 || len(to) == 0 {
		return nil, errors.New("interpolation needs source and target electrodes")
	}
	uf := make([][3]float64, len(from))
	for i, p := range from {
		u, err := unit(p)
		if err != nil {
			return nil, fmt.Errorf("source electrode %d: %w", i, err)
		}
		uf[i] = u
	}
	ut := make([][3]float64, len(to))
	for i, p := range to {
		u, err := unit(p)
		if err != nil {
			return nil, fmt.Errorf("target electrode %d: %w", i, err)
		}
		ut[i] = u
	}

	n := len(from)
	gFrom := cosines(uf, uf)
	gToFrom := cosines(ut, uf)
	gFrom.Apply(func(_, _ int, v float64) float64 { return splineG(v) }, gFrom)
	gToFrom.Apply(func(_, _ int, v float64) float64 { return splineG(v) }, gToFrom)

	// Augmented system [[G + αI, 1], [1ᵀ, 0]].
	c := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, gFrom.At(i, j))
		}
		c.Set(i, i, c.At(i, i)+regularize)
		c.Set(i, n, 1)
		c.Set(n, i, 1)
	}
	cInv, err := pinv(c)
	if err != nil {
		return nil, err
	}

	lhs := mat.NewDense(len(to), n+1, nil)
	for i := range to {
		for j := 0; j < n; j++ {
			lhs.Set(i, j, gToFrom.At(i, j))
		}
		lhs.Set(i, n, 1)
	}
	var out mat.Dense
	out.Mul(lhs, cInv.Slice(0, n+1, 0, n))
	return &out, nil
}

// pinv computes the Moore-Penrose pseudo-inverse through a thin SVD.
func pinv(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("svd did not converge")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := pinvRcond * values[0]
	r, _ := a.Dims()
	inv := mat.NewDiagDense(len(values), nil)
	for i, s := range values {
		if s > cutoff {
			inv.SetDiag(i, 1/s)
		}
	}
	var tmp, out mat.Dense
	tmp.Mul(&v, inv)
	out.Mul(&tmp, u.T())
	if rows, _ := out.Dims(); rows != r {
		return nil, fmt.Errorf("pseudo-inverse has %d rows, expected %d", rows, r)
	}
	return &out, nil
}
