// Package enkf implements an ensemble Kalman filter with perturbed
// observations and an ensemble Rauch-Tung-Striebel smoother.
package enkf

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"DSGE_OBC_Project/application/internal/linalg"
)

// ErrNotStored is returned when smoothing a run that kept no ensembles.
var ErrNotStored = errors.New("enkf: forward ensembles were not stored")

// Filter holds the filter configuration. The covariances are only changed
// through the setters; a run never mutates the filter, so concurrent runs on
// one Filter are safe as long as no setter is called meanwhile.
type Filter struct {
	dimX, dimZ, n int

	x0      []float64
	p, q, r *mat.SymDense

	// Fx propagates one state, Hx maps a state to the observables.
	Fx func(x []float64) []float64
	Hx func(x []float64) []float64

	seed uint64
	log  *zap.Logger
}

// New returns a filter with n members, identity covariances and a zero
// initial mean.
func New(dimX, dimZ, n int, fx, hx func([]float64) []float64, seed uint64, log *zap.Logger) (*Filter, error) {
	if dimX < 1 || dimZ < 1 {
		return nil, fmt.Errorf("enkf: invalid dimensions dim_x=%d dim_z=%d", dimX, dimZ)
	}
	if n < 2 {
		return nil, fmt.Errorf("enkf: ensemble size %d, need at least 2", n)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{
		dimX: dimX,
		dimZ: dimZ,
		n:    n,
		x0:   make([]float64, dimX),
		p:    identity(dimX),
		q:    identity(dimX),
		r:    identity(dimZ),
		Fx:   fx,
		Hx:   hx,
		seed: seed,
		log:  log,
	}, nil
}

func identity(n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

func clone(s mat.Symmetric) *mat.SymDense {
	c := mat.NewSymDense(s.SymmetricDim(), nil)
	c.CopySym(s)
	return c
}

// Dims returns the state and observation dimensions and the ensemble size.
func (f *Filter) Dims() (dimX, dimZ, n int) { return f.dimX, f.dimZ, f.n }

// P returns a copy of the initial state covariance.
func (f *Filter) P() *mat.SymDense { return clone(f.p) }

// Q returns a copy of the process noise covariance.
func (f *Filter) Q() *mat.SymDense { return clone(f.q) }

// R returns a copy of the observation noise covariance.
func (f *Filter) R() *mat.SymDense { return clone(f.r) }

// X0 returns a copy of the initial mean.
func (f *Filter) X0() []float64 { return append([]float64(nil), f.x0...) }

func (f *Filter) SetP(p mat.Symmetric) error {
	if p.SymmetricDim() != f.dimX {
		return fmt.Errorf("enkf: P is %d-dimensional, want %d", p.SymmetricDim(), f.dimX)
	}
	f.p = clone(p)
	return nil
}

func (f *Filter) SetQ(q mat.Symmetric) error {
	if q.SymmetricDim() != f.dimX {
		return fmt.Errorf("enkf: Q is %d-dimensional, want %d", q.SymmetricDim(), f.dimX)
	}
	f.q = clone(q)
	return nil
}

func (f *Filter) SetR(r mat.Symmetric) error {
	if r.SymmetricDim() != f.dimZ {
		return fmt.Errorf("enkf: R is %d-dimensional, want %d", r.SymmetricDim(), f.dimZ)
	}
	f.r = clone(r)
	return nil
}

func (f *Filter) SetX0(x0 []float64) error {
	if len(x0) != f.dimX {
		return fmt.Errorf("enkf: x0 has %d entries, want %d", len(x0), f.dimX)
	}
	f.x0 = append([]float64(nil), x0...)
	return nil
}

// Clone returns an independent copy of the filter configuration.
func (f *Filter) Clone() *Filter {
	c := *f
	c.x0 = f.X0()
	c.p, c.q, c.r = f.P(), f.Q(), f.R()
	return &c
}

// Result is the output of BatchFilter.
type Result struct {
	// Means is T x dim_x, one filtered mean per observation.
	Means *mat.Dense
	Covs  []*mat.SymDense
	// LogLik is the log likelihood of the observations, -Inf when the
	// innovation covariance degenerates.
	LogLik float64

	// prior[t] and post[t] are the n x dim_x ensembles before and after the
	// update at t.
	prior, post []*mat.Dense
}

// Stored reports whether the run kept its ensembles for smoothing.
func (r *Result) Stored() bool { return r.post != nil }

// Options control BatchFilter.
type Options struct {
	// Store keeps the ensembles for RTSSmoother.
	Store bool
}

// LogLik filters Z without keeping the ensembles and returns the log likelihood.
func (f *Filter) LogLik(Z mat.Matrix) (float64, error) {
	res, err := f.BatchFilter(Z, Options{})
	if err != nil {
		return math.Inf(-1), err
	}
	return res.LogLik, nil
}

// BatchFilter runs the filter over the T x dim_z observations Z. Rows with a
// missing (NaN) entry skip the update step.
func (f *Filter) BatchFilter(Z mat.Matrix, opts Options) (*Result, error) {
	st := time.Now()
	T, dz := Z.Dims()
	if dz != f.dimZ {
		return nil, fmt.Errorf("enkf: observations have %d columns, want %d", dz, f.dimZ)
	}
	if f.Fx == nil || f.Hx == nil {
		return nil, fmt.Errorf("enkf: transition or observation function not set")
	}
	rng := rand.New(rand.NewPCG(f.seed, 0))

	sqrtQ, err := psdSqrt(f.q)
	if err != nil {
		return nil, err
	}
	sqrtR, err := psdSqrt(f.r)
	if err != nil {
		return nil, err
	}
	sqrtP, err := psdSqrt(f.p)
	if err != nil {
		return nil, err
	}

	// 1. Initial ensemble X ~ N(x0, P)
	X := mat.NewDense(f.n, f.dimX, nil)
	for i := 0; i < f.n; i++ {
		row := noise(rng, sqrtP)
		floats.Add(row, f.x0)
		X.SetRow(i, row)
	}

	res := &Result{
		Means: mat.NewDense(T, f.dimX, nil),
		Covs:  make([]*mat.SymDense, T),
	}
	if opts.Store {
		res.prior = make([]*mat.Dense, T)
		res.post = make([]*mat.Dense, T)
	}

	z := make([]float64, f.dimZ)
	for t := 0; t < T; t++ {
		// 2. Predict
		for i := 0; i < f.n; i++ {
			x := f.Fx(X.RawRowView(i))
			floats.Add(x, noise(rng, sqrtQ))
			X.SetRow(i, x)
		}
		if opts.Store {
			res.prior[t] = mat.DenseCopyOf(X)
		}

		// 3. Update
		mat.Row(z, t, Z)
		if !hasNaN(z) {
			ll, err := f.update(X, z, sqrtR, rng)
			if err != nil {
				return nil, fmt.Errorf("enkf: step %d: %w", t, err)
			}
			res.LogLik += ll
		}
		if opts.Store {
			res.post[t] = mat.DenseCopyOf(X)
		}

		mean, cov := moments(X)
		res.Means.SetRow(t, mean)
		res.Covs[t] = cov
	}

	f.log.Debug("filtering done",
		zap.Int("periods", T),
		zap.Float64("loglik", res.LogLik),
		zap.Duration("elapsed", time.Since(st)))
	return res, nil
}

// update applies the perturbed observation update to X in place and returns
// the log density of z under the ensemble forecast.
func (f *Filter) update(X *mat.Dense, z []float64, sqrtR *mat.Dense, rng *rand.Rand) (float64, error) {
	Y := mat.NewDense(f.n, f.dimZ, nil)
	for i := 0; i < f.n; i++ {
		Y.SetRow(i, f.Hx(X.RawRowView(i)))
	}
	ym, _ := moments(Y)

	var Pyy mat.SymDense
	stat.CovarianceMatrix(&Pyy, Y, nil)
	Pyy.AddSym(&Pyy, f.r)
	Pxy := crossCov(X, Y)

	ll := math.Inf(-1)
	if dist, ok := distmv.NewNormal(ym, &Pyy, nil); ok {
		ll = dist.LogProb(z)
	}

	// K = Pxy Pyy^-1, from Pyy K^T = Pxy^T
	Kt, err := linalg.LeastSquares(&Pyy, Pxy.T())
	if err != nil {
		return 0, err
	}
	for i := 0; i < f.n; i++ {
		innov := noise(rng, sqrtR)
		floats.Add(innov, z)
		floats.Sub(innov, Y.RawRowView(i))
		x := X.RawRowView(i)
		floats.Add(x, linalg.MulVec(Kt.T(), innov))
	}
	return ll, nil
}

// RTSSmoother runs the ensemble smoother backwards over a stored run and
// returns the smoothed means and covariances.
func (f *Filter) RTSSmoother(res *Result) (*mat.Dense, []*mat.SymDense, error) {
	if !res.Stored() {
		return nil, nil, ErrNotStored
	}
	T := len(res.post)
	means := mat.NewDense(T, f.dimX, nil)
	covs := make([]*mat.SymDense, T)

	Xs := mat.DenseCopyOf(res.post[T-1])
	m, c := moments(Xs)
	means.SetRow(T-1, m)
	covs[T-1] = c

	for t := T - 2; t >= 0; t-- {
		Xa, Xf := res.post[t], res.prior[t+1]
		var Pf mat.SymDense
		stat.CovarianceMatrix(&Pf, Xf, nil)
		Paf := crossCov(Xa, Xf)

		// C = Paf Pf^-1, from Pf C^T = Paf^T
		Ct, err := linalg.LeastSquares(&Pf, Paf.T())
		if err != nil {
			return nil, nil, fmt.Errorf("enkf: smoother step %d: %w", t, err)
		}
		next := mat.NewDense(f.n, f.dimX, nil)
		d := make([]float64, f.dimX)
		for i := 0; i < f.n; i++ {
			floats.SubTo(d, Xs.RawRowView(i), Xf.RawRowView(i))
			x := linalg.MulVec(Ct.T(), d)
			floats.Add(x, Xa.RawRowView(i))
			next.SetRow(i, x)
		}
		Xs = next
		m, c := moments(Xs)
		means.SetRow(t, m)
		covs[t] = c
	}
	return means, covs, nil
}

// moments returns the column means and the covariance of the rows of X.
func moments(X *mat.Dense) ([]float64, *mat.SymDense) {
	n, d := X.Dims()
	mean := make([]float64, d)
	for i := 0; i < n; i++ {
		floats.Add(mean, X.RawRowView(i))
	}
	floats.Scale(1/float64(n), mean)
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, X, nil)
	return mean, &cov
}

// crossCov returns the sample cross covariance of the rows of X and Y.
func crossCov(X, Y *mat.Dense) *mat.Dense {
	n, _ := X.Dims()
	xc, yc := center(X), center(Y)
	var out mat.Dense
	out.Mul(xc.T(), yc)
	out.Scale(1/float64(n-1), &out)
	return &out
}

func center(X *mat.Dense) *mat.Dense {
	n, _ := X.Dims()
	mean, _ := moments(X)
	out := mat.DenseCopyOf(X)
	for i := 0; i < n; i++ {
		floats.Sub(out.RawRowView(i), mean)
	}
	return out
}

// psdSqrt returns S with S S^T = A, clipping negative eigenvalues to zero.
func psdSqrt(A *mat.SymDense) (*mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(A, true); !ok {
		return nil, fmt.Errorf("enkf: eigen decomposition of covariance failed")
	}
	vals := es.Values(nil)
	var V mat.Dense
	es.VectorsTo(&V)
	for j, v := range vals {
		s := math.Sqrt(math.Max(v, 0))
		for i := range vals {
			V.Set(i, j, V.At(i, j)*s)
		}
	}
	return &V, nil
}

// noise draws S xi with xi standard normal.
func noise(rng *rand.Rand, S *mat.Dense) []float64 {
	_, c := S.Dims()
	xi := make([]float64, c)
	for i := range xi {
		xi[i] = rng.NormFloat64()
	}
	return linalg.MulVec(S, xi)
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
