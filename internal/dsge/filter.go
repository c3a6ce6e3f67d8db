package dsge

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"DSGE_OBC_Project/application/internal/compiler"
	"DSGE_OBC_Project/application/internal/enkf"
	"DSGE_OBC_Project/application/internal/linalg"
	"DSGE_OBC_Project/application/internal/obc"
	"DSGE_OBC_Project/application/internal/sampling"
)

// Filter defaults.
const (
	EnsemblePerState = 5
	DefaultPScale    = 10
	DefaultObsScale  = 0.1
)

// FilterOptions configure CreateFilter. Zero values take the defaults.
type FilterOptions struct {
	// N is the ensemble size, EnsemblePerState per state if zero.
	N int
	// P is the initial state covariance, PScale times the identity if nil.
	P      *mat.SymDense
	PScale float64
	// R is the observation covariance. If nil the stored observation
	// covariance is used when there is one.
	R    *mat.SymDense
	Seed uint64
}

// CreateFilter attaches an ensemble Kalman filter over the compiled
// transition.
func (m *Model) CreateFilter(fo FilterOptions) (*Model, error) {
	next := *m
	next.fopts = fo
	f, err := next.buildFilter(fo, nil)
	if err != nil {
		return nil, err
	}
	next.filter = f
	return &next, nil
}

// buildFilter creates a filter for the current system. A cached covariance
// over the current states takes precedence over fo.P.
func (m *Model) buildFilter(fo FilterOptions, cache *compiler.Cache) (*enkf.Filter, error) {
	dimX := len(m.comp.VV)
	dimZ := len(m.def.Observables)
	n := fo.N
	if n == 0 {
		n = EnsemblePerState * dimX
	}
	f, err := enkf.New(dimX, dimZ, n, m.comp.Engine.Transition(obc.Fast), m.observe(), fo.Seed, m.log)
	if err != nil {
		return nil, err
	}

	scale := fo.PScale
	if scale == 0 {
		scale = DefaultPScale
	}
	switch {
	case cache != nil && cache.P.SymmetricDim() == dimX:
		// states new to the cache start from the default variance
		P := mat.NewSymDense(dimX, nil)
		P.CopySym(cache.P)
		for i := 0; i < dimX; i++ {
			if P.At(i, i) == 0 {
				P.SetSym(i, i, scale)
			}
		}
		err = f.SetP(P)
	case fo.P != nil && fo.P.SymmetricDim() == dimX:
		err = f.SetP(fo.P)
	default:
		P := mat.NewSymDense(dimX, nil)
		for i := 0; i < dimX; i++ {
			P.SetSym(i, i, scale)
		}
		err = f.SetP(P)
	}
	if err != nil {
		return nil, err
	}

	R := fo.R
	if R == nil {
		R = m.obsCov
	}
	if R != nil {
		if err := f.SetR(R); err != nil {
			return nil, err
		}
	}
	if err := f.SetQ(m.noiseCov()); err != nil {
		return nil, err
	}
	return f, nil
}

// noiseCov is the process covariance (SIG QQ)(SIG QQ)'.
func (m *Model) noiseCov() *mat.SymDense {
	var co mat.Dense
	co.Mul(m.comp.SIG, m.comp.Mats.QQ)
	n, _ := co.Dims()
	Q := mat.NewSymDense(n, nil)
	Q.SymOuterK(1, &co)
	return Q
}

// observe maps a state to the observables.
func (m *Model) observe() func([]float64) []float64 {
	Hx, DD := m.comp.Hx, m.comp.DD
	return func(v []float64) []float64 {
		z := linalg.MulVec(Hx, v)
		floats.Add(z, DD)
		return z
	}
}

// CreateObsCov estimates the observation covariance as scale times the
// variance of each observed series, DefaultObsScale if scale is zero. The
// result is also set on an attached filter.
func (m *Model) CreateObsCov(scale float64) (*Model, error) {
	if m.data == nil {
		return nil, ErrNoData
	}
	if scale == 0 {
		scale = DefaultObsScale
	}
	T, k := m.data.Dims()
	R := mat.NewSymDense(k, nil)
	for j := 0; j < k; j++ {
		col := make([]float64, 0, T)
		for t := 0; t < T; t++ {
			if v := m.data.At(t, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		_, v := stat.PopMeanVariance(col, nil)
		R.SetSym(j, j, scale*v)
	}

	next := *m
	next.obsCov = R
	if m.filter != nil {
		next.filter = m.filter.Clone()
		if err := next.filter.SetR(R); err != nil {
			return nil, err
		}
	}
	return &next, nil
}

// ObsCov returns the stored observation covariance, or nil.
func (m *Model) ObsCov() *mat.SymDense { return m.obsCov }

func (m *Model) canFilter() error {
	if m.filter == nil {
		return ErrNoFilter
	}
	if m.data == nil {
		return ErrNoData
	}
	return nil
}

// runner returns a private copy of the filter with the transition at q.
func (m *Model) runner(q obc.Quality) *enkf.Filter {
	f := m.filter.Clone()
	f.Fx = m.comp.Engine.Transition(q)
	return f
}

// LogLik is the log likelihood of the attached data. Trajectories are not
// kept.
func (m *Model) LogLik() (float64, error) {
	if err := m.canFilter(); err != nil {
		return math.Inf(-1), err
	}
	return m.runner(obc.Fast).LogLik(m.data)
}

// Filtered holds filtered or smoothed state estimates over the data.
type Filtered struct {
	Means    *mat.Dense
	Covs     []*mat.SymDense
	LogLik   float64
	Smoothed bool
}

// RunFilter filters the data and optionally runs the smoother over it.
func (m *Model) RunFilter(smooth bool) (*Filtered, error) {
	if err := m.canFilter(); err != nil {
		return nil, err
	}
	f := m.runner(obc.Brute)
	res, err := f.BatchFilter(m.data, enkf.Options{Store: smooth})
	if err != nil {
		return nil, err
	}
	out := &Filtered{Means: res.Means, Covs: res.Covs, LogLik: res.LogLik}
	if smooth {
		means, covs, err := f.RTSSmoother(res)
		if err != nil {
			return nil, err
		}
		out.Means, out.Covs, out.Smoothed = means, covs, true
	}
	return out, nil
}

// ExtractOptions control Extract.
type ExtractOptions struct {
	// ConvergedOnly fails with ErrNotConverged instead of returning a path
	// for which a regime could not be found in some period.
	ConvergedOnly bool
}

// Extraction is a state path consistent with the constrained transition.
type Extraction struct {
	// Means is T x dim_v, Residuals is T x n_shocks.
	Means *mat.Dense
	// Covs are the smoother covariances. They are not recomputed for the
	// re-simulated Means.
	Covs      []*mat.SymDense
	Residuals *mat.Dense
	// Fit is the Euclidean distance between the smoothed and the
	// reconstructed state of each period.
	Fit       []float64
	Converged bool
}

// Extract smooths the data and then recovers the shocks period by period,
// re-simulating the path through the constrained transition so that it obeys
// the constraint exactly.
func (m *Model) Extract(eo ExtractOptions) (*Extraction, error) {
	sm, err := m.RunFilter(true)
	if err != nil {
		return nil, err
	}
	T, dimV := sm.Means.Dims()
	var load mat.Dense
	load.Mul(m.comp.SIG, m.comp.Mats.QQ)
	_, ne := load.Dims()

	ex := &Extraction{
		Means:     mat.NewDense(T, dimV, nil),
		Covs:      sm.Covs,
		Residuals: mat.NewDense(T, ne, nil),
		Fit:       make([]float64, T),
		Converged: true,
	}
	eng := m.comp.Engine
	v := m.filter.X0()
	diff := mat.NewDense(dimV, 1, nil)
	for t := 0; t < T; t++ {
		// 1. Predict through the constraint
		pred, ok := eng.Step(v, obc.Brute)
		ex.Converged = ex.Converged && ok

		// 2. Shocks closest to the smoothed state
		for i := 0; i < dimV; i++ {
			diff.Set(i, 0, sm.Means.At(t, i)-pred[i])
		}
		eps, err := linalg.LeastSquares(&load, diff)
		if err != nil {
			return nil, fmt.Errorf("extract period %d: %w", t, err)
		}
		e := mat.Col(nil, 0, eps)
		ex.Residuals.SetRow(t, e)

		// 3. Reconstructed state
		x := linalg.MulVec(&load, e)
		floats.Add(x, pred)
		ex.Means.SetRow(t, x)
		ex.Fit[t] = floats.Distance(x, sm.Means.RawRowView(t), 2)
		v = x
	}
	if !ex.Converged {
		m.log.Warn("extraction found no consistent regime in some periods")
		if eo.ConvergedOnly {
			return nil, ErrNotConverged
		}
	}
	return ex, nil
}

// LProb is the log posterior density at par, a full or estimated-subset
// vector. Numerical failures give -Inf; only a missing filter or missing
// data is an error.
func (m *Model) LProb(par []float64) (float64, error) {
	if err := m.canFilter(); err != nil {
		return math.Inf(-1), err
	}
	full, err := m.expand(par, m.comp.Par)
	if err != nil {
		return math.Inf(-1), err
	}
	return m.lprob(full), nil
}

func (m *Model) lprob(full []float64) float64 {
	lp := sampling.LogPrior(m.priors, m.project(full, true))
	if math.IsInf(lp, -1) {
		return lp
	}
	next, err := m.SetPar(full, Options{})
	if err != nil {
		m.log.Debug("lprob: compile failed", zap.Error(err))
		return math.Inf(-1)
	}
	ll, err := next.LogLik()
	if err != nil || math.IsNaN(ll) {
		m.log.Debug("lprob: filter failed", zap.Error(err))
		return math.Inf(-1)
	}
	return lp + ll
}

// Target evaluates draws of the estimated subset by their posterior density.
// The remaining parameters are taken from the calibration.
func (m *Model) Target() sampling.Target {
	return sampling.TargetFunc(func(x []float64) sampling.Outcome {
		if err := m.canFilter(); err != nil {
			return sampling.Reject(err)
		}
		return sampling.Accept(m.lprob(m.fromSubset(x, m.def.Calibration)))
	})
}
