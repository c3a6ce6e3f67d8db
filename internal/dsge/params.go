package dsge

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"DSGE_OBC_Project/application/internal/model"
	"DSGE_OBC_Project/application/internal/sampling"
)

// jitter is the relative noise added to copies of a point source.
const jitter = 1e-3

// DefaultRoundTo is the number of digits kept by AsDict.
const DefaultRoundTo = 5

// GetOptions refine GetPar.
type GetOptions struct {
	// NPar replaces the current vector before resolving. It may be a full or
	// an estimated-subset vector.
	NPar []float64
	// NSamples > 1 returns that many vectors.
	NSamples int
	// Subset returns only the estimated parameters.
	Subset bool
	Seed   uint64

	// TestLProb rejects prior draws whose posterior density is not finite.
	TestLProb   bool
	MaxAttempts int
	Workers     int
}

// Result is what GetPar resolved. Exactly one of the fields is meaningful,
// depending on the source.
type Result struct {
	Value float64
	Pars  [][]float64
	Cov   *mat.Dense
}

// Vector returns the first vector of a vector result.
func (r *Result) Vector() []float64 {
	if len(r.Pars) == 0 {
		return nil
	}
	return r.Pars[0]
}

// GetPar resolves a parameter request.
//
// HOW TO USE:
// res, _ := m.GetPar(dsge.Named{Name: "rho"}, dsge.GetOptions{})
// rho := res.Value
func (m *Model) GetPar(src Source, o GetOptions) (*Result, error) {
	cur := m.Par()
	if o.NPar != nil {
		full, err := m.expand(o.NPar, cur)
		if err != nil {
			return nil, err
		}
		cur = full
	}
	calib := m.def.Calibration

	switch s := src.(type) {
	case Current:
		return m.points(cur, o), nil
	case Named:
		v, err := m.named(cur, s.Name)
		if err != nil {
			return nil, err
		}
		return &Result{Value: v}, nil
	case Vector:
		full, err := m.expand(s.Par, cur)
		if err != nil {
			return nil, err
		}
		return m.points(full, o), nil
	case CovMat:
		at := m
		if o.NPar != nil {
			next, err := m.SetPar(cur, Options{})
			if err != nil {
				return nil, err
			}
			at = next
		}
		return &Result{Cov: at.Cov()}, nil
	case PostCov:
		cov, err := m.ChainCov()
		if err != nil {
			return nil, err
		}
		return &Result{Cov: mat.DenseCopyOf(cov)}, nil
	case Calib:
		return m.points(calib, o), nil
	case Best, Mode, PostMode, PostMean, PriorMean, AdjPriorMean, Init:
		x, err := m.estimate(s)
		if err != nil {
			return nil, err
		}
		return m.points(m.fromSubset(x, calib), o), nil
	case PriorDraw:
		return m.priorDraws(o)
	case PostDraw:
		if m.chain == nil {
			return nil, ErrNoChain
		}
		ps := &sampling.PosteriorSampler{Chain: m.chain, Seed: o.Seed}
		draws, err := ps.Sample(max(o.NSamples, 1))
		if err != nil {
			return nil, err
		}
		return m.subsetDraws(draws, o)
	}
	return nil, fmt.Errorf("%T: %w", src, ErrUnknownSource)
}

// points returns p, or jittered copies of it when several samples are asked.
func (m *Model) points(p []float64, o GetOptions) *Result {
	n := max(o.NSamples, 1)
	res := &Result{Pars: make([][]float64, n)}
	var rng *rand.Rand
	if n > 1 {
		rng = rand.New(rand.NewPCG(o.Seed, 0))
	}
	for i := range res.Pars {
		q := append([]float64(nil), p...)
		if rng != nil {
			for j := range q {
				q[j] *= 1 + jitter*rng.NormFloat64()
			}
		}
		res.Pars[i] = m.project(q, o.Subset)
	}
	return res
}

func (m *Model) subsetDraws(draws [][]float64, o GetOptions) (*Result, error) {
	res := &Result{Pars: make([][]float64, len(draws))}
	for i, x := range draws {
		res.Pars[i] = m.project(m.fromSubset(x, m.def.Calibration), o.Subset)
	}
	return res, nil
}

func (m *Model) priorDraws(o GetOptions) (*Result, error) {
	ps := &sampling.PriorSampler{
		Priors:  m.def.Priors,
		Retry:   sampling.RetryPolicy{MaxAttempts: o.MaxAttempts},
		Seed:    o.Seed,
		Workers: o.Workers,
		Logger:  m.log,
	}
	if o.TestLProb {
		if err := m.canFilter(); err != nil {
			return nil, err
		}
		ps.Target = m.Target()
	} else {
		ps.Target = m.solvable()
	}
	draws, _, err := ps.Sample(context.Background(), max(o.NSamples, 1))
	if err != nil {
		return nil, err
	}
	return m.subsetDraws(draws, o)
}

// project returns the estimated subset of full if subset is set.
func (m *Model) project(full []float64, subset bool) []float64 {
	if !subset {
		return full
	}
	arg := m.def.PriorArg()
	x := make([]float64, len(arg))
	for i, j := range arg {
		x[i] = full[j]
	}
	return x
}

// solvable rejects prior draws whose system does not compile.
func (m *Model) solvable() sampling.Target {
	return sampling.TargetFunc(func(x []float64) sampling.Outcome {
		if _, err := m.SetPar(m.fromSubset(x, m.def.Calibration), Options{}); err != nil {
			return sampling.Reject(err)
		}
		return sampling.Accept(0)
	})
}

// expand turns a full or estimated-subset vector into a full vector, taking
// the remaining entries from base. The vector is told apart by its length.
// If every parameter is estimated both readings have the same length, and
// such a vector is refused unless the priors are in parameter order.
func (m *Model) expand(p, base []float64) ([]float64, error) {
	np, ne := len(m.def.Parameters), len(m.def.Priors)
	switch len(p) {
	case np:
		if np == ne && !inOrder(m.def.PriorArg()) {
			return nil, fmt.Errorf("all %d parameters are estimated and the priors are not in parameter order: %w", np, ErrAmbiguousVector)
		}
		return append([]float64(nil), p...), nil
	case ne:
		return m.fromSubset(p, base), nil
	}
	return nil, fmt.Errorf("got %d parameters, want %d (all) or %d (estimated)", len(p), np, ne)
}

// fromSubset writes the estimated subset x into a copy of base.
func (m *Model) fromSubset(x, base []float64) []float64 {
	full := append([]float64(nil), base...)
	for i, j := range m.def.PriorArg() {
		full[j] = x[i]
	}
	return full
}

func inOrder(arg []int) bool {
	for i, j := range arg {
		if i != j {
			return false
		}
	}
	return true
}

func (m *Model) named(par []float64, name string) (float64, error) {
	if i, ok := m.def.ParIndex(name); ok {
		return par[i], nil
	}
	if i, ok := m.def.FuncIndex(name); ok {
		f, err := m.def.Funcs(par)
		if err != nil {
			return 0, err
		}
		return f[i], nil
	}
	return 0, fmt.Errorf("%q: %w", name, model.ErrUnknownParameter)
}

// estimate returns the estimated subset of the point sources.
func (m *Model) estimate(src Source) ([]float64, error) {
	priors := m.def.Priors
	x := make([]float64, len(priors))
	switch src.(type) {
	case Best:
		if m.def.ModeX != nil {
			return m.estimate(Mode{})
		}
		return m.estimate(Init{})
	case Mode:
		if m.def.ModeX == nil {
			return nil, fmt.Errorf("mode: %w", ErrNoMode)
		}
		copy(x, m.def.ModeX)
	case PostMode:
		if m.def.MCMCModeX == nil {
			return nil, fmt.Errorf("posterior mode: %w", ErrNoMode)
		}
		copy(x, m.def.MCMCModeX)
	case PostMean:
		if m.chain == nil {
			return nil, ErrNoChain
		}
		mean, err := m.chain.Mean()
		if err != nil {
			return nil, err
		}
		copy(x, mean)
	case PriorMean, AdjPriorMean:
		_, adj := src.(AdjPriorMean)
		for i, p := range priors {
			x[i] = priorMean(p, adj)
		}
	case Init:
		for i, p := range priors {
			if p.Init != nil {
				x[i] = *p.Init
				continue
			}
			j, _ := m.def.ParIndex(p.Name)
			x[i] = m.def.Calibration[j]
		}
	}
	return x, nil
}

func priorMean(p model.Prior, adj bool) float64 {
	switch p.Dist {
	case model.DistUniform:
		return (p.Mean + p.Std) / 2
	case model.DistInvGammaDynare:
		if adj {
			return 10 * p.Mean
		}
	}
	return p.Mean
}

// Cov is the shock covariance QQ at the current parameters.
func (m *Model) Cov() *mat.Dense { return mat.DenseCopyOf(m.comp.Mats.QQ) }

// ChainCov is the covariance of the estimated parameters over the chain tail.
func (m *Model) ChainCov() (*mat.SymDense, error) {
	if m.chain == nil {
		return nil, ErrNoChain
	}
	tail := m.chain.Tail()
	if len(tail) == 0 {
		return nil, sampling.ErrEmptyChain
	}
	X := mat.NewDense(len(tail), len(tail[0]), nil)
	for i, x := range tail {
		X.SetRow(i, x)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, X, nil)
	return &cov, nil
}

// AsDict maps structural and functional parameter names to their values at
// par, rounded to roundto digits (DefaultRoundTo if zero).
func (m *Model) AsDict(par []float64, roundto int) (structural, functional map[string]float64, err error) {
	if roundto <= 0 {
		roundto = DefaultRoundTo
	}
	full, err := m.expand(par, m.comp.Par)
	if err != nil {
		return nil, nil, err
	}
	scale := math.Pow(10, float64(roundto))
	round := func(v float64) float64 { return math.Round(v*scale) / scale }

	structural = make(map[string]float64, len(full))
	for i, name := range m.def.Parameters {
		structural[name] = round(full[i])
	}
	f, err := m.def.Funcs(full)
	if err != nil {
		return nil, nil, err
	}
	functional = make(map[string]float64, len(f))
	for i, name := range m.def.ParaFunc.Names {
		functional[name] = round(f[i])
	}
	return structural, functional, nil
}

// SetPar recompiles at par, a full or estimated-subset vector. The receiver
// is left untouched.
func (m *Model) SetPar(par []float64, o Options) (*Model, error) {
	full, err := m.expand(par, m.comp.Par)
	if err != nil {
		return nil, err
	}
	next, err := m.compile(full, o)
	if err != nil {
		return nil, err
	}
	m.log.Debug("parameters set", zap.Float64s("par", full))
	return next, nil
}

// SetNamed recompiles with one structural parameter changed.
func (m *Model) SetNamed(name string, v float64, o Options) (*Model, error) {
	par, err := m.WithNamed(name, v, nil)
	if err != nil {
		return nil, err
	}
	return m.SetPar(par, o)
}

// WithNamed returns a copy of npar, or of the current vector if npar is nil,
// with name set to v. Nothing is compiled.
func (m *Model) WithNamed(name string, v float64, npar []float64) ([]float64, error) {
	if _, ok := m.def.FuncIndex(name); ok {
		return nil, fmt.Errorf("%q: %w", name, ErrFunctionalParameter)
	}
	i, ok := m.def.ParIndex(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, model.ErrUnknownParameter)
	}
	par := m.Par()
	if npar != nil {
		full, err := m.expand(npar, par)
		if err != nil {
			return nil, err
		}
		par = full
	}
	par[i] = v
	return par, nil
}
