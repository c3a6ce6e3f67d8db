// Package sampling draws parameter vectors from the prior marginals and from
// the tail of a stored posterior chain.
package sampling

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"DSGE_OBC_Project/application/internal/model"
)

// Marginal is a univariate prior.
type Marginal interface {
	Rand() float64
	LogProb(x float64) float64
}

// NewMarginal parameterizes the distuv distribution of p from its moments.
// A nil src uses the global source.
func NewMarginal(p model.Prior, src rand.Source) (Marginal, error) {
	m, s := p.Mean, p.Std
	if p.Dist != model.DistUniform && !(s > 0) {
		return nil, fmt.Errorf("prior %s: std %v: %w", p.Name, s, ErrBadPrior)
	}
	switch p.Dist {
	case model.DistNormal:
		return distuv.Normal{Mu: m, Sigma: s, Src: src}, nil
	case model.DistGamma:
		if !(m > 0) {
			return nil, fmt.Errorf("prior %s: gamma mean %v: %w", p.Name, m, ErrBadPrior)
		}
		return distuv.Gamma{Alpha: m * m / (s * s), Beta: m / (s * s), Src: src}, nil
	case model.DistBeta:
		kappa := m*(1-m)/(s*s) - 1
		if !(m > 0 && m < 1 && kappa > 0) {
			return nil, fmt.Errorf("prior %s: beta(%v, %v): %w", p.Name, m, s, ErrBadPrior)
		}
		return distuv.Beta{Alpha: m * kappa, Beta: (1 - m) * kappa, Src: src}, nil
	case model.DistInvGamma:
		if !(m > 0) {
			return nil, fmt.Errorf("prior %s: inv_gamma mean %v: %w", p.Name, m, ErrBadPrior)
		}
		alpha := m*m/(s*s) + 2
		return distuv.InverseGamma{Alpha: alpha, Beta: m * (alpha - 1), Src: src}, nil
	case model.DistInvGammaDynare:
		// Mean and Std hold s and nu
		return invGammaDynare{ig: distuv.InverseGamma{Alpha: s / 2, Beta: s * m * m / 2, Src: src}}, nil
	case model.DistUniform:
		if !(m < s) {
			return nil, fmt.Errorf("prior %s: uniform bounds [%v, %v]: %w", p.Name, m, s, ErrBadPrior)
		}
		return distuv.Uniform{Min: m, Max: s, Src: src}, nil
	}
	return nil, fmt.Errorf("prior %s: %w", p.Name, model.ErrUnknownDist)
}

// invGammaDynare is the distribution of x where x^2 is inverse gamma.
type invGammaDynare struct {
	ig distuv.InverseGamma
}

func (d invGammaDynare) Rand() float64 { return math.Sqrt(d.ig.Rand()) }

func (d invGammaDynare) LogProb(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return d.ig.LogProb(x*x) + math.Log(2*x)
}

// Marginals builds every prior of m once.
func Marginals(priors []model.Prior) ([]Marginal, error) {
	out := make([]Marginal, len(priors))
	for i, p := range priors {
		d, err := NewMarginal(p, nil)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// LogPrior is the log density of the estimated subset x. Outside the support
// it is -Inf.
func LogPrior(marginals []Marginal, x []float64) float64 {
	if len(x) != len(marginals) {
		panic("sampling: dimension mismatch")
	}
	lp := 0.0
	for i, d := range marginals {
		lp += d.LogProb(x[i])
		if math.IsInf(lp, -1) || math.IsNaN(lp) {
			return math.Inf(-1)
		}
	}
	return lp
}
