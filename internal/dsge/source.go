package dsge

import (
	"fmt"
	"strings"
)

// Source selects where GetPar takes parameters from.
type Source interface {
	source()
}

type (
	// Current is the active parameter vector.
	Current struct{}
	// Named is a single structural or functional parameter.
	Named struct{ Name string }
	// Vector is an explicit full or estimated-subset vector.
	Vector struct{ Par []float64 }
	// CovMat is the shock covariance at the current or the NPar vector.
	CovMat struct{}
	// PostCov is the covariance of the chain tail.
	PostCov struct{}
	// Best is the mode if there is one and the initial values otherwise.
	Best         struct{}
	Mode         struct{}
	PostMode     struct{}
	PostMean     struct{}
	PriorMean    struct{}
	AdjPriorMean struct{}
	Calib        struct{}
	Init         struct{}
	PriorDraw    struct{}
	PostDraw     struct{}
)

func (Current) source()      {}
func (Named) source()        {}
func (Vector) source()       {}
func (CovMat) source()       {}
func (PostCov) source()      {}
func (Best) source()         {}
func (Mode) source()         {}
func (PostMode) source()     {}
func (PostMean) source()     {}
func (PriorMean) source()    {}
func (AdjPriorMean) source() {}
func (Calib) source()        {}
func (Init) source()         {}
func (PriorDraw) source()    {}
func (PostDraw) source()     {}

var tokens = map[string]Source{
	"":               Current{},
	"current":        Current{},
	"cov":            CovMat{},
	"cov_mat":        CovMat{},
	"post_cov":       PostCov{},
	"best":           Best{},
	"mode":           Mode{},
	"posterior_mode": PostMode{},
	"post_mode":      PostMode{},
	"posterior_mean": PostMean{},
	"post_mean":      PostMean{},
	"prior_mean":     PriorMean{},
	"adj_prior_mean": AdjPriorMean{},
	"calib":          Calib{},
	"calibration":    Calib{},
	"init":           Init{},
	"prior":          PriorDraw{},
	"post":           PostDraw{},
	"posterior":      PostDraw{},
}

// ParseSource maps a command line token to a Source. Tokens that are not a
// keyword must name a parameter of m.
func (m *Model) ParseSource(token string) (Source, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	if s, ok := tokens[t]; ok {
		return s, nil
	}
	if _, ok := m.def.ParIndex(token); ok {
		return Named{Name: token}, nil
	}
	if _, ok := m.def.FuncIndex(token); ok {
		return Named{Name: token}, nil
	}
	return nil, fmt.Errorf("%q: %w", token, ErrUnknownSource)
}
