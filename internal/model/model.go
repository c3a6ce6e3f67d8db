package model

import (
	"fmt"
	"strings"
)

type Dist int

// Prior distribution families
const (
	DistNormal Dist = iota
	DistGamma
	DistBeta
	DistInvGamma
	// inverse gamma in the (s, nu) parameterisation used by dynare
	DistInvGammaDynare
	DistUniform
)

var distNames = [...]string{
	DistNormal:         "normal",
	DistGamma:          "gamma",
	DistBeta:           "beta",
	DistInvGamma:       "inv_gamma",
	DistInvGammaDynare: "inv_gamma_dynare",
	DistUniform:        "uniform",
}

func (d Dist) String() string {
	if d < 0 || int(d) >= len(distNames) {
		return fmt.Sprintf("Dist(%d)", int(d))
	}
	return distNames[d]
}

// ParseDist maps a distribution name from a model file to its Dist.
func ParseDist(s string) (Dist, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range distNames {
		if name == s {
			return Dist(d), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownDist)
}

// Prior is the marginal prior of one estimated parameter.
type Prior struct {
	Name string
	Dist Dist
	// Mean and Std are the first two moments. For uniform priors they hold
	// the lower and upper bound, for inv_gamma_dynare the s and nu parameters.
	Mean float64
	Std  float64
	// Init is the starting value for estimation; nil means the calibration.
	Init *float64
}

// ParaFunc derives the functional parameters from the structural vector.
type ParaFunc struct {
	Names []string
	Eval  func(par []float64) ([]float64, error)
}

// Model is a parsed model definition. It is treated as read only once built.
type Model struct {
	Name        string
	Variables   []string
	ConstVar    string
	Shocks      []string
	Observables []string

	Parameters  []string
	Calibration []float64
	Priors      []Prior
	ParaFunc    ParaFunc

	Structure Structure

	// Estimation results over the prior subset, if any.
	ModeX     []float64
	MCMCModeX []float64
}

// ParIndex returns the position of a structural parameter.
func (m *Model) ParIndex(name string) (int, bool) {
	for i, p := range m.Parameters {
		if p == name {
			return i, true
		}
	}
	return -1, false
}

// FuncIndex returns the position of a functional parameter.
func (m *Model) FuncIndex(name string) (int, bool) {
	for i, p := range m.ParaFunc.Names {
		if p == name {
			return i, true
		}
	}
	return -1, false
}

// PriorArg returns the indices of the estimated parameters in the full vector,
// in prior order.
func (m *Model) PriorArg() []int {
	arg := make([]int, len(m.Priors))
	for i, pr := range m.Priors {
		arg[i], _ = m.ParIndex(pr.Name)
	}
	return arg
}

// PriorNames returns the names of the estimated parameters.
func (m *Model) PriorNames() []string {
	names := make([]string, len(m.Priors))
	for i, pr := range m.Priors {
		names[i] = pr.Name
	}
	return names
}

// Funcs evaluates the functional parameters at par. A model without a
// parafunc block returns nil.
func (m *Model) Funcs(par []float64) ([]float64, error) {
	if m.ParaFunc.Eval == nil {
		return nil, nil
	}
	return m.ParaFunc.Eval(par)
}

// Validate checks the cross references between names.
func (m *Model) Validate() error {
	if len(m.Calibration) != len(m.Parameters) {
		return fmt.Errorf("model %s: %d parameters but %d calibrated values", m.Name, len(m.Parameters), len(m.Calibration))
	}
	for _, f := range m.ParaFunc.Names {
		if _, ok := m.ParIndex(f); ok {
			return fmt.Errorf("model %s: %q: %w", m.Name, f, ErrNameOverlap)
		}
	}
	for _, pr := range m.Priors {
		if _, ok := m.ParIndex(pr.Name); !ok {
			return fmt.Errorf("model %s: prior on %q: %w", m.Name, pr.Name, ErrUnknownParameter)
		}
	}
	if m.ConstVar != "" && !contains(m.Variables, m.ConstVar) {
		return fmt.Errorf("model %s: constraint variable %q is not a model variable", m.Name, m.ConstVar)
	}
	if m.Structure == nil {
		return fmt.Errorf("model %s: no structural matrices", m.Name)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
