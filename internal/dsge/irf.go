package dsge

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/linalg"
	"DSGE_OBC_Project/application/internal/obc"
)

// IRF computes the response to a one-time shock of size standard deviations
// in shock, passed through the constrained transition.
// Horizon: number of periods to compute (h=0, ..., horizon-1)
// Returns: horizon x dim_v matrix where row h is the state at horizon h, and
// per period whether a consistent regime was found.
// Usage:
// irfMat, ok, err := m.IRF("e", 1, 20)
func (m *Model) IRF(shock string, size float64, horizon int) (*mat.Dense, []bool, error) {
	if horizon <= 0 {
		return nil, nil, fmt.Errorf("horizon must be > 0")
	}
	j := -1
	for i, s := range m.def.Shocks {
		if s == shock {
			j = i
		}
	}
	if j < 0 {
		return nil, nil, fmt.Errorf("unknown shock %q (have %v)", shock, m.def.Shocks)
	}

	// Impact on the states
	eps := make([]float64, len(m.def.Shocks))
	eps[j] = size
	v0 := m.impulse(eps)

	dimV := len(v0)
	irf := mat.NewDense(horizon, dimV, nil)
	irf.SetRow(0, v0)
	ok := make([]bool, horizon)
	ok[0] = true
	if horizon == 1 {
		return irf, ok, nil
	}

	path, flags := m.comp.Engine.Simulate(v0, horizon-1, obc.Brute)
	irf.Slice(1, horizon, 0, dimV).(*mat.Dense).Copy(path)
	copy(ok[1:], flags)
	return irf, ok, nil
}

// impulse maps standardized shocks into the states.
func (m *Model) impulse(eps []float64) []float64 {
	return linalg.MulVec(m.comp.SIG, linalg.MulVec(m.comp.Mats.QQ, eps))
}

// Simulate runs the constrained transition from the zero state under the
// T x n_shocks standardized shocks eps.
// Returns the T x dim_v path and per period whether a consistent regime was
// found.
func (m *Model) Simulate(eps mat.Matrix) (*mat.Dense, []bool, error) {
	T, ne := eps.Dims()
	if ne != len(m.def.Shocks) {
		return nil, nil, fmt.Errorf("shocks have %d columns, model has %d shocks", ne, len(m.def.Shocks))
	}
	dimV := len(m.comp.VV)
	path := mat.NewDense(T, dimV, nil)
	ok := make([]bool, T)
	v := make([]float64, dimV)
	e := make([]float64, ne)
	for t := 0; t < T; t++ {
		v, ok[t] = m.comp.Engine.Step(v, obc.Brute)
		mat.Row(e, t, eps)
		floats.Add(v, m.impulse(e))
		path.SetRow(t, v)
	}
	return path, ok, nil
}

// Observables maps a T x dim_v state path to the observables.
func (m *Model) Observables(states mat.Matrix) *mat.Dense {
	T, _ := states.Dims()
	obs := mat.NewDense(T, len(m.def.Observables), nil)
	h := m.observe()
	v := make([]float64, len(m.comp.VV))
	for t := 0; t < T; t++ {
		mat.Row(v, t, states)
		obs.SetRow(t, h(v))
	}
	return obs
}
