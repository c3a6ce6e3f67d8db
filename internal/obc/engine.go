package obc

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/linalg"
)

// Quality selects how thoroughly regimes are searched.
type Quality int

const (
	// Fast only considers regimes where the constraint binds immediately.
	Fast Quality = iota
	// Brute also considers regimes where the constraint binds after l periods.
	Brute
)

const rankTol = 1e-10

// Regime describes a constraint path: slack for L periods, then binding for
// K periods, then slack for good.
type Regime struct {
	L, K int
}

// entry is the precomputed solution x0 = Lv v0 + L0 for one regime.
type entry struct {
	Lv    *mat.Dense // NX x dimV
	L0    []float64
	valid bool
}

// Engine evaluates the transition of a System. It is immutable after
// Preprocess and safe for concurrent use.
type Engine struct {
	sys  *System
	lMax int
	kMax int
	// table[l][k]
	table [][]entry
}

// Preprocess builds the regime table for l in [0, lMax) and k in [0, kMax].
func Preprocess(sys *System, lMax, kMax int) (*Engine, error) {
	if err := sys.Check(); err != nil {
		return nil, err
	}
	if lMax < 1 || kMax < 0 {
		return nil, fmt.Errorf("obc: invalid depth l_max=%d k_max=%d", lMax, kMax)
	}
	e := &Engine{sys: sys, lMax: lMax, kMax: kMax}

	n := sys.Dim()
	Al := linalg.Eye(n)
	e.table = make([][]entry, lMax)
	for l := 0; l < lMax; l++ {
		e.table[l] = make([]entry, kMax+1)
		phi := mat.DenseCopyOf(Al)
		off := make([]float64, n)
		for k := 0; k <= kMax; k++ {
			e.table[l][k] = e.solveEntry(phi, off)
			// phi <- N phi; off <- N off + cx
			var next mat.Dense
			next.Mul(sys.N, phi)
			phi = &next
			off = linalg.MulVec(sys.N, off)
			floats.Add(off, sys.CX)
		}
		var next mat.Dense
		next.Mul(sys.A, Al)
		Al = &next
	}
	return e, nil
}

// solveEntry solves J (Phi s0 + off) = 0 for the forward looking part of s0.
func (e *Engine) solveEntry(phi *mat.Dense, off []float64) entry {
	nx, n := e.sys.NX, e.sys.Dim()
	var T mat.Dense
	T.Mul(e.sys.J, phi)
	rows, _ := T.Dims()
	t0 := linalg.MulVec(e.sys.J, off)

	Tx := T.Slice(0, rows, 0, nx)
	if linalg.Rank(Tx, rankTol) < nx {
		return entry{}
	}
	rhs := mat.NewDense(rows, n-nx+1, nil)
	rhs.Slice(0, rows, 0, n-nx).(*mat.Dense).Copy(T.Slice(0, rows, nx, n))
	for i := 0; i < rows; i++ {
		rhs.Set(i, n-nx, t0[i])
	}
	G, err := linalg.LeastSquares(Tx, rhs)
	if err != nil {
		return entry{}
	}
	G.Scale(-1, G)
	L0 := make([]float64, nx)
	for i := range L0 {
		L0[i] = G.At(i, n-nx)
	}
	return entry{
		Lv:    mat.DenseCopyOf(G.Slice(0, nx, 0, n-nx)),
		L0:    L0,
		valid: true,
	}
}

// Depth returns the regime search depth.
func (e *Engine) Depth() (lMax, kMax int) { return e.lMax, e.kMax }

// System returns the underlying system.
func (e *Engine) System() *System { return e.sys }

func (e *Engine) lookup(r Regime) entry {
	if r.L < e.lMax && r.K <= e.kMax {
		return e.table[r.L][r.K]
	}
	// outside the table, only needed by the stability test for a linear depth
	n := e.sys.Dim()
	phi := linalg.Eye(n)
	for i := 0; i < r.L; i++ {
		var next mat.Dense
		next.Mul(e.sys.A, phi)
		phi = &next
	}
	off := make([]float64, n)
	for i := 0; i < r.K; i++ {
		var next mat.Dense
		next.Mul(e.sys.N, phi)
		phi = &next
		off = linalg.MulVec(e.sys.N, off)
		floats.Add(off, e.sys.CX)
	}
	return e.solveEntry(phi, off)
}

// binds reports whether the constraint binds on the transition out of s.
func (e *Engine) binds(s []float64) bool {
	return floats.Dot(e.sys.B, s) < e.sys.XBar
}

// next applies one transition to s.
func (e *Engine) next(s []float64, binding bool) []float64 {
	if binding {
		out := linalg.MulVec(e.sys.N, s)
		floats.Add(out, e.sys.CX)
		return out
	}
	return linalg.MulVec(e.sys.A, s)
}

// state returns s0 = [x0; v0] for the regime solved by en. An invalid
// entry leaves x0 at zero.
func (e *Engine) state(en entry, v0 []float64) []float64 {
	s := make([]float64, e.sys.NX, e.sys.Dim())
	if en.valid {
		copy(s, linalg.MulVec(en.Lv, v0))
		floats.Add(s, en.L0)
	}
	return append(s, v0...)
}

// consistent checks that the path from s0 binds exactly in periods [L, L+K).
func (e *Engine) consistent(r Regime, s0 []float64) bool {
	s := s0
	for tau := 0; tau <= r.L+r.K; tau++ {
		want := tau >= r.L && tau < r.L+r.K
		if e.binds(s) != want {
			return false
		}
		s = e.next(s, want)
	}
	return true
}

func (e *Engine) candidates(q Quality) []Regime {
	out := []Regime{{0, 0}}
	if q == Fast {
		for k := 1; k <= e.kMax; k++ {
			out = append(out, Regime{0, k})
		}
		return out
	}
	for l := 0; l < e.lMax; l++ {
		for k := 1; k <= e.kMax; k++ {
			out = append(out, Regime{l, k})
		}
	}
	return out
}

// Solve finds the regime consistent with v0 and returns it with the full
// state s0. When no candidate is consistent the closest corner regime is
// returned with ok = false.
func (e *Engine) Solve(v0 []float64, q Quality) (r Regime, s0 []float64, ok bool) {
	if len(v0) != e.sys.DimV() {
		panic(fmt.Sprintf("obc: state has %d entries, want %d", len(v0), e.sys.DimV()))
	}
	for _, c := range e.candidates(q) {
		en := e.table[c.L][c.K]
		if !en.valid {
			continue
		}
		s := e.state(en, v0)
		if e.consistent(c, s) {
			return c, s, true
		}
	}

	r = Regime{0, 0}
	s0 = e.state(e.table[0][0], v0)
	if e.binds(s0) && e.kMax > 0 && e.table[0][e.kMax].valid {
		r = Regime{0, e.kMax}
		s0 = e.state(e.table[0][e.kMax], v0)
	}
	return r, s0, false
}

// Step maps v0 to next period's v1. ok is false when no consistent regime
// was found.
func (e *Engine) Step(v0 []float64, q Quality) (v1 []float64, ok bool) {
	r, s0, ok := e.Solve(v0, q)
	s1 := e.next(s0, r.L == 0 && r.K > 0)
	return s1[e.sys.NX:], ok
}

// Transition returns Step as a plain function of the state.
func (e *Engine) Transition(q Quality) func(v []float64) []float64 {
	return func(v []float64) []float64 {
		v1, _ := e.Step(v, q)
		return v1
	}
}

// Simulate iterates Step for horizon periods starting from v0 and returns
// the horizon x dimV path together with the per-period regime flags.
func (e *Engine) Simulate(v0 []float64, horizon int, q Quality) (*mat.Dense, []bool) {
	path := mat.NewDense(horizon, e.sys.DimV(), nil)
	flags := make([]bool, horizon)
	v := v0
	for t := 0; t < horizon; t++ {
		v, flags[t] = e.Step(v, q)
		path.SetRow(t, v)
	}
	return path, flags
}
