// Package compiler turns a model and a parameter vector into the reduced
// transition system consumed by the constraint engine.
package compiler

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/klein"
	"DSGE_OBC_Project/application/internal/linalg"
	"DSGE_OBC_Project/application/internal/model"
	"DSGE_OBC_Project/application/internal/obc"
)

// DefaultTol is the singular value threshold of the desingularization.
const DefaultTol = 1e-8

// XBarName is the parameter holding the bound of the constraint.
const XBarName = "x_bar"

// Options control a compile.
type Options struct {
	// LMax and KMax request a regime depth; nil means reuse Prev or the default.
	LMax, KMax *int
	Prev       *Depth
	Linear     bool
	// Tol is the desingularization threshold; zero means DefaultTol.
	Tol         float64
	ReduceSys   bool
	IgnoreTests bool
	// StrictXBar turns the x_bar = -1 fallback into ErrMissingXBar.
	StrictXBar bool
	// Cache is re-indexed onto the new state names when set.
	Cache  *Cache
	Logger *zap.Logger
}

// Compiled is the immutable result of one compile.
type Compiled struct {
	Par  []float64
	Mats *model.Matrices

	// VV are the retained state variables, VX the forward looking variables
	// of the Klein solve without the constraint variable.
	VV   []string
	VX   []string
	DimX int

	// OutMask marks the prunable variables among all model variables,
	// whether or not pruning was applied.
	OutMask []bool

	Sys    *obc.System
	Engine *obc.Engine

	// Observation map on the retained states.
	Hx     *mat.Dense
	DD     []float64
	ObsArg []int
	// SIG maps shocks into the retained states.
	SIG *mat.Dense

	XBar        float64
	Depth       Depth
	ReduceSys   bool
	IgnoreTests bool
	Cache       *Cache
}

// Compile builds the reduced system of m at par. A nil par compiles the
// calibration.
func Compile(m *model.Model, par []float64, opts Options) (*Compiled, error) {
	st := time.Now()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tol := opts.Tol
	if tol == 0 {
		tol = DefaultTol
	}
	depth := ResolveDepth(opts.Prev, opts.LMax, opts.KMax, opts.Linear, log)

	if par == nil {
		par = m.Calibration
	}
	if len(par) != len(m.Parameters) {
		return nil, fmt.Errorf("compile: got %d parameters, want %d", len(par), len(m.Parameters))
	}
	par = append([]float64(nil), par...)

	// 1. Structural matrices
	if m.ConstVar == "" {
		return nil, ErrNoConstraint
	}
	mats, err := m.Structure.Matrices(par)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	dimV := len(m.Variables)
	if dimV < 2 {
		return nil, fmt.Errorf("compile: %d variables, need the constraint and at least one more", dimV)
	}
	if err := mats.Check(dimV, len(m.Shocks), len(m.Observables)); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	cVar := -1
	for i, v := range m.Variables {
		if v == m.ConstVar {
			cVar = i
		}
	}
	if cVar < 0 {
		return nil, fmt.Errorf("compile: constraint variable %q not among the variables: %w", m.ConstVar, ErrNoConstraint)
	}

	// 2. Extended representation P s_t = N s_{t-1} with s = [x; v]
	bb := mats.Constraint
	inX := linalg.Not(linalg.And(linalg.ZeroCols(mats.AA, linalg.ZeroTol), linalg.Zero(bb[:dimV], linalg.ZeroTol)))
	inX[cVar] = true

	vx2 := linalg.SelectNames(m.Variables, inX)
	dimX := len(vx2)
	neq := dimV - 1
	A1 := linalg.Select(mats.AA, nil, inX)
	b1 := append(linalg.SelectVec(bb[:dimV], inX), bb[dimV:]...)

	rows, cols := neq+dimX, dimX+dimV
	N := mat.NewDense(rows, cols, nil)
	N.Slice(0, neq, dimX, cols).(*mat.Dense).Copy(mats.CC)
	P := mat.NewDense(rows, cols, nil)
	P.Slice(0, neq, 0, dimX).(*mat.Dense).Scale(-1, A1)
	P.Slice(0, neq, dimX, cols).(*mat.Dense).Scale(-1, mats.BB)
	row := neq
	for j := 0; j < dimV; j++ {
		if !inX[j] {
			continue
		}
		N.Set(row, row-neq, 1)
		P.Set(row, dimX+j, 1)
		row++
	}

	// 3. Eliminate the constraint variable
	cArg := 0
	for i, v := range vx2 {
		if v == m.ConstVar {
			cArg = i
		}
	}
	c1 := mat.Col(nil, cArg, N)
	cP := mat.Col(nil, cArg, P)
	b2 := linalg.DeleteAt(b1, cArg)
	N1 := linalg.DeleteCol(N, cArg)
	P1 := linalg.DeleteCol(P, cArg)
	vx3 := append(append([]string(nil), vx2[:cArg]...), vx2[cArg+1:]...)
	dimX = len(vx3)
	if dimX == 0 {
		return nil, fmt.Errorf("compile: %w", ErrNoForward)
	}

	// 4. Fold the constraint rule into the dynamics
	var M1 mat.Dense
	M1.Add(N1, linalg.Outer(c1, b2))

	// 5. Klein
	OME, err := klein.Solve(&M1, P1, dimX)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	n := dimX + dimV
	J := mat.NewDense(dimX, n, nil)
	J.Slice(0, dimX, 0, dimX).(*mat.Dense).Copy(linalg.Eye(dimX))
	J.Slice(0, dimX, dimX, n).(*mat.Dense).Scale(-1, OME)

	// 6. Desingularization
	P2, N2, c2, err := desingularize(N1, P1, c1, cP, tol)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	log.Debug("desingularized P", zap.Float64("det", mat.Det(P2)))

	// 7. Constraint bound and offset
	xBar, err := resolveXBar(m, par, opts.StrictXBar, log)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	var P2inv mat.Dense
	if err := P2inv.Inverse(P2); err != nil {
		return nil, fmt.Errorf("compile: %w: %v", ErrSingularSystem, err)
	}
	cx := linalg.MulVec(&P2inv, c2)
	for i := range cx {
		cx[i] *= xBar
	}

	// 8. Transitions under the binding and the slack constraint
	var Nfin, Afin, tmp mat.Dense
	Nfin.Mul(&P2inv, N2)
	tmp.Add(N2, linalg.Outer(c2, b2))
	Afin.Mul(&P2inv, &tmp)
	if linalg.NANORINF(&Nfin) || linalg.NANORINF(&Afin) {
		return nil, fmt.Errorf("compile: transition matrices not finite: %w", ErrSingularSystem)
	}

	// 9. Reduction mask
	outMsk := linalg.And(
		linalg.ZeroCols(&Nfin, linalg.ZeroTol),
		linalg.ZeroCols(&Afin, linalg.ZeroTol),
		linalg.Zero(b2, linalg.ZeroTol),
		linalg.Zero(cx, linalg.ZeroTol),
	)
	zzZero := linalg.ZeroCols(mats.ZZ, linalg.ZeroTol)
	for j := 0; j < dimV; j++ {
		outMsk[dimX+j] = outMsk[dimX+j] && zzZero[j]
	}
	stored := append([]bool(nil), outMsk[dimX:]...)
	if !opts.ReduceSys {
		for j := dimX; j < n; j++ {
			outMsk[j] = false
		}
	}
	keep := linalg.Not(outMsk)
	keepV := keep[dimX:]
	nx := linalg.Count(keep[:dimX])
	if nx == 0 {
		return nil, fmt.Errorf("compile: all forward looking states are inert: %w", ErrNoForward)
	}

	// 10. Emitted system
	c := &Compiled{
		Par:         par,
		Mats:        mats,
		VV:          linalg.SelectNames(m.Variables, keepV),
		VX:          vx3,
		DimX:        dimX,
		OutMask:     stored,
		Hx:          linalg.Select(mats.ZZ, nil, keepV),
		DD:          append([]float64(nil), mats.DD...),
		XBar:        xBar,
		Depth:       depth,
		ReduceSys:   opts.ReduceSys,
		IgnoreTests: opts.IgnoreTests,
		Sys: &obc.System{
			N:    linalg.Select(&Nfin, keep, keep),
			A:    linalg.Select(&Afin, keep, keep),
			J:    linalg.Select(J, nil, keep),
			CX:   linalg.SelectVec(cx, keep),
			B:    linalg.SelectVec(b2, keep),
			XBar: xBar,
			NX:   nx,
		},
	}
	hr, hc := c.Hx.Dims()
	for i := 0; i < hr; i++ {
		for j := 0; j < hc; j++ {
			if c.Hx.At(i, j) != 0 {
				c.ObsArg = append(c.ObsArg, j)
			}
		}
	}
	var sig mat.Dense
	sig.Mul(mats.BB.T(), mats.PSI)
	c.SIG = linalg.Select(&sig, keepV, nil)

	// Carry the cached covariance over to the new state set
	if opts.Cache != nil {
		c.Cache = Reconcile(opts.Cache, c.VV, log)
	}

	log.Debug("creation of system matrices finished", zap.Duration("elapsed", time.Since(st)))

	// 11. Hand off and test
	c.Engine, err = obc.Preprocess(c.Sys, depth.LMax, depth.KMax)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if !opts.IgnoreTests {
		count, err := c.Engine.StabilityTest()
		if err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
		if count > 0 {
			return nil, &ExplosiveError{Count: count}
		}
	}
	return c, nil
}

// desingularize rotates the pencil by the left singular vectors of P1 and
// replaces the rows belonging to singular values below tol by the
// corresponding rows of the dynamics, iterating those equations one period
// forward.
func desingularize(N1, P1 *mat.Dense, c1, cP []float64, tol float64) (P2, N2 *mat.Dense, c2 []float64, err error) {
	var svd mat.SVD
	if ok := svd.Factorize(P1, mat.SVDFull); !ok {
		return nil, nil, nil, fmt.Errorf("SVD of P failed")
	}
	var U mat.Dense
	svd.UTo(&U)
	s := svd.Values(nil)

	P2 = &mat.Dense{}
	P2.Mul(U.T(), P1)
	N2 = &mat.Dense{}
	N2.Mul(U.T(), N1)
	c2 = linalg.MulVec(U.T(), c1)
	cPU := linalg.MulVec(U.T(), cP)

	n, _ := P1.Dims()
	var c2s, cPs []float64
	for i := 0; i < n; i++ {
		// singular values beyond len(s) only exist for non-square P1
		if i < len(s) && s[i] >= tol {
			continue
		}
		P2.SetRow(i, N2.RawRowView(i))
		c2s = append(c2s, c2[i])
		cPs = append(cPs, cPU[i])
	}
	if !linalg.AllZero(c2s, linalg.ZeroTol) || !linalg.AllZero(cPs, linalg.ZeroTol) {
		return nil, nil, nil, ErrFutureConstraint
	}
	return P2, N2, c2, nil
}

// resolveXBar takes x_bar from the structural parameters, then from the
// functional parameters, and falls back to -1.
func resolveXBar(m *model.Model, par []float64, strict bool, log *zap.Logger) (float64, error) {
	if i, ok := m.ParIndex(XBarName); ok {
		return par[i], nil
	}
	if i, ok := m.FuncIndex(XBarName); ok {
		vals, err := m.Funcs(par)
		if err != nil {
			return 0, err
		}
		return vals[i], nil
	}
	if strict {
		return 0, ErrMissingXBar
	}
	log.Warn("parameter x_bar (maximum value of the constraint) not specified, assuming x_bar = -1")
	return -1, nil
}
