package compiler

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/klein"
	"DSGE_OBC_Project/application/internal/model"
	"DSGE_OBC_Project/application/internal/obc"
)

var lambda = (3 - math.Sqrt(5)) / 2

func load(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := model.Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	return m
}

func intp(v int) *int { return &v }

func assertDense(t *testing.T, want []float64, got mat.Matrix) {
	t.Helper()
	r, c := got.Dims()
	require.Equal(t, len(want), r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, want[i*c+j], got.At(i, j), 1e-9, "entry (%d,%d)", i, j)
		}
	}
}

func TestCompile_Toy(t *testing.T) {
	m := load(t, "toy.yaml")
	c, err := Compile(m, nil, Options{LMax: intp(2), KMax: intp(0), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	assert.Equal(t, Depth{LMax: 3, KMax: 0}, c.Depth)
	assert.Equal(t, []string{"y"}, c.VX)
	assert.Equal(t, 1, c.DimX)
	assert.Equal(t, []string{"y", "r"}, c.VV)
	assert.Equal(t, []bool{false, false}, c.OutMask)
	assert.Equal(t, -1.0, c.XBar)

	// consistent dimensions of the emitted system
	n, _ := c.Sys.N.Dims()
	ar, ac := c.Sys.A.Dims()
	_, jc := c.Sys.J.Dims()
	assert.Equal(t, n, ar)
	assert.Equal(t, n, ac)
	assert.Equal(t, n, jc)
	assert.Len(t, c.Sys.CX, n)
	assert.Len(t, c.Sys.B, n)

	assertDense(t, []float64{2, -1, 0, 1, 0, 0, 0, 0, 0}, c.Sys.N)
	assertDense(t, []float64{3, -1, 0, 1, 0, 0, 1, 0, 0}, c.Sys.A)
	assertDense(t, []float64{1, -lambda, 0}, c.Sys.J)
	assertDense(t, []float64{-1, 0, -1}, mat.NewDense(1, 3, c.Sys.CX))
	assertDense(t, []float64{1, 0, 0}, mat.NewDense(1, 3, c.Sys.B))
	assert.Equal(t, 1, c.Sys.NX)

	assertDense(t, []float64{1, 0}, c.Hx)
	assert.Equal(t, []int{0}, c.ObsArg)
	assertDense(t, []float64{1, 0.5}, c.SIG)

	// the compiled engine binds the rate at its bound after a large fall
	v1, ok := c.Engine.Step([]float64{-5, 0}, obc.Fast)
	assert.False(t, ok, "k_max = 0 leaves no binding regime")
	assert.InDelta(t, -5*lambda, v1[0], 1e-9)
}

func TestCompile_Deterministic(t *testing.T) {
	m := load(t, "toy.yaml")
	opts := Options{LMax: intp(3), KMax: intp(5)}

	c1, err := Compile(m, nil, opts)
	require.NoError(t, err)
	c2, err := Compile(m, nil, opts)
	require.NoError(t, err)

	assert.True(t, mat.Equal(c1.Sys.N, c2.Sys.N))
	assert.True(t, mat.Equal(c1.Sys.A, c2.Sys.A))
	assert.True(t, mat.Equal(c1.Sys.J, c2.Sys.J))
	assert.Equal(t, c1.Sys.CX, c2.Sys.CX)
	assert.Equal(t, c1.Sys.B, c2.Sys.B)
	assert.Equal(t, c1.Depth, c2.Depth)
}

func TestCompile_DoesNotAliasPar(t *testing.T) {
	m := load(t, "toy.yaml")
	par := append([]float64(nil), m.Calibration...)
	c, err := Compile(m, par, Options{})
	require.NoError(t, err)
	par[3] = 0.9
	assert.Equal(t, 0.5, c.Par[3])
}

func TestCompile_Reduction(t *testing.T) {
	m := load(t, "prunable.yaml")

	full, err := Compile(m, nil, Options{ReduceSys: false})
	require.NoError(t, err)
	red, err := Compile(m, nil, Options{ReduceSys: true})
	require.NoError(t, err)

	// the mask is stored whether or not it is applied
	assert.Equal(t, []bool{false, false, true}, full.OutMask)
	assert.Equal(t, full.OutMask, red.OutMask)

	if diff := cmp.Diff([]string{"y", "r", "z"}, full.VV); diff != "" {
		t.Errorf("full VV (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y", "r"}, red.VV); diff != "" {
		t.Errorf("reduced VV (-want +got):\n%s", diff)
	}
	n, _ := full.Sys.N.Dims()
	assert.Equal(t, 4, n)
	n, _ = red.Sys.N.Dims()
	assert.Equal(t, 3, n)

	// same dynamics on the retained variables
	for _, y0 := range []float64{1, -5} {
		for _, q := range []obc.Quality{obc.Fast, obc.Brute} {
			vf, okf := full.Engine.Step([]float64{y0, 0, y0}, q)
			vr, okr := red.Engine.Step([]float64{y0, 0}, q)
			assert.Equal(t, okf, okr)
			assert.InDelta(t, vf[0], vr[0], 1e-9)
			assert.InDelta(t, vf[1], vr[1], 1e-9)
		}
	}
}

// toyFunc is the toy model without an x_bar parameter.
func toyFunc(pf model.ParaFunc) *model.Model {
	return &model.Model{
		Name:        "toy-func",
		Variables:   []string{"y", "r"},
		ConstVar:    "r",
		Shocks:      []string{"e"},
		Observables: []string{"y"},
		Parameters:  []string{"a", "sigma", "phi", "rho"},
		Calibration: []float64{0.5, 0.5, 1, 0.5},
		ParaFunc:    pf,
		Structure: model.StructureFunc(func(par []float64) (*model.Matrices, error) {
			a, sigma, phi, rho := par[0], par[1], par[2], par[3]
			return &model.Matrices{
				AA:         mat.NewDense(1, 2, []float64{-a, 0}),
				BB:         mat.NewDense(1, 2, []float64{1, sigma}),
				CC:         mat.NewDense(1, 2, []float64{-rho, 0}),
				Constraint: []float64{phi, 0, 0, 0},
				PSI:        mat.NewDense(1, 1, []float64{1}),
				ZZ:         mat.NewDense(1, 2, []float64{1, 0}),
				DD:         []float64{0},
				QQ:         mat.NewDense(1, 1, []float64{0.1}),
			}, nil
		}),
	}
}

func TestCompile_XBarResolution(t *testing.T) {
	t.Run("default with warning", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		c, err := Compile(toyFunc(model.ParaFunc{}), nil, Options{Logger: zap.New(core)})
		require.NoError(t, err)
		assert.Equal(t, -1.0, c.XBar)
		assert.Equal(t, 1, logs.FilterMessageSnippet("x_bar").Len())
	})

	t.Run("strict", func(t *testing.T) {
		_, err := Compile(toyFunc(model.ParaFunc{}), nil, Options{StrictXBar: true})
		assert.ErrorIs(t, err, ErrMissingXBar)
	})

	t.Run("functional parameter", func(t *testing.T) {
		pf := model.ParaFunc{
			Names: []string{"x_bar"},
			Eval:  func(par []float64) ([]float64, error) { return []float64{-0.5}, nil },
		}
		core, logs := observer.New(zap.WarnLevel)
		c, err := Compile(toyFunc(pf), nil, Options{Logger: zap.New(core)})
		require.NoError(t, err)
		assert.Equal(t, -0.5, c.XBar)
		assert.Equal(t, 0, logs.Len())
		assertDense(t, []float64{-0.5, 0, -0.5}, mat.NewDense(1, 3, c.Sys.CX))
	})
}

func TestCompile_Errors(t *testing.T) {
	t.Run("no constraint", func(t *testing.T) {
		m := toyFunc(model.ParaFunc{})
		m.ConstVar = ""
		_, err := Compile(m, nil, Options{})
		assert.ErrorIs(t, err, ErrNoConstraint)
	})

	t.Run("indeterminate", func(t *testing.T) {
		// a = 2 puts both roots of the slack system inside the unit circle
		m := load(t, "toy.yaml")
		par := append([]float64(nil), m.Calibration...)
		par[0] = 2
		_, err := Compile(m, par, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, klein.ErrBlanchardKahn))
		var bk *klein.BKError
		require.True(t, errors.As(err, &bk))
		assert.Equal(t, 0, bk.Unstable)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := Compile(load(t, "toy.yaml"), []float64{1, 2}, Options{})
		assert.Error(t, err)
	})
}

func TestCompile_CarriesCache(t *testing.T) {
	m := load(t, "toy.yaml")
	old := &Cache{Names: []string{"y"}, P: mat.NewSymDense(1, []float64{2})}
	c, err := Compile(m, nil, Options{Cache: old})
	require.NoError(t, err)
	require.NotNil(t, c.Cache)
	assert.Equal(t, []string{"y", "r"}, c.Cache.Names)
	assertDense(t, []float64{2, 0, 0, 0}, c.Cache.P)
}

func TestDesingularize(t *testing.T) {
	N1 := mat.NewDense(2, 2, []float64{
		0.5, 0,
		1, 1,
	})
	P1 := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 0,
	})

	P2, _, _, err := desingularize(N1, P1, []float64{1, 0}, []float64{0, 0}, DefaultTol)
	require.NoError(t, err)
	var inv mat.Dense
	assert.NoError(t, inv.Inverse(P2), "desingularized P must be invertible")

	_, _, _, err = desingularize(N1, P1, []float64{0, 1}, []float64{0, 0}, DefaultTol)
	assert.ErrorIs(t, err, ErrFutureConstraint)

	_, _, _, err = desingularize(N1, P1, []float64{1, 0}, []float64{0, 1}, DefaultTol)
	assert.ErrorIs(t, err, ErrFutureConstraint)
}

func TestExplosiveError(t *testing.T) {
	err := error(&ExplosiveError{Count: 2})
	assert.ErrorIs(t, err, ErrExplosive)
	assert.Contains(t, err.Error(), "2 EV(s) > 1")
}
