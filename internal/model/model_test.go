package model

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadToy(t *testing.T) *Model {
	t.Helper()
	m, err := Load(filepath.Join("testdata", "toy.yaml"))
	require.NoError(t, err)
	return m
}

func TestLoad_Toy(t *testing.T) {
	m := loadToy(t)

	if diff := cmp.Diff([]string{"a", "sigma", "phi", "rho", "x_bar", "sig_e"}, m.Parameters); diff != "" {
		t.Fatalf("parameter order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0.5, 0.5, 1, 0.5, -1, 0.1}, m.Calibration)
	assert.Equal(t, "r", m.ConstVar)
	assert.Equal(t, []int{3, 5}, m.PriorArg())
	assert.Equal(t, []string{"rho", "sig_e"}, m.PriorNames())

	require.Len(t, m.Priors, 2)
	assert.Equal(t, DistBeta, m.Priors[0].Dist)
	assert.Nil(t, m.Priors[0].Init)
	require.NotNil(t, m.Priors[1].Init)
	assert.Equal(t, 0.12, *m.Priors[1].Init)

	mats, err := m.Structure.Matrices(m.Calibration)
	require.NoError(t, err)
	require.NoError(t, mats.Check(len(m.Variables), len(m.Shocks), len(m.Observables)))

	assert.Equal(t, -0.5, mats.AA.At(0, 0))
	assert.Equal(t, 0.5, mats.BB.At(0, 1))
	assert.Equal(t, -0.5, mats.CC.At(0, 0))
	assert.Equal(t, []float64{1, 0, 0, 0}, mats.Constraint)
	// ZZ and DD come from the observables
	assert.Equal(t, []float64{1, 0}, mats.ZZ.RawRowView(0))
	assert.Equal(t, []float64{0}, mats.DD)
	assert.Equal(t, 0.1, mats.QQ.At(0, 0))
}

func TestParaFunc(t *testing.T) {
	m := loadToy(t)
	i, ok := m.FuncIndex("half_life")
	require.True(t, ok)

	vals, err := m.Funcs(m.Calibration)
	require.NoError(t, err)
	// rho = 0.5 halves in exactly one period
	assert.InDelta(t, 1.0, vals[i], 1e-12)

	_, ok = m.FuncIndex("rho")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	base := `
variables: [y, r]
constraint: r
shocks: [e]
observables: [y]
parameters: {a: 0.5}
matrices:
  AA: [[-a, 0]]
  BB: [[1, 0]]
  CC: [[0, 0]]
  bb: [1, 0, 0, 0]
  PSI: [[1]]
`
	tests := []struct {
		name  string
		extra string
		want  error
	}{
		{"undeclared function", "parafunc: {b: c*2}\n", ErrMissingParaFunc},
		{"overlap", "parafunc: {a: 2}\n", ErrNameOverlap},
		{"unknown prior", "priors: {z: {dist: normal, mean: 0, std: 1}}\n", ErrUnknownParameter},
		{"unknown dist", "priors: {a: {dist: cauchy, mean: 0, std: 1}}\n", ErrUnknownDist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(base + tt.extra))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := Parse([]byte(strings.Replace(base, "[[-a, 0]]", "[[-q, 0]]", 1)))
	assert.ErrorIs(t, err, ErrMissingParaFunc)
}

func TestParseDist(t *testing.T) {
	for _, d := range []Dist{DistNormal, DistGamma, DistBeta, DistInvGamma, DistInvGammaDynare, DistUniform} {
		got, err := ParseDist(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	got, err := ParseDist(" Inv_Gamma_Dynare ")
	require.NoError(t, err)
	assert.Equal(t, DistInvGammaDynare, got)
}

func TestExpr(t *testing.T) {
	env := map[string]float64{"a": 2, "b": 3}
	res := func(n string) (float64, bool) {
		v, ok := env[n]
		return v, ok
	}
	tests := []struct {
		src  string
		want float64
	}{
		{"1", 1},
		{"a+b*2", 8},
		{"(a+b)*2", 10},
		{"-a^2", -4},
		{"a^-1", 0.5},
		{"2^3^2", 512},
		{"a/b/2", 1.0 / 3},
		{"1e-3*a", 2e-3},
		{"exp(0) + sqrt(b*3)", 4},
		{"-(a-b)", 1},
	}
	for _, tt := range tests {
		e, err := ParseExpr(tt.src)
		require.NoError(t, err, tt.src)
		got, err := e.Eval(res)
		require.NoError(t, err, tt.src)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s = %v, want %v", tt.src, got, tt.want)
		}
	}

	e, err := ParseExpr("a*c + b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, e.Names())
	_, err = e.Eval(res)
	assert.ErrorIs(t, err, ErrMissingParaFunc)

	e, err = ParseExpr("log(0.5)/log(a) + sqrt(a)")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, e.Names(), "function names are not parameters")
	got, err := e.Eval(res)
	require.NoError(t, err)
	assert.InDelta(t, -1+math.Sqrt(2), got, 1e-12)

	var zero Expr
	v, err := zero.Eval(res)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	for _, bad := range []string{"", "a+", "(a", "a b", "2*%"} {
		_, err := ParseExpr(bad)
		assert.ErrorIs(t, err, ErrBadExpression, bad)
	}
}

func TestReadTimeSeries(t *testing.T) {
	in := "time,y,pi\n2000,1.5,0.1\n2001,,0.2\n2002,nan,0.3\n"
	ts, err := ReadTimeSeries(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 3, ts.Len())
	assert.Equal(t, []float64{2000, 2001, 2002}, ts.Time)
	assert.Equal(t, []string{"y", "pi"}, ts.VarNames)
	assert.True(t, math.IsNaN(ts.Y.At(1, 0)))
	assert.True(t, math.IsNaN(ts.Y.At(2, 0)))

	z, err := ts.Columns([]string{"pi", "y"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 1.5}, z.RawRowView(0))

	_, err = ts.Columns([]string{"gdp"})
	assert.Error(t, err)
}

func TestReadTimeSeries_NoTimeColumn(t *testing.T) {
	ts, err := ReadTimeSeries(strings.NewReader("y\n1\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, ts.Time)

	_, err = ReadTimeSeries(strings.NewReader("y,pi\n1\n"))
	assert.Error(t, err)
}
