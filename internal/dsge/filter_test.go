package dsge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/sampling"
)

func TestFilter_Preconditions(t *testing.T) {
	m := newToy(t, Options{})
	_, err := m.LogLik()
	assert.ErrorIs(t, err, ErrNoFilter)
	_, err = m.CreateObsCov(0)
	assert.ErrorIs(t, err, ErrNoData)

	mf, err := m.CreateFilter(FilterOptions{})
	require.NoError(t, err)
	_, err = mf.LogLik()
	assert.ErrorIs(t, err, ErrNoData)
	_, err = mf.RunFilter(false)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = mf.LProb(m.Par())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = m.WithData(mat.NewDense(3, 2, nil))
	assert.Error(t, err)
}

func TestCreateObsCov(t *testing.T) {
	m := newToy(t, Options{})
	m, err := m.WithData(mat.NewDense(5, 1, []float64{1, 2, 3, math.NaN(), 4}))
	require.NoError(t, err)
	m, err = m.CreateFilter(FilterOptions{})
	require.NoError(t, err)

	m2, err := m.CreateObsCov(0)
	require.NoError(t, err)
	assertSym(t, []float64{0.125}, m2.ObsCov())
	assertSym(t, []float64{0.125}, m2.Filter().R())
	assert.Nil(t, m.ObsCov())

	m3, err := m.CreateObsCov(1)
	require.NoError(t, err)
	assertSym(t, []float64{1.25}, m3.ObsCov())

	// a filter created afterwards picks the stored covariance up
	m4, err := m3.CreateFilter(FilterOptions{})
	require.NoError(t, err)
	assertSym(t, []float64{1.25}, m4.Filter().R())
}

func TestLogLik(t *testing.T) {
	m := simulated(t)
	ll1, err := m.LogLik()
	require.NoError(t, err)
	assert.False(t, math.IsInf(ll1, 0) || math.IsNaN(ll1))

	ll2, err := m.LogLik()
	require.NoError(t, err)
	assert.Equal(t, ll1, ll2, "seeded filter runs are reproducible")
}

func TestLProb(t *testing.T) {
	m := simulated(t)
	ll, err := m.LogLik()
	require.NoError(t, err)
	ms, err := sampling.Marginals(m.Def().Priors)
	require.NoError(t, err)
	lp := sampling.LogPrior(ms, []float64{0.5, 0.1})

	got, err := m.LProb(m.Par())
	require.NoError(t, err)
	assert.InDelta(t, lp+ll, got, 1e-9)

	// outside the prior support
	got, err = m.LProb([]float64{1.5, 0.1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, -1))
}

func TestRunFilter(t *testing.T) {
	m := simulated(t)
	T, _ := m.Data().Dims()

	f, err := m.RunFilter(false)
	require.NoError(t, err)
	r, c := f.Means.Dims()
	assert.Equal(t, T, r)
	assert.Equal(t, 2, c)
	assert.False(t, f.Smoothed)

	s, err := m.RunFilter(true)
	require.NoError(t, err)
	assert.True(t, s.Smoothed)
	assert.Len(t, s.Covs, T)
	// smoothing ends where filtering ends
	assert.InDelta(t, f.Means.At(T-1, 0), s.Means.At(T-1, 0), 1e-12)
}

func TestExtract(t *testing.T) {
	m := simulated(t)
	ex, err := m.Extract(ExtractOptions{ConvergedOnly: true})
	require.NoError(t, err)
	assert.True(t, ex.Converged)

	T, _ := m.Data().Dims()
	r, c := ex.Residuals.Dims()
	assert.Equal(t, T, r)
	assert.Equal(t, 1, c)
	assert.Len(t, ex.Fit, T)
	for _, d := range ex.Fit {
		assert.False(t, math.IsNaN(d))
	}
}

// Without binding regimes a deep slump cannot be matched by any regime.
func TestExtract_NotConverged(t *testing.T) {
	m := newToy(t, Options{KMax: intp(0)})
	m, err := m.WithData(mat.NewDense(3, 1, []float64{-20, -20, -20}))
	require.NoError(t, err)
	m, err = m.CreateFilter(FilterOptions{})
	require.NoError(t, err)

	ex, err := m.Extract(ExtractOptions{})
	require.NoError(t, err)
	assert.False(t, ex.Converged)

	_, err = m.Extract(ExtractOptions{ConvergedOnly: true})
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestGetPar_PriorDrawsWithLProb(t *testing.T) {
	m := simulated(t)
	res, err := m.GetPar(PriorDraw{}, GetOptions{NSamples: 4, Subset: true, TestLProb: true, Workers: 2, Seed: 9})
	require.NoError(t, err)
	require.Len(t, res.Pars, 4)
	for _, p := range res.Pars {
		lp, err := m.LProb(p)
		require.NoError(t, err)
		assert.False(t, math.IsInf(lp, 0))
	}
}
