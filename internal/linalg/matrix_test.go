package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestZeroCols(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		0, 1e-9, 1,
		0, 0, 0,
	})
	assert.Equal(t, []bool{true, true, false}, ZeroCols(m, ZeroTol))
	assert.Equal(t, []bool{false, true}, Zero([]float64{1e-3, -1e-10}, ZeroTol))
	assert.True(t, AllZero([]float64{0, 1e-9}, ZeroTol))
	assert.False(t, AllZero([]float64{0, 1e-7}, ZeroTol))
}

func TestDeleteAndSelect(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	d := DeleteCol(m, 1)
	assert.Equal(t, []float64{1, 3, 4, 6}, d.RawMatrix().Data)

	s := Select(m, []bool{false, true}, []bool{true, false, true})
	r, c := s.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 2, c)
	assert.Equal(t, []float64{4, 6}, s.RawMatrix().Data)

	all := Select(m, nil, nil)
	assert.True(t, mat.Equal(m, all))

	assert.Equal(t, []float64{1, 3}, DeleteAt([]float64{1, 2, 3}, 1))
	assert.Equal(t, []float64{2}, SelectVec([]float64{1, 2, 3}, []bool{false, true, false}))
	assert.Equal(t, []string{"a", "c"}, SelectNames([]string{"a", "b", "c"}, []bool{true, false, true}))
}

func TestMasks(t *testing.T) {
	a := []bool{true, true, false}
	b := []bool{true, false, false}
	assert.Equal(t, []bool{true, false, false}, And(a, b))
	assert.Equal(t, []bool{false, false, true}, Not(a))
	assert.Equal(t, 2, Count(a))
}

func TestOuterAndEye(t *testing.T) {
	o := Outer([]float64{1, 2}, []float64{3, 4, 5})
	assert.Equal(t, []float64{3, 4, 5, 6, 8, 10}, o.RawMatrix().Data)

	I := Eye(3)
	assert.Equal(t, 1.0, I.At(2, 2))
	assert.Equal(t, 0.0, I.At(0, 2))
	assert.Equal(t, []float64{3, 4}, MulVec(I.Slice(0, 2, 0, 2), []float64{3, 4}))
}

func TestNANORINF(t *testing.T) {
	assert.False(t, NANORINF(mat.NewDense(1, 2, []float64{1, 2})))
	assert.True(t, NANORINF(mat.NewDense(1, 2, []float64{1, math.Inf(1)})))
	assert.True(t, NANORINF(mat.NewDense(1, 2, []float64{math.NaN(), 2})))
}

// y = 2 x exactly, so the normal equations recover the slope.
func TestLeastSquares_NormalEquations(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	Y := mat.NewDense(3, 1, []float64{2, 4, 6})

	B, err := LeastSquares(X, Y)
	require.NoError(t, err)
	if !almostEqual(B.At(0, 0), 2, 1e-10) {
		t.Errorf("slope = %v, want 2", B.At(0, 0))
	}
}

// Collinear regressors make X'X singular and force the SVD path: the
// minimum-norm solution splits the slope evenly across both columns.
func TestLeastSquares_PseudoinverseFallback(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
	})
	Y := mat.NewDense(3, 1, []float64{2, 4, 6})

	B, err := LeastSquares(X, Y)
	require.NoError(t, err)
	for j := 0; j < 2; j++ {
		if !almostEqual(B.At(j, 0), 1, 1e-8) {
			t.Errorf("B[%d] = %v, want 1", j, B.At(j, 0))
		}
	}
}

// All-zero regressors have rank zero; the solution is zero instead of a panic.
func TestLeastSquares_AllZero(t *testing.T) {
	X := mat.NewDense(3, 1, nil)
	Y := mat.NewDense(3, 1, []float64{0, 0, 0})

	B, err := LeastSquares(X, Y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, B.At(0, 0))
}

func TestLeastSquares_RowMismatch(t *testing.T) {
	_, err := LeastSquares(mat.NewDense(2, 1, nil), mat.NewDense(3, 1, nil))
	require.Error(t, err)
}

func TestRank(t *testing.T) {
	assert.Equal(t, 1, Rank(mat.NewDense(2, 2, []float64{1, 2, 2, 4}), 1e-12))
	assert.Equal(t, 2, Rank(Eye(2), 1e-12))
}
