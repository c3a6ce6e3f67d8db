package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ZeroTol is the absolute tolerance below which an entry counts as zero.
const ZeroTol = 1e-8

// Eye returns the n by n identity matrix.
func Eye(n int) *mat.Dense {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return mat.NewDense(n, n, data)
}

// Zero reports which entries of v are within tol of zero.
func Zero(v []float64, tol float64) []bool {
	res := make([]bool, len(v))
	for i, x := range v {
		res[i] = math.Abs(x) < tol
	}
	return res
}

// AllZero reports whether every entry of v is within tol of zero.
func AllZero(v []float64, tol float64) bool {
	for _, x := range v {
		if math.Abs(x) >= tol {
			return false
		}
	}
	return true
}

// ZeroCols reports which columns of m are entirely within tol of zero.
func ZeroCols(m mat.Matrix, tol float64) []bool {
	r, c := m.Dims()
	res := make([]bool, c)
	for j := 0; j < c; j++ {
		res[j] = true
		for i := 0; i < r; i++ {
			if math.Abs(m.At(i, j)) >= tol {
				res[j] = false
				break
			}
		}
	}
	return res
}

// Outer returns the outer product a b^T.
func Outer(a, b []float64) *mat.Dense {
	out := mat.NewDense(len(a), len(b), nil)
	out.Outer(1, mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
	return out
}

// DeleteCol returns a copy of m without column j.
func DeleteCol(m mat.Matrix, j int) *mat.Dense {
	r, c := m.Dims()
	if j < 0 || j >= c {
		panic(fmt.Sprintf("linalg: column %d out of range [0,%d)", j, c))
	}
	out := mat.NewDense(r, c-1, nil)
	for i := 0; i < r; i++ {
		col := 0
		for k := 0; k < c; k++ {
			if k == j {
				continue
			}
			out.Set(i, col, m.At(i, k))
			col++
		}
	}
	return out
}

// DeleteAt returns a copy of v without entry j.
func DeleteAt(v []float64, j int) []float64 {
	out := make([]float64, 0, len(v)-1)
	out = append(out, v[:j]...)
	return append(out, v[j+1:]...)
}

// Select returns the sub-matrix of m on the rows and columns marked true.
// A nil mask keeps every row (or column).
func Select(m mat.Matrix, rows, cols []bool) *mat.Dense {
	r, c := m.Dims()
	ri := indices(rows, r)
	ci := indices(cols, c)
	out := mat.NewDense(len(ri), len(ci), nil)
	for i, src := range ri {
		for j, csrc := range ci {
			out.Set(i, j, m.At(src, csrc))
		}
	}
	return out
}

// SelectVec returns the entries of v marked true in keep.
func SelectVec(v []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(v))
	for i, x := range v {
		if keep[i] {
			out = append(out, x)
		}
	}
	return out
}

// SelectNames returns the names marked true in keep.
func SelectNames(names []string, keep []bool) []string {
	out := make([]string, 0, len(names))
	for i, n := range names {
		if keep[i] {
			out = append(out, n)
		}
	}
	return out
}

// Not returns the element-wise negation of mask.
func Not(mask []bool) []bool {
	out := make([]bool, len(mask))
	for i, b := range mask {
		out[i] = !b
	}
	return out
}

// And returns the element-wise conjunction of the masks, which must share a length.
func And(masks ...[]bool) []bool {
	if len(masks) == 0 {
		return nil
	}
	out := make([]bool, len(masks[0]))
	for i := range out {
		out[i] = true
		for _, m := range masks {
			out[i] = out[i] && m[i]
		}
	}
	return out
}

// Count returns the number of true entries in mask.
func Count(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

// NANORINF checks if there are any NaN or Inf entries in matrix.
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// MulVec returns m v as a slice.
func MulVec(m mat.Matrix, v []float64) []float64 {
	r, _ := m.Dims()
	var res mat.VecDense
	res.MulVec(m, mat.NewVecDense(len(v), v))
	out := make([]float64, r)
	for i := range out {
		out[i] = res.AtVec(i)
	}
	return out
}

func indices(mask []bool, n int) []int {
	if mask == nil {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if len(mask) != n {
		panic(fmt.Sprintf("linalg: mask length %d, want %d", len(mask), n))
	}
	idx := make([]int, 0, n)
	for i, b := range mask {
		if b {
			idx = append(idx, i)
		}
	}
	return idx
}
