package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LeastSquares returns B minimising ||Y - X B||_F.
//
// The normal equations are tried first. When X'X is singular or badly
// conditioned the minimum-norm solution is taken from an SVD of X instead.
func LeastSquares(X, Y mat.Matrix) (*mat.Dense, error) {
	xr, _ := X.Dims()
	yr, _ := Y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("least squares: X has %d rows, Y has %d", xr, yr)
	}

	var B mat.Dense

	// First try: normal equations B = (X'X)^(-1) X'Y
	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.Dense
		xty.Mul(X.T(), Y)
		B.Mul(&xtxInv, &xty)
		return &B, nil
	}

	// Fallback: minimum-norm B from the Moore-Penrose pseudo-inverse.
	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDFullU|mat.SVDFullV); !ok {
		return nil, fmt.Errorf("least squares: X'X singular and SVD factorization failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		_, xc := X.Dims()
		_, yc := Y.Dims()
		return mat.NewDense(xc, yc, nil), nil
	}
	svd.SolveTo(&B, Y, rank)
	return &B, nil
}

// Rank returns the numerical rank of m at relative tolerance rcond.
func Rank(m mat.Matrix, rcond float64) int {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return 0
	}
	return svd.Rank(rcond)
}
