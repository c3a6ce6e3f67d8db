// Package klein separates the stable and unstable subspaces of the linear
// rational expectations system
//
//	P s_t = M s_{t-1},   s = [x; v]
//
// where the first dEndo entries x are forward looking, and returns the
// operator OME with x = OME v on the stable manifold.
//
// gonum has no QZ decomposition. The separation uses the matrix sign
// function of the Cayley transform W = (M-P)^-1 (M+P): an eigenvalue λ of
// the pencil (M v = λ P v) maps to μ = (λ+1)/(λ-1), and |λ| < 1 exactly when
// Re μ < 0. Infinite eigenvalues of a singular P map to μ = 1.
package klein

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	maxIter = 100
	signTol = 1e-12
	// singular values of the stable projector are either ~0 or >= 1
	rankCut = 0.5
)

// Solve returns OME (dEndo x n-dEndo) for the pencil (M, P). It requires
// 0 < dEndo < n.
func Solve(M, P mat.Matrix, dEndo int) (*mat.Dense, error) {
	n, c := M.Dims()
	pr, pc := P.Dims()
	if n != c || pr != n || pc != n {
		return nil, fmt.Errorf("klein: M is %dx%d and P is %dx%d, want equal square matrices", n, c, pr, pc)
	}
	if dEndo < 1 || dEndo >= n {
		return nil, fmt.Errorf("klein: %d forward looking variables in a system of size %d", dEndo, n)
	}

	// 1. Cayley transform
	var diff, sum, w mat.Dense
	diff.Sub(M, P)
	sum.Add(M, P)
	if err := w.Solve(&diff, &sum); err != nil {
		return nil, fmt.Errorf("klein: M-P singular: %w", ErrUnitRoot)
	}

	// 2. Sign function
	S, err := sign(&w)
	if err != nil {
		return nil, err
	}

	// 3. Stable projector (I - S)/2 and a basis of its range
	proj := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -S.At(i, j)
			if i == j {
				v += 1
			}
			proj.Set(i, j, v/2)
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(proj, mat.SVDThinU); !ok {
		return nil, fmt.Errorf("klein: SVD of stable projector failed")
	}
	k := 0
	for _, s := range svd.Values(nil) {
		if s > rankCut {
			k++
		}
	}
	if n-k != dEndo {
		return nil, &BKError{Unstable: n - k, Forward: dEndo}
	}
	var U mat.Dense
	svd.UTo(&U)

	// 4. OME = Zsx Zsv^-1, solved as Zsv^T Y = Zsx^T
	Zsx := U.Slice(0, dEndo, 0, k)
	Zsv := U.Slice(dEndo, n, 0, k)
	var Y mat.Dense
	if err := Y.Solve(Zsv.T(), Zsx.T()); err != nil {
		return nil, fmt.Errorf("klein: stable block not invertible: %w", &BKError{Unstable: dEndo, Forward: dEndo})
	}
	return mat.DenseCopyOf(Y.T()), nil
}

// sign computes the matrix sign function by the scaled Newton iteration
// X <- (c X + (c X)^-1) / 2 with determinant scaling c = |det X|^(-1/n).
func sign(w *mat.Dense) (*mat.Dense, error) {
	n, _ := w.Dims()
	X := mat.DenseCopyOf(w)
	scale := true
	for it := 0; it < maxIter; it++ {
		var inv mat.Dense
		if err := inv.Inverse(X); err != nil {
			return nil, fmt.Errorf("klein: sign iteration hit a singular matrix: %w", ErrUnitRoot)
		}
		c := 1.0
		if scale {
			logDet, _ := mat.LogDet(X)
			c = math.Exp(-logDet / float64(n))
			if math.IsInf(c, 0) || math.IsNaN(c) || c == 0 {
				c = 1
			}
		}
		var next mat.Dense
		next.Scale(c/2, X)
		next.Add(&next, scaled(1/(2*c), &inv))

		var d mat.Dense
		d.Sub(&next, X)
		delta := mat.Norm(&d, 1)
		size := mat.Norm(&next, 1)
		X = &next
		if delta <= signTol*size {
			return X, nil
		}
		// unscaled steps converge quadratically near the limit
		if delta < 1e-2*size {
			scale = false
		}
	}
	return nil, fmt.Errorf("klein: sign iteration did not converge in %d steps: %w", maxIter, ErrUnitRoot)
}

func scaled(f float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}
