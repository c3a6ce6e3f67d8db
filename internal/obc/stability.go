package obc

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// StabilityTol is the margin above unit modulus at which an eigenvalue
// counts as explosive.
const StabilityTol = 1e-10

// StabilityTest returns the number of explosive eigenvalues of the slack
// dynamics of v, v' = (A [Lv; I])[NX:] v, with Lv from the regime (1, 0).
func (e *Engine) StabilityTest() (int, error) {
	en := e.lookup(Regime{L: 1, K: 0})
	if !en.valid {
		return 0, fmt.Errorf("obc: stability block is rank deficient")
	}
	nx, n := e.sys.NX, e.sys.Dim()
	dv := n - nx

	stack := mat.NewDense(n, dv, nil)
	stack.Slice(0, nx, 0, dv).(*mat.Dense).Copy(en.Lv)
	for i := 0; i < dv; i++ {
		stack.Set(nx+i, i, 1)
	}
	var T mat.Dense
	T.Mul(e.sys.A, stack)

	var eig mat.Eigen
	if ok := eig.Factorize(T.Slice(nx, n, 0, dv), mat.EigenNone); !ok {
		return 0, fmt.Errorf("obc: eigen decomposition of stability block failed")
	}
	count := 0
	for _, ev := range eig.Values(nil) {
		if cmplx.Abs(ev) > 1+StabilityTol {
			count++
		}
	}
	return count, nil
}
