// Package obc simulates a reduced linear system under an occasionally
// binding constraint.
//
// The state is s = [x; v] with NX forward looking entries first. The
// constrained variable follows r = max(XBar, B·s) on the pre-transition
// state. When B·s < XBar the constraint binds and s' = N s + CX, otherwise
// s' = A s. Expectations are pinned down by the requirement that the state
// eventually returns to the stable manifold J s = 0 of the slack system.
package obc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// System is the compiled transition system.
type System struct {
	N, A *mat.Dense // n x n
	J    *mat.Dense // rows x n selection of the stable manifold
	CX   []float64
	B    []float64
	XBar float64
	NX   int
}

// Dim returns the length of the full state s.
func (s *System) Dim() int {
	n, _ := s.N.Dims()
	return n
}

// DimV returns the length of the observable part v.
func (s *System) DimV() int { return s.Dim() - s.NX }

// Check validates the dimensions of the system.
func (s *System) Check() error {
	if s.N == nil || s.A == nil || s.J == nil {
		return fmt.Errorf("obc: incomplete system")
	}
	n, c := s.N.Dims()
	if n != c {
		return fmt.Errorf("obc: N is %dx%d, want square", n, c)
	}
	if r, c := s.A.Dims(); r != n || c != n {
		return fmt.Errorf("obc: A is %dx%d, want %dx%d", r, c, n, n)
	}
	if _, c := s.J.Dims(); c != n {
		return fmt.Errorf("obc: J has %d columns, want %d", c, n)
	}
	if len(s.CX) != n || len(s.B) != n {
		return fmt.Errorf("obc: len(cx)=%d len(b)=%d, want %d", len(s.CX), len(s.B), n)
	}
	if s.NX < 1 || s.NX >= n {
		return fmt.Errorf("obc: %d forward looking states in a system of size %d", s.NX, n)
	}
	return nil
}
