package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrices are the structural matrices of a model at one parameter vector.
//
// With neq = len(Variables)-1 model equations (the constraint variable is
// determined by its rule), dimV variables, nobs observables and ne shocks:
//
//	AA, BB, CC: neq x dimV   forward, contemporaneous and backward loadings
//	Constraint: 2*dimV       rule coefficients on expected and current values
//	PSI:        neq x ne     shock loading
//	ZZ:         nobs x dimV  observation loading
//	DD:         nobs         observation constant
//	QQ:         ne x ne      shock scale
type Matrices struct {
	AA, BB, CC *mat.Dense
	Constraint []float64
	PSI        *mat.Dense
	ZZ         *mat.Dense
	DD         []float64
	QQ         *mat.Dense
}

// Structure builds the structural matrices for a full parameter vector.
type Structure interface {
	Matrices(par []float64) (*Matrices, error)
}

// StructureFunc adapts a plain function to Structure.
type StructureFunc func(par []float64) (*Matrices, error)

func (f StructureFunc) Matrices(par []float64) (*Matrices, error) { return f(par) }

// Check verifies that the matrices fit a model with dimV variables, ne
// shocks and nobs observables.
func (m *Matrices) Check(dimV, ne, nobs int) error {
	neq := dimV - 1
	for _, c := range []struct {
		name string
		x    *mat.Dense
		r, c int
	}{
		{"AA", m.AA, neq, dimV},
		{"BB", m.BB, neq, dimV},
		{"CC", m.CC, neq, dimV},
		{"PSI", m.PSI, neq, ne},
		{"ZZ", m.ZZ, nobs, dimV},
		{"QQ", m.QQ, ne, ne},
	} {
		if c.x == nil {
			return fmt.Errorf("matrix %s missing", c.name)
		}
		if r, cols := c.x.Dims(); r != c.r || cols != c.c {
			return fmt.Errorf("matrix %s is %dx%d, want %dx%d", c.name, r, cols, c.r, c.c)
		}
	}
	if len(m.Constraint) != 2*dimV {
		return fmt.Errorf("constraint vector has %d entries, want %d", len(m.Constraint), 2*dimV)
	}
	if len(m.DD) != nobs {
		return fmt.Errorf("DD has %d entries, want %d", len(m.DD), nobs)
	}
	return nil
}
