package compiler

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Cache is a state covariance carried across compiles, indexed by the names
// of the retained state variables.
type Cache struct {
	Names []string
	P     *mat.SymDense
}

// Reconcile re-indexes old onto names. Entries of variables present in both
// sets are copied, new variables get zero rows and columns, dropped
// variables are removed. Diagnostics are logged, never returned.
func Reconcile(old *Cache, names []string, log *zap.Logger) *Cache {
	if old == nil || old.P == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if n := old.P.SymmetricDim(); n != len(old.Names) {
		log.Warn("shape mismatch of cached P matrix, number of states seems to differ",
			zap.Int("rows", n), zap.Int("names", len(old.Names)))
	}

	pos := make(map[string]int, len(old.Names))
	for i, name := range old.Names {
		if i < old.P.SymmetricDim() {
			pos[name] = i
		}
	}
	added, kept := 0, 0
	for _, name := range names {
		if _, ok := pos[name]; ok {
			kept++
		} else {
			added++
		}
	}
	if dropped := len(pos) - kept; added > 0 && dropped > 0 {
		log.Warn("state set changed non-monotonically, cached P re-indexed by name",
			zap.Int("added", added), zap.Int("dropped", dropped))
	}

	P := mat.NewSymDense(len(names), nil)
	for i, ni := range names {
		oi, ok := pos[ni]
		if !ok {
			continue
		}
		for j := i; j < len(names); j++ {
			if oj, ok := pos[names[j]]; ok {
				P.SetSym(i, j, old.P.At(oi, oj))
			}
		}
	}
	return &Cache{Names: append([]string(nil), names...), P: P}
}
