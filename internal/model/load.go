package model

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ordered decodes a YAML mapping while keeping the key order of the file.
type ordered[T any] struct {
	keys []string
	vals []T
}

func (o *ordered[T]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if seen[key] {
			return fmt.Errorf("line %d: duplicate key %q", value.Content[i].Line, key)
		}
		seen[key] = true
		var v T
		if err := value.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		o.keys = append(o.keys, key)
		o.vals = append(o.vals, v)
	}
	return nil
}

type priorSpec struct {
	Dist string   `yaml:"dist"`
	Mean float64  `yaml:"mean"`
	Std  float64  `yaml:"std"`
	Init *float64 `yaml:"init"`
}

type matrixSpec struct {
	AA  [][]Expr `yaml:"AA"`
	BB  [][]Expr `yaml:"BB"`
	CC  [][]Expr `yaml:"CC"`
	Bb  []Expr   `yaml:"bb"`
	PSI [][]Expr `yaml:"PSI"`
	ZZ  [][]Expr `yaml:"ZZ"`
	DD  []Expr   `yaml:"DD"`
	QQ  [][]Expr `yaml:"QQ"`
}

type modelFile struct {
	Name        string             `yaml:"name"`
	Variables   []string           `yaml:"variables"`
	Constraint  string             `yaml:"constraint"`
	Shocks      []string           `yaml:"shocks"`
	Observables []string           `yaml:"observables"`
	Parameters  ordered[float64]   `yaml:"parameters"`
	ParaFunc    ordered[Expr]      `yaml:"parafunc"`
	Priors      ordered[priorSpec] `yaml:"priors"`
	Matrices    matrixSpec         `yaml:"matrices"`
	Mode        []float64          `yaml:"mode"`
	MCMCMode    []float64          `yaml:"mcmc_mode"`
}

// Load reads a model definition from a YAML file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// Parse builds a Model from the YAML text of a model file.
func Parse(data []byte) (*Model, error) {
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}

	m := &Model{
		Name:        f.Name,
		Variables:   f.Variables,
		ConstVar:    f.Constraint,
		Shocks:      f.Shocks,
		Observables: f.Observables,
		Parameters:  f.Parameters.keys,
		Calibration: f.Parameters.vals,
		ModeX:       f.Mode,
		MCMCModeX:   f.MCMCMode,
	}
	for i, name := range f.Priors.keys {
		ps := f.Priors.vals[i]
		d, err := ParseDist(ps.Dist)
		if err != nil {
			return nil, fmt.Errorf("prior on %q: %w", name, err)
		}
		m.Priors = append(m.Priors, Prior{Name: name, Dist: d, Mean: ps.Mean, Std: ps.Std, Init: ps.Init})
	}

	// Every identifier must be a parameter or an earlier functional parameter.
	known := make(map[string]bool, len(m.Parameters)+len(f.ParaFunc.keys))
	for _, p := range m.Parameters {
		known[p] = true
	}
	for i, name := range f.ParaFunc.keys {
		if err := checkNames(f.ParaFunc.vals[i], known); err != nil {
			return nil, fmt.Errorf("parafunc %q: %w", name, err)
		}
		known[name] = true
	}
	if err := f.Matrices.defaults(m); err != nil {
		return nil, err
	}
	for _, e := range f.Matrices.all() {
		if err := checkNames(e, known); err != nil {
			return nil, err
		}
	}

	pf := newParaFunc(m.Parameters, f.ParaFunc.keys, f.ParaFunc.vals)
	m.ParaFunc = pf
	m.Structure = &exprStructure{spec: f.Matrices, params: m.Parameters, pf: pf}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func checkNames(e Expr, known map[string]bool) error {
	for _, n := range e.Names() {
		if !known[n] {
			return fmt.Errorf("%q in %q: %w", n, e.String(), ErrMissingParaFunc)
		}
	}
	return nil
}

// defaults fills an omitted ZZ with the selection of the observables among
// the variables, an omitted DD with zeros and an omitted QQ with the identity.
func (s *matrixSpec) defaults(m *Model) error {
	if s.ZZ == nil {
		s.ZZ = make([][]Expr, len(m.Observables))
		for i, o := range m.Observables {
			s.ZZ[i] = make([]Expr, len(m.Variables))
			found := false
			for j, v := range m.Variables {
				if v == o {
					s.ZZ[i][j] = Const(1)
					found = true
				} else {
					s.ZZ[i][j] = Const(0)
				}
			}
			if !found {
				return fmt.Errorf("observable %q is not a variable and ZZ is not given", o)
			}
		}
	}
	if s.DD == nil {
		s.DD = make([]Expr, len(m.Observables))
		for i := range s.DD {
			s.DD[i] = Const(0)
		}
	}
	if s.QQ == nil {
		s.QQ = make([][]Expr, len(m.Shocks))
		for i := range s.QQ {
			s.QQ[i] = make([]Expr, len(m.Shocks))
			for j := range s.QQ[i] {
				s.QQ[i][j] = Const(0)
			}
			s.QQ[i][i] = Const(1)
		}
	}
	return nil
}

func (s *matrixSpec) all() []Expr {
	var out []Expr
	for _, m := range [][][]Expr{s.AA, s.BB, s.CC, s.PSI, s.ZZ, s.QQ} {
		for _, row := range m {
			out = append(out, row...)
		}
	}
	out = append(out, s.Bb...)
	return append(out, s.DD...)
}

func newParaFunc(params, names []string, exprs []Expr) ParaFunc {
	if len(names) == 0 {
		return ParaFunc{}
	}
	return ParaFunc{
		Names: names,
		Eval: func(par []float64) ([]float64, error) {
			if len(par) != len(params) {
				return nil, fmt.Errorf("parafunc: got %d parameters, want %d", len(par), len(params))
			}
			env := make(map[string]float64, len(params)+len(names))
			for i, p := range params {
				env[p] = par[i]
			}
			out := make([]float64, len(names))
			for i, e := range exprs {
				v, err := e.Eval(func(n string) (float64, bool) {
					x, ok := env[n]
					return x, ok
				})
				if err != nil {
					return nil, fmt.Errorf("parafunc %q: %w", names[i], err)
				}
				out[i] = v
				env[names[i]] = v
			}
			return out, nil
		},
	}
}

// exprStructure evaluates the matrices of a model file.
type exprStructure struct {
	spec   matrixSpec
	params []string
	pf     ParaFunc
}

func (s *exprStructure) Matrices(par []float64) (*Matrices, error) {
	if len(par) != len(s.params) {
		return nil, fmt.Errorf("got %d parameters, want %d", len(par), len(s.params))
	}
	env := make(map[string]float64, len(par)+len(s.pf.Names))
	for i, p := range s.params {
		env[p] = par[i]
	}
	if s.pf.Eval != nil {
		vals, err := s.pf.Eval(par)
		if err != nil {
			return nil, err
		}
		for i, n := range s.pf.Names {
			env[n] = vals[i]
		}
	}
	res := func(n string) (float64, bool) {
		v, ok := env[n]
		return v, ok
	}

	var (
		m   Matrices
		err error
	)
	for _, t := range []struct {
		name string
		dst  **mat.Dense
		src  [][]Expr
	}{
		{"AA", &m.AA, s.spec.AA},
		{"BB", &m.BB, s.spec.BB},
		{"CC", &m.CC, s.spec.CC},
		{"PSI", &m.PSI, s.spec.PSI},
		{"ZZ", &m.ZZ, s.spec.ZZ},
		{"QQ", &m.QQ, s.spec.QQ},
	} {
		if *t.dst, err = evalDense(t.src, res); err != nil {
			return nil, fmt.Errorf("matrix %s: %w", t.name, err)
		}
	}
	if m.Constraint, err = evalVec(s.spec.Bb, res); err != nil {
		return nil, fmt.Errorf("constraint: %w", err)
	}
	if m.DD, err = evalVec(s.spec.DD, res); err != nil {
		return nil, fmt.Errorf("matrix DD: %w", err)
	}
	return &m, nil
}

func evalDense(rows [][]Expr, r Resolver) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d entries, want %d", i, len(row), c)
		}
		for _, e := range row {
			v, err := e.Eval(r)
			if err != nil {
				return nil, err
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(rows), c, data), nil
}

func evalVec(v []Expr, r Resolver) ([]float64, error) {
	out := make([]float64, len(v))
	for i, e := range v {
		x, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
