// Package dsge ties a model definition to its compiled system and exposes
// the parameter store and the filtering layer on top of it.
//
// A *Model is immutable: every operation that changes parameters, data or the
// filter returns a new value, so independent goroutines can work from one
// Model without coordination.
package dsge

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/compiler"
	"DSGE_OBC_Project/application/internal/enkf"
	"DSGE_OBC_Project/application/internal/model"
	"DSGE_OBC_Project/application/internal/sampling"
)

// Options control a (re)compile. Nil flags reuse the value remembered from
// the previous compile.
type Options struct {
	LMax, KMax  *int
	Linear      bool
	Tol         float64
	ReduceSys   *bool
	IgnoreTests *bool
	StrictXBar  bool
	// Logger is only read by New.
	Logger *zap.Logger
}

type settings struct {
	tol         float64
	reduceSys   bool
	ignoreTests bool
	strictXBar  bool
}

func (s settings) merge(o Options) settings {
	if o.Tol != 0 {
		s.tol = o.Tol
	}
	if o.ReduceSys != nil {
		s.reduceSys = *o.ReduceSys
	}
	if o.IgnoreTests != nil {
		s.ignoreTests = *o.IgnoreTests
	}
	s.strictXBar = s.strictXBar || o.StrictXBar
	return s
}

// Model is a compiled model value.
type Model struct {
	def  *model.Model
	comp *compiler.Compiled
	set  settings

	priors []sampling.Marginal

	filter *enkf.Filter
	fopts  FilterOptions
	obsCov *mat.SymDense
	data   *mat.Dense
	chain  *sampling.Chain

	log *zap.Logger
}

// New compiles the calibration of def.
func New(def *model.Model, opts Options) (*Model, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	priors, err := sampling.Marginals(def.Priors)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", def.Name, err)
	}
	m := &Model{def: def, priors: priors, log: log}
	return m.compile(def.Calibration, opts)
}

// Def returns the model definition.
func (m *Model) Def() *model.Model { return m.def }

// Compiled returns the compiled system of the current parameters.
func (m *Model) Compiled() *compiler.Compiled { return m.comp }

// Par returns a copy of the current structural parameters.
func (m *Model) Par() []float64 { return append([]float64(nil), m.comp.Par...) }

// Filter returns a copy of the attached filter, or nil.
func (m *Model) Filter() *enkf.Filter {
	if m.filter == nil {
		return nil
	}
	return m.filter.Clone()
}

// Data returns the attached observations, or nil.
func (m *Model) Data() *mat.Dense { return m.data }

// WithData attaches T x nobs observations ordered as the observables.
func (m *Model) WithData(Z *mat.Dense) (*Model, error) {
	if _, c := Z.Dims(); c != len(m.def.Observables) {
		return nil, fmt.Errorf("data has %d columns, model has %d observables", c, len(m.def.Observables))
	}
	next := *m
	next.data = mat.DenseCopyOf(Z)
	return &next, nil
}

// WithTimeSeries attaches the observable columns of ts.
func (m *Model) WithTimeSeries(ts *model.TimeSeries) (*Model, error) {
	Z, err := ts.Columns(m.def.Observables)
	if err != nil {
		return nil, err
	}
	return m.WithData(Z)
}

// WithChain attaches a posterior chain over the estimated parameters.
func (m *Model) WithChain(c *sampling.Chain) *Model {
	next := *m
	next.chain = c
	return &next
}

// compile builds the system at par and carries the filter over to it.
func (m *Model) compile(par []float64, o Options) (*Model, error) {
	set := m.set.merge(o)
	co := compiler.Options{
		LMax:        o.LMax,
		KMax:        o.KMax,
		Linear:      o.Linear,
		Tol:         set.tol,
		ReduceSys:   set.reduceSys,
		IgnoreTests: set.ignoreTests,
		StrictXBar:  set.strictXBar,
		Logger:      m.log,
	}
	if m.comp != nil {
		prev := m.comp.Depth
		co.Prev = &prev
	}
	if m.filter != nil {
		co.Cache = &compiler.Cache{Names: m.comp.VV, P: m.filter.P()}
	}
	comp, err := compiler.Compile(m.def, par, co)
	if err != nil {
		return nil, err
	}

	next := *m
	next.comp = comp
	next.set = set
	if m.filter != nil {
		f, err := next.buildFilter(m.fopts, comp.Cache)
		if err != nil {
			return nil, err
		}
		next.filter = f
	}
	return &next, nil
}
