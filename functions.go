package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/config"
	"DSGE_OBC_Project/application/internal/dsge"
	"DSGE_OBC_Project/application/internal/model"
)

// --- FUNCTIONS FOR THE SUBCOMMANDS ---

// openSession compiles the configured model and, when a data file is
// configured, attaches the data, the observation covariance and a filter.
// HOW TO USE:
// s, err := openSession(cfg, logger)
// ll, err := s.model.LogLik()
func openSession(cfg *config.Config, logger *zap.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. Model definition
	def, err := model.Load(cfg.Model)
	if err != nil {
		return nil, err
	}

	// 2. Compile the calibration
	reduce, ignore := cfg.Solver.ReduceSys, cfg.Solver.IgnoreTests
	m, err := dsge.New(def, dsge.Options{
		LMax:        cfg.Solver.LMax,
		KMax:        cfg.Solver.KMax,
		Linear:      cfg.Solver.Linear,
		Tol:         cfg.Solver.Tol,
		ReduceSys:   &reduce,
		IgnoreTests: &ignore,
		StrictXBar:  cfg.Solver.StrictXBar,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: logger, model: m, states: m.Compiled().VV}
	if cfg.Data == "" {
		return s, nil
	}

	// 3. Data, observation noise and filter
	ts, err := model.LoadCSVToTimeSeries(cfg.Data)
	if err != nil {
		return nil, err
	}
	if m, err = m.WithTimeSeries(ts); err != nil {
		return nil, err
	}
	if m, err = m.CreateObsCov(cfg.Filter.ObsScale); err != nil {
		return nil, err
	}
	m, err = m.CreateFilter(dsge.FilterOptions{
		N:      cfg.Filter.EnsembleSize,
		PScale: cfg.Filter.PScale,
		Seed:   cfg.Filter.Seed,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("data loaded",
		zap.String("file", cfg.Data),
		zap.Int("periods", ts.Len()),
		zap.Strings("observables", def.Observables))
	s.model = m
	return s, nil
}

// runSys prints the compiled system.
func (s *session) runSys(w io.Writer) error {
	PrintSystem(w, s.model.Compiled())
	structural, functional, err := s.model.AsDict(s.model.Par(), 0)
	if err != nil {
		return err
	}
	PrintParams(w, structural, functional)
	return nil
}

// runFilter prints the log likelihood and the filtered, smoothed or
// extracted states.
func (s *session) runFilter(w io.Writer, o filterOptions) error {
	ll, err := s.model.LogLik()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "log likelihood: %.6f\n", ll)

	if o.Extract {
		ex, err := s.model.Extract(dsge.ExtractOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "extraction converged: %v\n", ex.Converged)
		PrintMatrix(w, "Extracted States", ex.Means)
		PrintMatrix(w, "Residuals", ex.Residuals)
		return s.write(o.Out, ex.Means, s.states)
	}

	res, err := s.model.RunFilter(o.Smooth)
	if err != nil {
		return err
	}
	title := "Filtered States"
	if res.Smoothed {
		title = "Smoothed States"
	}
	PrintMatrix(w, title, res.Means)
	return s.write(o.Out, res.Means, s.states)
}

// runIRF prints the impulse response to one shock.
func (s *session) runIRF(w io.Writer, o irfOptions) error {
	irf, ok, err := s.model.IRF(o.Shock, o.Size, o.Horizon)
	if err != nil {
		return err
	}
	PrintIRF(w, irf, s.states, o.Shock)
	for h, b := range ok {
		if !b {
			s.log.Warn("no consistent regime in impulse response", zap.Int("h", h))
		}
	}
	return s.write(o.Out, irf, s.states)
}

// runSample prints parameter vectors from a source.
func (s *session) runSample(w io.Writer, o sampleOptions) error {
	src, err := s.model.ParseSource(o.Source)
	if err != nil {
		return err
	}
	sc := s.cfg.Sampling
	res, err := s.model.GetPar(src, dsge.GetOptions{
		NSamples:    o.NSamples,
		Subset:      o.Subset,
		Seed:        sc.Seed,
		TestLProb:   sc.TestLProb,
		MaxAttempts: sc.MaxRetries,
		Workers:     sc.Workers,
	})
	if err != nil {
		return err
	}

	def := s.model.Def()
	switch {
	case res.Cov != nil:
		PrintMatrix(w, "Covariance", res.Cov)
		return nil
	case res.Pars == nil:
		fmt.Fprintf(w, "%s = %v\n", o.Source, res.Value)
		return nil
	}
	names := def.Parameters
	if o.Subset {
		names = def.PriorNames()
	}
	draws := rowsToDense(res.Pars)
	PrintMatrix(w, "Parameters "+fmt.Sprint(names), draws)
	return s.write(o.Out, draws, names)
}

// write stores m as CSV if path is set.
func (s *session) write(path string, m mat.Matrix, header []string) error {
	if path == "" {
		return nil
	}
	if err := OutputMatrixToCSV(path, m, header); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "results written to %s\n", path)
	return nil
}
