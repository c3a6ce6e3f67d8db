package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds a run configuration.
type Config struct {
	// Path to the model file
	Model string `yaml:"model"`
	// CSV with one column per observable
	Data string `yaml:"data"`

	Solver   SolverConfig   `yaml:"solver"`
	Filter   FilterConfig   `yaml:"filter"`
	Sampling SamplingConfig `yaml:"sampling"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SolverConfig configures the system compiler.
type SolverConfig struct {
	// Regime search depth, unset means the default for the model
	LMax        *int    `yaml:"l_max"`
	KMax        *int    `yaml:"k_max"`
	Tol         float64 `yaml:"tol"`
	ReduceSys   bool    `yaml:"reduce_sys"`
	IgnoreTests bool    `yaml:"ignore_tests"`
	Linear      bool    `yaml:"linear"`
	StrictXBar  bool    `yaml:"strict_x_bar"`
}

// FilterConfig configures the ensemble filter.
type FilterConfig struct {
	// Zero means five members per state
	EnsembleSize int     `yaml:"ensemble_size"`
	PScale       float64 `yaml:"p_scale"`
	ObsScale     float64 `yaml:"obs_scale"`
	Seed         uint64  `yaml:"seed"`
}

// SamplingConfig configures prior sampling.
type SamplingConfig struct {
	Workers int    `yaml:"workers"`
	Seed    uint64 `yaml:"seed"`
	// Zero retries until a draw is accepted
	MaxRetries int  `yaml:"max_retries"`
	TestLProb  bool `yaml:"test_lprob"`
	NSamples   int  `yaml:"nsamples"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Tol: 1e-8,
		},
		Filter: FilterConfig{
			PScale:   10,
			ObsScale: 0.1,
		},
		Sampling: SamplingConfig{
			Workers:  runtime.NumCPU(),
			NSamples: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a configuration from a YAML file on top of the defaults.
// Relative model and data paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	dir := filepath.Dir(path)
	cfg.Model = resolve(dir, cfg.Model)
	cfg.Data = resolve(dir, cfg.Data)
	cfg.applyEnvOverrides()
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("DSGE_MODEL"); p != "" {
		c.Model = p
	}
	if p := os.Getenv("DSGE_DATA"); p != "" {
		c.Data = p
	}
	if l := os.Getenv("DSGE_LOG_LEVEL"); l != "" {
		c.Logging.Level = l
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("no model file configured")
	}
	if c.Solver.LMax != nil && *c.Solver.LMax < 0 {
		return fmt.Errorf("invalid l_max: %d", *c.Solver.LMax)
	}
	if c.Solver.KMax != nil && *c.Solver.KMax < 0 {
		return fmt.Errorf("invalid k_max: %d", *c.Solver.KMax)
	}
	if !(c.Solver.Tol > 0) {
		return fmt.Errorf("invalid tol: %v (must be > 0)", c.Solver.Tol)
	}
	if c.Filter.EnsembleSize < 0 || c.Filter.EnsembleSize == 1 {
		return fmt.Errorf("invalid ensemble_size: %d", c.Filter.EnsembleSize)
	}
	if c.Filter.PScale < 0 || c.Filter.ObsScale < 0 {
		return fmt.Errorf("invalid filter scales: p_scale=%v obs_scale=%v", c.Filter.PScale, c.Filter.ObsScale)
	}
	if c.Sampling.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", c.Sampling.Workers)
	}
	if c.Sampling.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries: %d", c.Sampling.MaxRetries)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}
