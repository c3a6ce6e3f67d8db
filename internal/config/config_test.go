package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DSGE_MODEL", "DSGE_DATA", "DSGE_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: models/toy.yaml
data: /abs/data.csv
solver:
  l_max: 2
  k_max: 0
  reduce_sys: true
filter:
  ensemble_size: 50
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "models/toy.yaml"), cfg.Model)
	assert.Equal(t, "/abs/data.csv", cfg.Data)
	require.NotNil(t, cfg.Solver.LMax)
	assert.Equal(t, 2, *cfg.Solver.LMax)
	assert.Equal(t, 0, *cfg.Solver.KMax)
	assert.True(t, cfg.Solver.ReduceSys)
	assert.Equal(t, 1e-8, cfg.Solver.Tol, "unset keys keep their default")
	assert.Equal(t, 50, cfg.Filter.EnsembleSize)
	assert.Equal(t, 0.1, cfg.Filter.ObsScale)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DSGE_MODEL", "/env/model.yaml")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/env/model.yaml", cfg.Model)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver: [1, 2"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no model", func(c *Config) { c.Model = "" }},
		{"negative l_max", func(c *Config) { c.Solver.LMax = &neg }},
		{"negative k_max", func(c *Config) { c.Solver.KMax = &neg }},
		{"zero tol", func(c *Config) { c.Solver.Tol = 0 }},
		{"single member", func(c *Config) { c.Filter.EnsembleSize = 1 }},
		{"negative scale", func(c *Config) { c.Filter.PScale = -1 }},
		{"negative workers", func(c *Config) { c.Sampling.Workers = -2 }},
		{"negative retries", func(c *Config) { c.Sampling.MaxRetries = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Model = "toy.yaml"
			require.NoError(t, cfg.Validate())
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
