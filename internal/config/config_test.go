package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QUNFOLD_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "annealing", cfg.Solver)
	assert.Equal(t, 4, cfg.BitsPerBin)
	assert.Equal(t, "none", cfg.RegForm)
	assert.Equal(t, 1000, cfg.SweepCount)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUNFOLD_DATA_DIR", t.TempDir())
	t.Setenv("QUNFOLD_SOLVER", "exact")
	t.Setenv("QUNFOLD_BITS_PER_BIN", "6")
	t.Setenv("QUNFOLD_REG_FORM", "smoothness")
	t.Setenv("QUNFOLD_REG_STRENGTH", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "exact", cfg.Solver)
	assert.Equal(t, 6, cfg.BitsPerBin)
	assert.Equal(t, "smoothness", cfg.RegForm)
	assert.Equal(t, 0.5, cfg.RegStrength)
}

func TestLoad_RejectsUnknownSolver(t *testing.T) {
	t.Setenv("QUNFOLD_DATA_DIR", t.TempDir())
	t.Setenv("QUNFOLD_SOLVER", "quantum")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AnnealerNeedsURL(t *testing.T) {
	t.Setenv("QUNFOLD_DATA_DIR", t.TempDir())
	t.Setenv("QUNFOLD_SOLVER", "annealer")
	t.Setenv("ANNEALER_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_DerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUNFOLD_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.DataDir, "distributions"), cfg.DistributionsDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, "runs.db"), cfg.RunsDBPath())
}
