package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foragerfit/internal/fitting"
	"foragerfit/internal/tuning"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	settings, err := cfg.FitSettings()
	require.NoError(t, err)
	assert.Equal(t, fitting.DefaultSettings().DE, settings.DE)
	assert.IsType(t, tuning.FixedAttemptPolicy{}, settings.PolishPolicy)
	defaults := fitting.DefaultSettings()
	assert.Equal(t, defaults.PolishSteps, settings.PolishSteps)
	assert.Equal(t, defaults.PolishStepSize, settings.PolishStepSize)
	assert.Equal(t, defaults.PolishAnnealing, settings.PolishAnnealing)
	assert.Equal(t, defaults.PolishCandidateSelection, settings.PolishCandidateSelection)

	method, err := cfg.Method()
	require.NoError(t, err)
	assert.Equal(t, fitting.MethodDE, method)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foragerfit.yaml")
	yml := `
storage:
  backend: memory
fit:
  method: local
  models: [1, 5, 12]
  k_fold: 5
group:
  contrast: true
fullq:
  epsilon: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []int{1, 5, 12}, cfg.Fit.Models)
	assert.Equal(t, 5, cfg.Fit.KFold)
	assert.True(t, cfg.Group.Contrast)
	assert.Equal(t, 12, cfg.Group.ReferenceModel)
	assert.Equal(t, 30, cfg.Group.BlockSwitch.MinBlockLength)
	require.NotNil(t, cfg.FullQ.Epsilon)
	assert.Equal(t, 0.1, *cfg.FullQ.Epsilon)
	assert.Equal(t, 16, cfg.Fit.DE.PopSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORAGERFIT_STORE", "memory")
	t.Setenv("FORAGERFIT_DB_PATH", "/tmp/x.db")
	t.Setenv("FORAGERFIT_WORKERS", "3")
	t.Setenv("FORAGERFIT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.DBPath)
	assert.Equal(t, 3, cfg.Fit.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv("FORAGERFIT_WORKERS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"backend":  func(c *Config) { c.Storage.Backend = "redis" },
		"db path":  func(c *Config) { c.Storage.DBPath = "" },
		"method":   func(c *Config) { c.Fit.Method = "bfgs" },
		"k fold":   func(c *Config) { c.Fit.KFold = 1 },
		"policy":   func(c *Config) { c.Fit.PolishPolicy = "adaptive" },
		"de":       func(c *Config) { c.Fit.DE.PopSize = 0 },
		"select":   func(c *Config) { c.Fit.PolishCandidateSelection = "bogus" },
		"steps":    func(c *Config) { c.Fit.PolishSteps = 0 },
		"margin":   func(c *Config) { c.Fit.PolishMinImprovement = -1 },
		"no fullq": func(c *Config) { c.FullQ.SoftmaxTemperature = nil },
		"align":    func(c *Config) { c.Group.BlockSwitch.NormTrial = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Fit.Models = []int{2, 3}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Fit, loaded.Fit)
	assert.Equal(t, cfg.Group, loaded.Group)
}

func TestPolishBlockReachesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foragerfit.yaml")
	yml := `
fit:
  polish_steps: 4
  polish_step_size: 0.1
  polish_annealing: 0.5
  polish_min_improvement: 0.01
  polish_candidate_selection: dynamic_random
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	settings, err := cfg.FitSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, settings.PolishSteps)
	assert.Equal(t, 0.1, settings.PolishStepSize)
	assert.Equal(t, 0.5, settings.PolishAnnealing)
	assert.Equal(t, 0.01, settings.PolishMinImprovement)
	assert.Equal(t, tuning.CandidateSelectDynamic, settings.PolishCandidateSelection)
}
