// Package config loads foragerctl settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"foragerfit/internal/evo"
	"foragerfit/internal/fitting"
	"foragerfit/internal/fullstateq"
	"foragerfit/internal/group"
	"foragerfit/internal/tuning"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Fit     FitConfig     `yaml:"fit"`
	Group   group.Options `yaml:"group"`
	FullQ   FullQConfig   `yaml:"fullq"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	DBPath  string `yaml:"db_path"`
}

type FitConfig struct {
	Method string `yaml:"method"` // DE, local
	// Models are 1-based default catalog indices; empty means all.
	Models      []int `yaml:"models,omitempty"`
	PatchModels []int `yaml:"patch_models,omitempty"`
	KFold       int   `yaml:"k_fold"`
	Workers     int   `yaml:"workers"`
	Seed        int64 `yaml:"seed"`

	DE                       DEConfig `yaml:"de"`
	Polish                   bool     `yaml:"polish"`
	PolishAttempts           int      `yaml:"polish_attempts"`
	PolishPolicy             string   `yaml:"polish_policy"`
	PolishPolicyParam        float64  `yaml:"polish_policy_param"`
	PolishSteps              int      `yaml:"polish_steps"`
	PolishStepSize           float64  `yaml:"polish_step_size"`
	PolishAnnealing          float64  `yaml:"polish_annealing"`
	PolishMinImprovement     float64  `yaml:"polish_min_improvement"`
	PolishCandidateSelection string   `yaml:"polish_candidate_selection"` // best_so_far, original, recent, dynamic, dynamic_random
	LocalStarts              int      `yaml:"local_starts"`
	LocalMaxEvaluations      int      `yaml:"local_max_evaluations"`
}

type DEConfig struct {
	PopSize     int     `yaml:"pop_size"`
	MaxIter     int     `yaml:"max_iter"`
	Tol         float64 `yaml:"tol"`
	Atol        float64 `yaml:"atol"`
	MutationMin float64 `yaml:"mutation_min"`
	MutationMax float64 `yaml:"mutation_max"`
	Crossover   float64 `yaml:"crossover"`
}

type FullQConfig struct {
	Trials             int      `yaml:"trials"`
	Arms               int      `yaml:"arms"`
	MaxRunLength       float64  `yaml:"max_run_length"`
	DiscountRate       float64  `yaml:"discount_rate"`
	LearnRate          float64  `yaml:"learn_rate"`
	SoftmaxTemperature *float64 `yaml:"softmax_temperature,omitempty"`
	Epsilon            *float64 `yaml:"epsilon,omitempty"`
	Seed               int64    `yaml:"seed"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

func DefaultConfig() *Config {
	de := evo.DefaultDEConfig()
	fitDefaults := fitting.DefaultSettings()
	q := fullstateq.DefaultConfig()
	temp := 0.2
	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			DBPath:  "data/foragerfit.db",
		},
		Fit: FitConfig{
			Method:  fitting.MethodDE.String(),
			KFold:   2,
			Workers: 0,
			Seed:    fitDefaults.Seed,
			DE: DEConfig{
				PopSize:     de.PopSize,
				MaxIter:     de.MaxIter,
				Tol:         de.Tol,
				Atol:        de.Atol,
				MutationMin: de.MutationMin,
				MutationMax: de.MutationMax,
				Crossover:   de.Crossover,
			},
			Polish:                   fitDefaults.Polish,
			PolishAttempts:           fitDefaults.PolishAttempts,
			PolishPolicy:             "fixed",
			PolishSteps:              fitDefaults.PolishSteps,
			PolishStepSize:           fitDefaults.PolishStepSize,
			PolishAnnealing:          fitDefaults.PolishAnnealing,
			PolishMinImprovement:     fitDefaults.PolishMinImprovement,
			PolishCandidateSelection: fitDefaults.PolishCandidateSelection,
			LocalStarts:              fitDefaults.LocalStarts,
			LocalMaxEvaluations:      fitDefaults.LocalMaxEvaluations,
		},
		Group: group.DefaultOptions(),
		FullQ: FullQConfig{
			Trials:             1000,
			Arms:               q.Arms,
			MaxRunLength:       q.MaxRunLength,
			DiscountRate:       q.DiscountRate,
			LearnRate:          q.LearnRate,
			SoftmaxTemperature: &temp,
			Seed:               1,
		},
		Output: OutputConfig{
			Dir:    "results",
			Prefix: "model_comparison_",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("FORAGERFIT_STORE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("FORAGERFIT_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("FORAGERFIT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORAGERFIT_WORKERS: %w", err)
		}
		c.Fit.Workers = n
	}
	if v := os.Getenv("FORAGERFIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (valid: memory, sqlite)", c.Storage.Backend)
	}
	if _, err := fitting.ParseMethod(c.Fit.Method); err != nil {
		return err
	}
	if c.Fit.KFold < 2 {
		return fmt.Errorf("fit.k_fold must be >= 2, got %d", c.Fit.KFold)
	}
	if c.Fit.Workers < 0 {
		return fmt.Errorf("fit.workers must be >= 0, got %d", c.Fit.Workers)
	}
	if _, err := c.FitSettings(); err != nil {
		return err
	}
	if err := c.Group.BlockSwitch.Validate(); err != nil {
		return err
	}
	if _, err := c.FullQ.LearnerConfig(); err != nil {
		return err
	}
	return nil
}

// Method returns the parsed fitting method.
func (c *Config) Method() (fitting.Method, error) {
	return fitting.ParseMethod(c.Fit.Method)
}

// FitSettings converts the YAML fit block into engine settings.
func (c *Config) FitSettings() (fitting.Settings, error) {
	policy, err := tuning.AttemptPolicyFromConfig(c.Fit.PolishPolicy, c.Fit.PolishPolicyParam)
	if err != nil {
		return fitting.Settings{}, err
	}
	de := evo.DEConfig{
		PopSize:     c.Fit.DE.PopSize,
		MaxIter:     c.Fit.DE.MaxIter,
		Tol:         c.Fit.DE.Tol,
		Atol:        c.Fit.DE.Atol,
		MutationMin: c.Fit.DE.MutationMin,
		MutationMax: c.Fit.DE.MutationMax,
		Crossover:   c.Fit.DE.Crossover,
		Seed:        c.Fit.Seed,
	}
	if err := de.Validate(); err != nil {
		return fitting.Settings{}, err
	}
	if err := tuning.ValidateCandidateSelection(c.Fit.PolishCandidateSelection); err != nil {
		return fitting.Settings{}, err
	}
	if c.Fit.Polish && (c.Fit.PolishSteps <= 0 || c.Fit.PolishStepSize <= 0) {
		return fitting.Settings{}, fmt.Errorf("fit.polish_steps and fit.polish_step_size must be > 0 when polishing")
	}
	if c.Fit.PolishAnnealing < 0 || c.Fit.PolishMinImprovement < 0 {
		return fitting.Settings{}, fmt.Errorf("fit.polish_annealing and fit.polish_min_improvement must be >= 0")
	}
	return fitting.Settings{
		DE:                       de,
		Polish:                   c.Fit.Polish,
		PolishAttempts:           c.Fit.PolishAttempts,
		PolishPolicy:             policy,
		PolishSteps:              c.Fit.PolishSteps,
		PolishStepSize:           c.Fit.PolishStepSize,
		PolishAnnealing:          c.Fit.PolishAnnealing,
		PolishMinImprovement:     c.Fit.PolishMinImprovement,
		PolishCandidateSelection: c.Fit.PolishCandidateSelection,
		LocalStarts:              c.Fit.LocalStarts,
		LocalMaxEvaluations:      c.Fit.LocalMaxEvaluations,
		Seed:                     c.Fit.Seed,
	}, nil
}

// LearnerConfig converts the fullq block, leaving Rand unset.
func (q FullQConfig) LearnerConfig() (fullstateq.Config, error) {
	cfg := fullstateq.Config{
		Arms:               q.Arms,
		MaxRunLength:       q.MaxRunLength,
		DiscountRate:       q.DiscountRate,
		LearnRate:          q.LearnRate,
		SoftmaxTemperature: q.SoftmaxTemperature,
		Epsilon:            q.Epsilon,
	}
	if q.Trials < 0 {
		return fullstateq.Config{}, fmt.Errorf("fullq.trials must be >= 0, got %d", q.Trials)
	}
	return cfg, cfg.Validate()
}
