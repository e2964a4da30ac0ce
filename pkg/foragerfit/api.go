// Package foragerfit is the public facade over the batch model-comparison
// pipeline.
package foragerfit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"go.uber.org/zap"

	"foragerfit/internal/comparison"
	"foragerfit/internal/dataset"
	"foragerfit/internal/evo"
	"foragerfit/internal/fitting"
	"foragerfit/internal/fullstateq"
	"foragerfit/internal/group"
	"foragerfit/internal/model"
	"foragerfit/internal/platform"
	"foragerfit/internal/stats"
	"foragerfit/internal/storage"
	"foragerfit/internal/task"
)

const defaultDBPath = "foragerfit.db"

type Options struct {
	StoreKind string
	DBPath    string
	Workers   int
	Logger    *zap.Logger
	Method    fitting.Method
	Settings  *fitting.Settings
	Models    []int
	KFold     int
}

type Client struct {
	store  storage.Store
	pool   *evo.Pool
	runner *platform.Runner
	logger *zap.Logger
}

type BatchSummary struct {
	RunID     string
	Succeeded []string
	Failed    []string
	OutputDir string

	// Files lists the artifacts written under OutputDir.
	Files []string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.StoreKind == "" {
		opts.StoreKind = "memory"
	}
	if opts.StoreKind == "sqlite" && opts.DBPath == "" {
		opts.DBPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := fitting.DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	store, err := storage.NewStore(opts.StoreKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	pool := evo.NewPool(opts.Workers)
	runner, err := platform.NewRunner(platform.Config{
		Store:    store,
		Engine:   fitting.NewEngine(fitting.WithLogger(logger)),
		Pool:     pool,
		Logger:   logger,
		Method:   opts.Method,
		Settings: settings,
		Models:   opts.Models,
		KFold:    opts.KFold,
	})
	if err != nil {
		return nil, err
	}
	if err := runner.Init(ctx); err != nil {
		_ = pool.Close()
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return &Client{store: store, pool: pool, runner: runner, logger: logger}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	poolErr := c.pool.Close()
	if err := storage.CloseIfSupported(c.store); err != nil {
		return err
	}
	return poolErr
}

func summary(report platform.BatchReport, dir string) BatchSummary {
	return BatchSummary{
		RunID:     report.RunID,
		Succeeded: append([]string(nil), report.Succeeded...),
		Failed:    report.FailedSubjects(),
		OutputDir: dir,
	}
}

// FitDir fits every recording found under dataDir and stores the results
// under prefix.
func (c *Client) FitDir(ctx context.Context, dataDir, prefix string) (BatchSummary, error) {
	files, err := dataset.Discover(dataDir)
	if err != nil {
		return BatchSummary{}, err
	}
	if len(files) == 0 {
		return BatchSummary{}, fmt.Errorf("no recordings found under %s", dataDir)
	}
	report, err := c.runner.FitAll(ctx, prefix, files)
	return summary(report, ""), err
}

func (c *Client) Combine(ctx context.Context, prefixA, prefixB, outPrefix string) (BatchSummary, error) {
	report, err := c.runner.CombineRuns(ctx, prefixA, prefixB, outPrefix)
	return summary(report, ""), err
}

func (c *Client) PatchCrossValidation(ctx context.Context, prefix string, models []int, kFold int) (BatchSummary, error) {
	report, err := c.runner.PatchCrossValidation(ctx, prefix, models, kFold)
	return summary(report, ""), err
}

func (c *Client) Aggregate(ctx context.Context, prefix string, opts group.Options, outDir string) (BatchSummary, error) {
	dir, report, err := c.runner.ProcessAll(ctx, prefix, opts, outDir)
	if err != nil {
		return summary(report, dir), err
	}
	manifest, err := stats.ReadGroupManifest(dir)
	if err != nil {
		return summary(report, dir), fmt.Errorf("read group manifest: %w", err)
	}
	out := summary(report, dir)
	out.Files = manifest.Files
	return out, nil
}

// Show renders the grand comparison of subject, or session-wise comparison
// sessionIdx (1-based) when sessionIdx > 0.
func (c *Client) Show(ctx context.Context, prefix, subject string, sessionIdx int) (string, error) {
	cmp, err := c.comparison(ctx, prefix, subject, sessionIdx)
	if err != nil {
		return "", err
	}
	return cmp.Show(), nil
}

// ShowCSV writes the same comparison as Show as CSV rows in model order.
func (c *Client) ShowCSV(ctx context.Context, w io.Writer, prefix, subject string, sessionIdx int) error {
	cmp, err := c.comparison(ctx, prefix, subject, sessionIdx)
	if err != nil {
		return err
	}
	return stats.WriteComparisonCSV(w, cmp.Rows())
}

func (c *Client) comparison(ctx context.Context, prefix, subject string, sessionIdx int) (*comparison.Comparison, error) {
	res, ok, err := c.store.GetSubjectResults(ctx, prefix, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no results for %s%s", prefix, subject)
	}
	rec := res.Grand
	if sessionIdx > 0 {
		if sessionIdx > len(res.SessionWise) {
			return nil, fmt.Errorf("session %d not in [1, %d]", sessionIdx, len(res.SessionWise))
		}
		rec = res.SessionWise[sessionIdx-1]
	}
	return comparison.FromRecord(rec, c.logger)
}

func (c *Client) Subjects(ctx context.Context, prefix string) ([]string, error) {
	return c.store.ListSubjects(ctx, prefix)
}

func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	return c.store.ListRuns(ctx)
}

// FullQResult is a FullStateQ simulation on the baited task.
type FullQResult struct {
	History model.ChoiceRewardHistory
	Policy  [][][]float64
	States  []fullstateq.State
}

// SimulateFullQ runs a FullStateQ learner for trials on a default baited
// task seeded with seed.
func (c *Client) SimulateFullQ(ctx context.Context, cfg fullstateq.Config, trials int, seed int64) (FullQResult, error) {
	if trials <= 0 {
		return FullQResult{}, errors.New("trials must be > 0")
	}
	envCfg := task.DefaultBaitedConfig()
	envCfg.Arms = cfg.Arms
	envCfg.Seed = seed
	if cfg.Arms != 2 {
		envCfg.ProbabilitySet = [][]float64{uniformSet(cfg.Arms)}
	}
	env, err := task.NewBaited(envCfg)
	if err != nil {
		return FullQResult{}, err
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(seed))
	}
	learner, err := fullstateq.New(cfg)
	if err != nil {
		return FullQResult{}, err
	}
	h, err := fullstateq.Simulate(ctx, learner, env, trials)
	if err != nil {
		return FullQResult{}, err
	}
	out := FullQResult{History: h, States: learner.Snapshot()}
	for arm := 0; arm < learner.Arms(); arm++ {
		p, err := learner.Policy(arm)
		if err != nil {
			return FullQResult{}, err
		}
		out.Policy = append(out.Policy, p)
	}
	c.logger.Info("fullq simulated",
		zap.Int("trials", trials),
		zap.Float64("reward_rate", h.TotalReward()/float64(trials)))
	return out, nil
}

func uniformSet(arms int) []float64 {
	out := make([]float64, arms)
	for i := range out {
		out[i] = 0.3 / float64(arms)
	}
	out[0] = 0.3
	return out
}
