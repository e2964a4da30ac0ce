// Package platform orchestrates batch model comparisons over many subjects:
// fitting, combining runs, patching cross-validation and group processing.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foragerfit/internal/comparison"
	"foragerfit/internal/dataset"
	"foragerfit/internal/evo"
	"foragerfit/internal/fitting"
	"foragerfit/internal/group"
	"foragerfit/internal/model"
	"foragerfit/internal/stats"
	"foragerfit/internal/storage"
)

const (
	RunKindFit     = "fit"
	RunKindCombine = "combine"
	RunKindCVPatch = "cv-patch"
	RunKindProcess = "aggregate"

	// CVPatchedInfix is inserted after the source prefix when patched
	// results are written back.
	CVPatchedInfix = "CV_patched_"
)

type Config struct {
	Store    storage.Store
	Engine   comparison.FitEngine
	Pool     *evo.Pool
	Logger   *zap.Logger
	Method   fitting.Method
	Settings fitting.Settings
	// Models are 1-based default catalog indices; empty selects all.
	Models []int
	// KFold > 0 cross-validates every session-wise comparison during
	// FitSubject.
	KFold int
}

type Runner struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// BatchReport summarises one batch operation.
type BatchReport struct {
	RunID     string
	Succeeded []string
	Failed    map[string]error
	Elapsed   time.Duration
}

func (r BatchReport) FailedSubjects() []string {
	out := make([]string, 0, len(r.Failed))
	for s := range r.Failed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger, now: time.Now}, nil
}

func (r *Runner) Init(ctx context.Context) error {
	return r.cfg.Store.Init(ctx)
}

func (r *Runner) requireEngine() error {
	if r.cfg.Engine == nil {
		return errors.New("fit engine is required")
	}
	return nil
}

func (r *Runner) newComparison(h model.ChoiceRewardHistory, logger *zap.Logger, indices []int) (*comparison.Comparison, error) {
	return comparison.New(h, comparison.WithModelIndices(indices...), comparison.WithLogger(logger))
}

// FitSubject fits every session on its own, then the pooled history.
// Any model failure aborts the subject.
func (r *Runner) FitSubject(ctx context.Context, subject string, h model.ChoiceRewardHistory) (model.SubjectResults, error) {
	if err := r.requireEngine(); err != nil {
		return model.SubjectResults{}, err
	}
	if err := h.Validate(); err != nil {
		return model.SubjectResults{}, err
	}
	res := model.SubjectResults{Subject: subject}
	sessions := h.UniqueSessions()
	for i, s := range sessions {
		logger := r.logger.With(zap.String("subject", subject), zap.Int("session", s))
		c, err := r.newComparison(h.Subset(s), logger, r.cfg.Models)
		if err != nil {
			return model.SubjectResults{}, fmt.Errorf("session %d: %w", s, err)
		}
		if err := c.Fit(ctx, r.cfg.Engine, r.cfg.Method, r.cfg.Settings, r.cfg.Pool); err != nil {
			return model.SubjectResults{}, fmt.Errorf("session %d: %w", s, err)
		}
		if r.cfg.KFold > 0 {
			if err := c.CrossValidate(ctx, r.cfg.Engine, r.cfg.KFold, r.cfg.Method, r.cfg.Settings, r.cfg.Pool); err != nil {
				return model.SubjectResults{}, fmt.Errorf("session %d cross validation: %w", s, err)
			}
		}
		res.SessionWise = append(res.SessionWise, c.Record())
		logger.Debug("session fitted", zap.Int("done", i+1), zap.Int("sessions", len(sessions)))
	}

	c, err := r.newComparison(h, r.logger.With(zap.String("subject", subject), zap.String("scope", "grand")), r.cfg.Models)
	if err != nil {
		return model.SubjectResults{}, err
	}
	if err := c.Fit(ctx, r.cfg.Engine, r.cfg.Method, r.cfg.Settings, r.cfg.Pool); err != nil {
		return model.SubjectResults{}, fmt.Errorf("grand: %w", err)
	}
	res.Grand = c.Record()
	return res, nil
}

// FitAll loads and fits every recording file, storing results under prefix.
// A failing subject is logged and skipped; cancellation stops the batch.
func (r *Runner) FitAll(ctx context.Context, prefix string, files []string) (BatchReport, error) {
	if err := r.requireEngine(); err != nil {
		return BatchReport{}, err
	}
	return r.batch(ctx, RunKindFit, prefix, files, func(ctx context.Context, file string) (string, error) {
		subject, err := dataset.LoadFile(file)
		if err != nil {
			return file, err
		}
		start := r.now()
		r.logger.Info("fitting subject", zap.String("subject", subject.Name), zap.Int("trials", subject.History.Trials()))
		res, err := r.FitSubject(ctx, subject.Name, subject.History)
		if err != nil {
			return subject.Name, err
		}
		if err := r.cfg.Store.SaveSubjectResults(ctx, prefix, res); err != nil {
			return subject.Name, fmt.Errorf("save: %w", err)
		}
		r.logger.Info("subject done", zap.String("subject", subject.Name), zap.Duration("elapsed", r.now().Sub(start)))
		return subject.Name, nil
	})
}

// CombineRuns unions the comparisons stored under prefixA and prefixB for
// every subject present in both, grand and session by session.
func (r *Runner) CombineRuns(ctx context.Context, prefixA, prefixB, outPrefix string) (BatchReport, error) {
	subjects, err := r.cfg.Store.ListSubjects(ctx, prefixA)
	if err != nil {
		return BatchReport{}, err
	}
	return r.batch(ctx, RunKindCombine, outPrefix, subjects, func(ctx context.Context, subject string) (string, error) {
		a, err := r.load(ctx, prefixA, subject)
		if err != nil {
			return subject, err
		}
		b, err := r.load(ctx, prefixB, subject)
		if err != nil {
			return subject, err
		}
		if len(a.SessionWise) != len(b.SessionWise) {
			return subject, fmt.Errorf("%w: %d sessions in %s, %d in %s", comparison.ErrCombineMismatch, len(a.SessionWise), prefixA, len(b.SessionWise), prefixB)
		}
		out := model.SubjectResults{Subject: subject}
		if out.Grand, err = comparison.CombineRecords(a.Grand, b.Grand); err != nil {
			return subject, fmt.Errorf("grand: %w", err)
		}
		for i := range a.SessionWise {
			rec, err := comparison.CombineRecords(a.SessionWise[i], b.SessionWise[i])
			if err != nil {
				return subject, fmt.Errorf("session %d: %w", i+1, err)
			}
			out.SessionWise = append(out.SessionWise, rec)
		}
		if err := r.cfg.Store.SaveSubjectResults(ctx, outPrefix, out); err != nil {
			return subject, fmt.Errorf("save: %w", err)
		}
		r.logger.Info("combined", zap.String("subject", subject), zap.String("a", prefixA), zap.String("b", prefixB))
		return subject, nil
	})
}

// PatchCrossValidation cross-validates the given catalog models on every
// stored session and writes the results under prefix+CVPatchedInfix. Grand
// comparisons are copied untouched. CV rows carry catalog indices.
func (r *Runner) PatchCrossValidation(ctx context.Context, prefix string, models []int, kFold int) (BatchReport, error) {
	if err := r.requireEngine(); err != nil {
		return BatchReport{}, err
	}
	subjects, err := r.cfg.Store.ListSubjects(ctx, prefix)
	if err != nil {
		return BatchReport{}, err
	}
	outPrefix := prefix + CVPatchedInfix
	return r.batch(ctx, RunKindCVPatch, outPrefix, subjects, func(ctx context.Context, subject string) (string, error) {
		res, err := r.load(ctx, prefix, subject)
		if err != nil {
			return subject, err
		}
		for i, rec := range res.SessionWise {
			logger := r.logger.With(zap.String("subject", subject), zap.Int("session_idx", i+1))
			c, err := r.newComparison(rec.History, logger, models)
			if err != nil {
				return subject, err
			}
			if err := c.CrossValidate(ctx, r.cfg.Engine, kFold, r.cfg.Method, r.cfg.Settings, r.cfg.Pool); err != nil {
				return subject, fmt.Errorf("session %d: %w", i+1, err)
			}
			cv := c.CV()
			if len(models) > 0 {
				for j := range cv {
					cv[j].ModelIndex = models[cv[j].ModelIndex-1]
				}
			}
			res.SessionWise[i].CV = cv
		}
		if err := r.cfg.Store.SaveSubjectResults(ctx, outPrefix, res); err != nil {
			return subject, fmt.Errorf("save: %w", err)
		}
		r.logger.Info("cross validation patched", zap.String("subject", subject), zap.Int("sessions", len(res.SessionWise)))
		return subject, nil
	})
}

// ProcessAll aggregates every subject stored under prefix and writes the
// group tables under outDir. Subjects that fail aggregation are skipped.
func (r *Runner) ProcessAll(ctx context.Context, prefix string, opts group.Options, outDir string) (string, BatchReport, error) {
	subjects, err := r.cfg.Store.ListSubjects(ctx, prefix)
	if err != nil {
		return "", BatchReport{}, err
	}
	var summaries []group.SubjectSummary
	report, err := r.batch(ctx, RunKindProcess, prefix, subjects, func(ctx context.Context, subject string) (string, error) {
		res, err := r.load(ctx, prefix, subject)
		if err != nil {
			return subject, err
		}
		sum, err := group.AggregateSubject(subject, res, opts)
		if err != nil {
			return subject, err
		}
		summaries = append(summaries, sum)
		return subject, nil
	})
	if err != nil {
		return "", report, err
	}
	dir, err := stats.WriteGroupArtifacts(outDir, stats.GroupManifest{
		RunID:     report.RunID,
		Prefix:    prefix,
		CreatedAt: r.now().UTC(),
		Failed:    report.FailedSubjects(),
		Options:   opts,
	}, summaries)
	if err != nil {
		return "", report, err
	}
	r.logger.Info("group tables written", zap.String("dir", dir), zap.Int("subjects", len(summaries)))
	return dir, report, nil
}

func (r *Runner) load(ctx context.Context, prefix, subject string) (model.SubjectResults, error) {
	res, ok, err := r.cfg.Store.GetSubjectResults(ctx, prefix, subject)
	if err != nil {
		return model.SubjectResults{}, err
	}
	if !ok {
		return model.SubjectResults{}, fmt.Errorf("no results for %s%s", prefix, subject)
	}
	return res, nil
}

// batch runs fn per item sequentially with catch-and-log isolation and
// records the run in the store's index.
func (r *Runner) batch(ctx context.Context, kind, prefix string, items []string, fn func(context.Context, string) (string, error)) (BatchReport, error) {
	start := r.now()
	report := BatchReport{RunID: uuid.NewString(), Failed: make(map[string]error)}
	logger := r.logger.With(zap.String("run_id", report.RunID), zap.String("kind", kind))
	logger.Info("batch started", zap.String("prefix", prefix), zap.Int("items", len(items)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name, err := fn(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			logger.Error("subject failed", zap.String("subject", name), zap.Error(err))
			report.Failed[name] = err
			continue
		}
		report.Succeeded = append(report.Succeeded, name)
	}
	report.Elapsed = r.now().Sub(start)

	run := model.RunRecord{
		ID:        report.RunID,
		Kind:      kind,
		Prefix:    prefix,
		Subjects:  append([]string(nil), report.Succeeded...),
		Failed:    report.FailedSubjects(),
		StartedAt: start.UTC(),
		Duration:  report.Elapsed.Seconds(),
	}
	if err := r.cfg.Store.SaveRun(ctx, run); err != nil {
		return report, fmt.Errorf("save run index: %w", err)
	}
	logger.Info("batch finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}
