// Package comparison fits a set of behavioral models to one choice history
// and ranks them by information criteria.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"foragerfit/internal/evo"
	"foragerfit/internal/fitting"
	"foragerfit/internal/model"
	"foragerfit/internal/registry"
)

var ErrCombineMismatch = errors.New("comparisons were computed on different histories")

// FitEngine is the single-model estimation backend.
type FitEngine interface {
	Fit(ctx context.Context, req fitting.FitRequest) (model.FitResult, error)
	CrossValidate(ctx context.Context, req fitting.CVRequest) (model.CrossValidationRow, error)
}

// Comparison holds the models under comparison, their raw fits, and the
// table derived from them. It is not safe for concurrent mutation.
type Comparison struct {
	history model.ChoiceRewardHistory
	models  []model.ModelSpec
	raw     []model.FitResult
	rows    []model.ComparisonRow
	cv      []model.CrossValidationRow
	logger  *zap.Logger
}

type options struct {
	indices []int
	specs   []model.ModelSpec
	logger  *zap.Logger
}

type Option func(*options)

// WithModelIndices selects default models by 1-based index.
func WithModelIndices(indices ...int) Option {
	return func(o *options) {
		o.indices = append([]int(nil), indices...)
		o.specs = nil
	}
}

// WithModels supplies explicit model specs.
func WithModels(specs ...model.ModelSpec) Option {
	return func(o *options) {
		o.specs = make([]model.ModelSpec, len(specs))
		for i, s := range specs {
			o.specs[i] = s.Clone()
		}
		o.indices = nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New validates history and resolves the model selection. Without a
// selection option the full default catalog is used.
func New(history model.ChoiceRewardHistory, opts ...Option) (*Comparison, error) {
	if err := history.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var models []model.ModelSpec
	switch {
	case o.specs != nil:
		models = o.specs
	case o.indices != nil:
		selected, err := registry.ByIndex(o.indices...)
		if err != nil {
			return nil, err
		}
		models = selected
	default:
		models = registry.Default()
	}
	for i, spec := range models {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("model %d: %w", i+1, err)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparison{history: history.Clone(), models: models, logger: logger}, nil
}

// Fit estimates every model in order. The first engine error aborts the
// comparison and leaves any previous results untouched.
func (c *Comparison) Fit(ctx context.Context, engine FitEngine, method fitting.Method, settings fitting.Settings, pool *evo.Pool) error {
	raw := make([]model.FitResult, 0, len(c.models))
	for i, spec := range c.models {
		start := time.Now()
		res, err := engine.Fit(ctx, fitting.FitRequest{
			Spec:           spec,
			History:        c.history,
			Method:         method,
			Settings:       settings,
			Pool:           pool,
			WantPredictive: true,
		})
		if err != nil {
			return fmt.Errorf("model %d (%s): %w", i+1, spec.Forager, err)
		}
		raw = append(raw, res)
		c.logger.Info("model fitted",
			zap.Int("model", i+1),
			zap.Int("models", len(c.models)),
			zap.String("forager", spec.Forager.String()),
			zap.String("notation", registry.FreeNotation(spec)),
			zap.Int("km", res.Km),
			zap.Float64("aic", res.AIC),
			zap.Float64("bic", res.BIC),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	c.raw = raw
	c.rows = DeriveTable(c.models, c.raw)
	return nil
}

// CrossValidate produces one cross-validation row per model.
func (c *Comparison) CrossValidate(ctx context.Context, engine FitEngine, kFold int, method fitting.Method, settings fitting.Settings, pool *evo.Pool) error {
	rows := make([]model.CrossValidationRow, 0, len(c.models))
	for i, spec := range c.models {
		start := time.Now()
		row, err := engine.CrossValidate(ctx, fitting.CVRequest{
			Spec:     spec,
			History:  c.history,
			KFold:    kFold,
			Method:   method,
			Settings: settings,
			Pool:     pool,
		})
		if err != nil {
			return fmt.Errorf("model %d (%s): %w", i+1, spec.Forager, err)
		}
		row.ModelIndex = i + 1
		row.Forager = spec.Forager
		row.Km = spec.FreeCount()
		row.ParaNotation = registry.FreeNotation(spec)
		row.KFold = kFold
		rows = append(rows, row)
		c.logger.Info("model cross-validated",
			zap.Int("model", i+1),
			zap.Int("models", len(c.models)),
			zap.String("forager", spec.Forager.String()),
			zap.Float64("test_accuracy", row.TestAccuracy),
			zap.Float64("fit_accuracy", row.FitAccuracy),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	c.cv = rows
	return nil
}

func (c *Comparison) History() model.ChoiceRewardHistory {
	return c.history.Clone()
}

func (c *Comparison) Models() []model.ModelSpec {
	out := make([]model.ModelSpec, len(c.models))
	for i, s := range c.models {
		out[i] = s.Clone()
	}
	return out
}

// Rows returns the table in model order.
func (c *Comparison) Rows() []model.ComparisonRow {
	return append([]model.ComparisonRow(nil), c.rows...)
}

// Sorted returns the table ordered by ascending AIC.
func (c *Comparison) Sorted() []model.ComparisonRow {
	return SortByAIC(c.rows)
}

// Raw returns the fit of the model at 1-based index.
func (c *Comparison) Raw(index int) (model.FitResult, error) {
	if index < 1 || index > len(c.raw) {
		return model.FitResult{}, fmt.Errorf("%w: %d not in [1, %d]", registry.ErrModelIndex, index, len(c.raw))
	}
	return c.raw[index-1], nil
}

func (c *Comparison) RawResults() []model.FitResult {
	return append([]model.FitResult(nil), c.raw...)
}

func (c *Comparison) CV() []model.CrossValidationRow {
	return append([]model.CrossValidationRow(nil), c.cv...)
}

func (c *Comparison) Fitted() bool {
	return len(c.raw) == len(c.models) && len(c.raw) > 0
}
