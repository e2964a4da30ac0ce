// Package fitting estimates forager parameters by maximum likelihood and
// scores them by k-fold cross-validation.
package fitting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"foragerfit/internal/evo"
	"foragerfit/internal/forager"
	"foragerfit/internal/model"
	"foragerfit/internal/tuning"
)

var ErrFitFailure = errors.New("fit failure")

// Settings tunes the optimisers. The zero value is not usable; start from
// DefaultSettings.
type Settings struct {
	DE             evo.DEConfig
	Polish         bool
	PolishAttempts int
	PolishPolicy   tuning.AttemptPolicy

	// Polish hill-climb shape; see tuning.Exoself.
	PolishSteps              int
	PolishStepSize           float64
	PolishAnnealing          float64
	PolishMinImprovement     float64
	PolishCandidateSelection string

	LocalStarts         int
	LocalMaxEvaluations int
	Seed                int64
}

func DefaultSettings() Settings {
	return Settings{
		DE:                       evo.DefaultDEConfig(),
		Polish:                   true,
		PolishAttempts:           20,
		PolishPolicy:             tuning.FixedAttemptPolicy{},
		PolishSteps:              1,
		PolishStepSize:           0.02,
		PolishAnnealing:          0.9,
		PolishCandidateSelection: tuning.CandidateSelectBestSoFar,
		LocalStarts:              5,
		LocalMaxEvaluations:      2000,
		Seed:                     1,
	}
}

type FitRequest struct {
	Spec           model.ModelSpec
	History        model.ChoiceRewardHistory
	Method         Method
	Settings       Settings
	Pool           *evo.Pool
	WantPredictive bool
}

type CVRequest struct {
	Spec     model.ModelSpec
	History  model.ChoiceRewardHistory
	KFold    int
	Method   Method
	Settings Settings
	Pool     *evo.Pool
}

// Engine is the concrete likelihood fitter. It holds no per-fit state and
// is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
}

type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// problem binds a spec to a history and an optional training mask.
type problem struct {
	spec    model.ModelSpec
	history model.ChoiceRewardHistory
	mask    []bool
	free    []int
	bounds  tuning.Bounds
}

func newProblem(spec model.ModelSpec, history model.ChoiceRewardHistory, mask []bool) (*problem, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !spec.Forager.Valid() {
		return nil, fmt.Errorf("unsupported forager %s", spec.Forager)
	}
	if err := history.Validate(); err != nil {
		return nil, err
	}
	p := &problem{spec: spec, history: history, mask: mask}
	for i := range spec.ParamNames {
		if spec.IsFree(i) {
			p.free = append(p.free, i)
			p.bounds.Lower = append(p.bounds.Lower, spec.Lower[i])
			p.bounds.Upper = append(p.bounds.Upper, spec.Upper[i])
		}
	}
	return p, nil
}

// expand fills fixed parameters from their (degenerate) bounds.
func (p *problem) expand(x []float64) []float64 {
	full := append([]float64(nil), p.spec.Lower...)
	for j, idx := range p.free {
		full[idx] = x[j]
	}
	return full
}

func (p *problem) evaluate(params []float64, wantProb bool) (forager.Evaluation, error) {
	policy, err := forager.New(p.spec.Forager, p.spec.ParamNames, params, p.history.Arms())
	if err != nil {
		return forager.Evaluation{}, err
	}
	return forager.Evaluate(policy, p.history, p.mask, wantProb)
}

func (p *problem) objective(ctx context.Context, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	eval, err := p.evaluate(p.expand(x), false)
	if err != nil {
		return 0, err
	}
	return eval.NLL, nil
}

type optimum struct {
	x           []float64
	nll         float64
	evaluations int
}

func (e *Engine) optimise(ctx context.Context, p *problem, method Method, settings Settings, pool *evo.Pool) (optimum, error) {
	switch method {
	case MethodDE:
		return e.optimiseDE(ctx, p, settings, pool)
	case MethodLocal:
		return e.optimiseLocal(ctx, p, settings, pool)
	default:
		return optimum{}, fmt.Errorf("unsupported fit method %s", method)
	}
}

func (e *Engine) optimiseDE(ctx context.Context, p *problem, settings Settings, pool *evo.Pool) (optimum, error) {
	cfg := settings.DE
	cfg.Seed = settings.Seed
	res, err := evo.DifferentialEvolution(ctx, p.objective, p.bounds, cfg, pool)
	if err != nil {
		return optimum{}, err
	}
	out := optimum{x: res.X, nll: res.Value, evaluations: res.Evaluations}
	if !settings.Polish || len(p.free) == 0 {
		return out, nil
	}

	policy := settings.PolishPolicy
	if policy == nil {
		policy = tuning.FixedAttemptPolicy{}
	}
	polisher := newPolisher(settings)
	polished, err := polisher.Tune(ctx, out.x, p.bounds, policy.Attempts(settings.PolishAttempts, len(p.free)), p.objective)
	if err != nil {
		return optimum{}, err
	}
	out.evaluations += polished.Report.CandidateEvaluations
	e.logger.Debug("polish complete",
		zap.String("tuner", polisher.Name()),
		zap.Int("accepted", polished.Report.AcceptedCandidates),
		zap.Int("evaluations", polished.Report.CandidateEvaluations),
	)
	if polished.Value < out.nll {
		out.x = polished.X
		out.nll = polished.Value
	}
	return out, nil
}

func newPolisher(settings Settings) tuning.Tuner {
	return &tuning.Exoself{
		Rand:               rand.New(rand.NewSource(settings.Seed)),
		Steps:              settings.PolishSteps,
		StepSize:           settings.PolishStepSize,
		AnnealingFactor:    settings.PolishAnnealing,
		MinImprovement:     settings.PolishMinImprovement,
		CandidateSelection: settings.PolishCandidateSelection,
	}
}

// Fit estimates the free parameters of req.Spec on the full history.
func (e *Engine) Fit(ctx context.Context, req FitRequest) (model.FitResult, error) {
	start := time.Now()
	p, err := newProblem(req.Spec, req.History, nil)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("%w: %s: %w", ErrFitFailure, req.Spec.Forager, err)
	}
	opt, err := e.optimise(ctx, p, req.Method, req.Settings, req.Pool)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("%w: %s: %w", ErrFitFailure, req.Spec.Forager, err)
	}
	params := p.expand(opt.x)
	eval, err := p.evaluate(params, req.WantPredictive)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("%w: %s: %w", ErrFitFailure, req.Spec.Forager, err)
	}
	result := newFitResult(req.Spec, params, opt.x, eval, opt.evaluations)
	e.logger.Debug("fit complete",
		zap.String("forager", req.Spec.Forager.String()),
		zap.String("method", req.Method.String()),
		zap.Int("km", result.Km),
		zap.Float64("nll", result.NLL),
		zap.Int("evaluations", result.Evaluations),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func newFitResult(spec model.ModelSpec, params, x []float64, eval forager.Evaluation, evaluations int) model.FitResult {
	km := spec.FreeCount()
	t := float64(eval.Counted)
	aic := 2*float64(km) + 2*eval.NLL
	bic := float64(km)*math.Log(t) + 2*eval.NLL
	return model.FitResult{
		Forager:              spec.Forager,
		Params:               params,
		X:                    append([]float64{}, x...),
		Km:                   km,
		NLL:                  eval.NLL,
		AIC:                  aic,
		BIC:                  bic,
		LPT:                  math.Exp(-eval.NLL / t),
		LPTAIC:               math.Exp(-aic / (2 * t)),
		LPTBIC:               math.Exp(-bic / (2 * t)),
		TrialNumbers:         eval.Counted,
		Evaluations:          evaluations,
		PredictiveChoiceProb: eval.ChoiceProb,
	}
}

// CrossValidate fits on k−1 randomized folds and scores argmax prediction
// on the held-out fold, rotating through all k folds.
func (e *Engine) CrossValidate(ctx context.Context, req CVRequest) (model.CrossValidationRow, error) {
	if req.KFold < 2 {
		return model.CrossValidationRow{}, fmt.Errorf("%w: k_fold must be >= 2, got %d", ErrFitFailure, req.KFold)
	}
	trials := req.History.Trials()
	if trials < req.KFold {
		return model.CrossValidationRow{}, fmt.Errorf("%w: %d trials for %d folds", ErrFitFailure, trials, req.KFold)
	}
	folds := assignFolds(trials, req.KFold, req.Settings.Seed)
	row := model.CrossValidationRow{
		Forager: req.Spec.Forager,
		Km:      req.Spec.FreeCount(),
		KFold:   req.KFold,
	}

	for k := 0; k < req.KFold; k++ {
		train := make([]bool, trials)
		for t := range train {
			train[t] = folds[t] != k
		}
		p, err := newProblem(req.Spec, req.History, train)
		if err != nil {
			return model.CrossValidationRow{}, fmt.Errorf("%w: fold %d: %w", ErrFitFailure, k, err)
		}
		settings := req.Settings
		settings.Seed = req.Settings.Seed + int64(k)
		opt, err := e.optimise(ctx, p, req.Method, settings, req.Pool)
		if err != nil {
			return model.CrossValidationRow{}, fmt.Errorf("%w: fold %d: %w", ErrFitFailure, k, err)
		}
		eval, err := p.evaluate(p.expand(opt.x), true)
		if err != nil {
			return model.CrossValidationRow{}, fmt.Errorf("%w: fold %d: %w", ErrFitFailure, k, err)
		}
		testAcc, fitAcc := foldAccuracy(req.History.Choices, eval.ChoiceProb, train)
		row.FoldTestAccuracy = append(row.FoldTestAccuracy, testAcc)
		row.FoldFitAccuracy = append(row.FoldFitAccuracy, fitAcc)
		row.FoldBiasOnlyAccuracy = append(row.FoldBiasOnlyAccuracy, biasOnlyAccuracy(req.History.Choices, req.History.Arms(), train))
	}
	row.TestAccuracy = mean(row.FoldTestAccuracy)
	row.FitAccuracy = mean(row.FoldFitAccuracy)
	row.BiasOnlyTestAccuracy = mean(row.FoldBiasOnlyAccuracy)
	e.logger.Debug("cross-validation complete",
		zap.String("forager", req.Spec.Forager.String()),
		zap.Int("k_fold", req.KFold),
		zap.Float64("test_accuracy", row.TestAccuracy),
	)
	return row, nil
}

// assignFolds deals a seeded permutation of trial indices round-robin.
func assignFolds(trials, k int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	folds := make([]int, trials)
	for i, t := range rng.Perm(trials) {
		folds[t] = i % k
	}
	return folds
}

func foldAccuracy(choices []int, prob [][]float64, train []bool) (test, fit float64) {
	var testHit, testN, fitHit, fitN int
	col := make([]float64, len(prob))
	for t, c := range choices {
		for arm := range prob {
			col[arm] = prob[arm][t]
		}
		hit := floats.MaxIdx(col) == c
		if train[t] {
			fitN++
			if hit {
				fitHit++
			}
			continue
		}
		testN++
		if hit {
			testHit++
		}
	}
	return ratio(testHit, testN), ratio(fitHit, fitN)
}

// biasOnlyAccuracy predicts the training majority arm on every held-out
// trial.
func biasOnlyAccuracy(choices []int, arms int, train []bool) float64 {
	counts := make([]float64, arms)
	for t, c := range choices {
		if train[t] {
			counts[c]++
		}
	}
	majority := floats.MaxIdx(counts)
	var hit, n int
	for t, c := range choices {
		if train[t] {
			continue
		}
		n++
		if c == majority {
			hit++
		}
	}
	return ratio(hit, n)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return math.NaN()
	}
	return float64(a) / float64(b)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Sum(xs) / float64(len(xs))
}
