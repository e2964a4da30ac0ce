package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"foragerfit/internal/fitting"
	"foragerfit/internal/group"
	"foragerfit/internal/model"
	"foragerfit/internal/storage"
)

// stubEngine scores models by parameter count and predicts arm 0.
type stubEngine struct {
	fail   model.Forager
	fits   int
	cvRuns int
}

func (e *stubEngine) Fit(_ context.Context, req fitting.FitRequest) (model.FitResult, error) {
	e.fits++
	if req.Spec.Forager == e.fail {
		return model.FitResult{}, fmt.Errorf("%w: stub refuses %s", fitting.ErrFitFailure, e.fail)
	}
	n := req.History.Trials()
	p0, p1 := make([]float64, n), make([]float64, n)
	for t := range p0 {
		p0[t], p1[t] = 0.7, 0.3
	}
	km := req.Spec.FreeCount()
	aic := 20 + 2*float64(km)
	return model.FitResult{
		Forager:              req.Spec.Forager,
		Params:               append([]float64(nil), req.Spec.Upper...),
		X:                    make([]float64, km),
		Km:                   km,
		AIC:                  aic,
		BIC:                  aic,
		TrialNumbers:         n,
		PredictiveChoiceProb: [][]float64{p0, p1},
	}, nil
}

func (e *stubEngine) CrossValidate(_ context.Context, req fitting.CVRequest) (model.CrossValidationRow, error) {
	e.cvRuns++
	return model.CrossValidationRow{TestAccuracy: 0.55, FitAccuracy: 0.65, BiasOnlyTestAccuracy: 0.5, KFold: req.KFold}, nil
}

func writeRecording(t *testing.T, dir, name string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("session,choice,reward,p1,p2\n")
	for s := 1; s <= 2; s++ {
		for i := 0; i < 40; i++ {
			choice := 1 + i%3/2
			fmt.Fprintf(&b, "%d,%d,%d,0.4,0.1\n", s, choice, i%2)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newRunner(t *testing.T, engine *stubEngine, models []int, logger *zap.Logger) (*Runner, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	r, err := NewRunner(Config{
		Store:    store,
		Engine:   engine,
		Logger:   logger,
		Method:   fitting.MethodDE,
		Settings: fitting.DefaultSettings(),
		Models:   models,
	})
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	return r, store
}

func TestFitSubjectFitsSessionsThenGrand(t *testing.T) {
	engine := &stubEngine{}
	r, _ := newRunner(t, engine, []int{1, 5}, nil)
	r.cfg.KFold = 2

	dir := t.TempDir()
	files := []string{writeRecording(t, dir, "m1.csv")}
	report, err := r.FitAll(context.Background(), "p_", files)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, report.Succeeded)
	assert.Equal(t, 6, engine.fits)
	assert.Equal(t, 4, engine.cvRuns)

	res, ok, err := r.cfg.Store.GetSubjectResults(context.Background(), "p_", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, res.SessionWise, 2)
	assert.Equal(t, 40, res.SessionWise[0].History.Trials())
	assert.Len(t, res.SessionWise[1].CV, 2)
	assert.Equal(t, 80, res.Grand.TrialNumbers)
	require.Len(t, res.Grand.Rows, 2)
	assert.Equal(t, 1, res.Grand.Rows[0].BestModelAIC)
}

func TestFitAllIsolatesFailingSubjects(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	engine := &stubEngine{fail: model.Hattori2019}
	r, store := newRunner(t, engine, nil, zap.New(core))

	dir := t.TempDir()
	good := writeRecording(t, dir, "m1.csv")
	broken := filepath.Join(dir, "m2.csv")
	require.NoError(t, os.WriteFile(broken, []byte("session,choice\n1,1\n"), 0o644))

	r.cfg.Models = []int{1, 3}
	report, err := r.FitAll(context.Background(), "p_", []string{broken, good})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, report.Succeeded)
	assert.Equal(t, []string{broken}, report.FailedSubjects())
	assert.Equal(t, 1, logs.FilterMessage("subject failed").Len())

	r.cfg.Models = []int{6}
	report, err = r.FitAll(context.Background(), "q_", []string{good})
	require.NoError(t, err)
	assert.Empty(t, report.Succeeded)
	assert.True(t, errors.Is(report.Failed["m1"], fitting.ErrFitFailure))

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunKindFit, runs[0].Kind)
	assert.Equal(t, []string{"m1"}, runs[1].Failed)
}

func TestFitAllStopsOnCancellation(t *testing.T) {
	r, _ := newRunner(t, &stubEngine{}, []int{1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.FitAll(ctx, "p_", []string{writeRecording(t, t.TempDir(), "m1.csv")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCombinePatchAndProcess(t *testing.T) {
	ctx := context.Background()
	engine := &stubEngine{}
	r, store := newRunner(t, engine, []int{1, 2, 3, 4}, nil)
	files := []string{writeRecording(t, t.TempDir(), "m1.csv")}

	_, err := r.FitAll(ctx, "a_", files)
	require.NoError(t, err)
	r.cfg.Models = []int{12}
	_, err = r.FitAll(ctx, "b_", files)
	require.NoError(t, err)

	report, err := r.CombineRuns(ctx, "a_", "b_", "ab_")
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, report.Succeeded)
	combined, ok, err := store.GetSubjectResults(ctx, "ab_", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, combined.Grand.Models, 5)
	assert.Equal(t, model.RW1972Softmax, combined.Grand.Models[4].Forager)
	assert.Len(t, combined.SessionWise[0].Rows, 5)

	report, err = r.PatchCrossValidation(ctx, "ab_", []int{2, 5}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, report.Succeeded)
	patched, ok, err := store.GetSubjectResults(ctx, "ab_"+CVPatchedInfix, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, patched.SessionWise[0].CV, 2)
	assert.Equal(t, 5, patched.SessionWise[0].CV[1].ModelIndex)
	assert.Empty(t, patched.Grand.CV)

	out := t.TempDir()
	dir, report, err := r.ProcessAll(ctx, "ab_"+CVPatchedInfix, group.DefaultOptions(), out)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, report.Succeeded)
	for _, f := range []string{"population.csv", "raw_LPT_AIC.csv", "block_switch.csv", "subject_summaries.json", "manifest.json"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
}

func TestCombineRunsReportsMissingSubject(t *testing.T) {
	ctx := context.Background()
	r, _ := newRunner(t, &stubEngine{}, []int{1}, nil)
	_, err := r.FitAll(ctx, "a_", []string{writeRecording(t, t.TempDir(), "m1.csv")})
	require.NoError(t, err)

	report, err := r.CombineRuns(ctx, "a_", "missing_", "out_")
	require.NoError(t, err)
	assert.Empty(t, report.Succeeded)
	assert.Contains(t, report.Failed, "m1")
}

func TestNewRunnerRequiresStore(t *testing.T) {
	_, err := NewRunner(Config{})
	assert.Error(t, err)
}
