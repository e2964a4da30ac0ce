// Package group summarises per-subject model comparisons and concatenates
// the summaries into population tables.
package group

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"foragerfit/internal/blockswitch"
	"foragerfit/internal/comparison"
	"foragerfit/internal/model"
	"foragerfit/internal/registry"
)

var ErrMissingProbabilities = errors.New("reward probabilities are required for aggregation")

type Options struct {
	SugrueModel    int                `json:"sugrue_model" yaml:"sugrue_model"`
	Contrast       bool               `json:"contrast" yaml:"contrast"`
	ReferenceModel int                `json:"reference_model" yaml:"reference_model"`
	ContrastModels []int              `json:"contrast_models" yaml:"contrast_models"`
	BlockSwitch    blockswitch.Params `json:"block_switch" yaml:"block_switch"`
}

func DefaultOptions() Options {
	return Options{
		SugrueModel:    registry.SugrueIndex,
		ReferenceModel: registry.StandardRLIndex,
		ContrastModels: []int{13, 6, 15, 8},
		BlockSwitch:    blockswitch.DefaultParams(),
	}
}

type SessionSummary struct {
	SessionIdx         int       `json:"session_idx"`
	SessionNumber      int       `json:"session_number"`
	Trials             int       `json:"n_trials"`
	BestModel          int       `json:"session_best"`
	AccuracyNONCV      float64   `json:"prediction_accuracy_NONCV"`
	AccuracySugrue     float64   `json:"prediction_accuracy_Sugrue_NONCV"`
	ForagingEfficiency float64   `json:"foraging_efficiency"`
	AccuracyBiasOnly   *float64  `json:"prediction_accuracy_bias_only,omitempty"`
	CVFit              *float64  `json:"prediction_accuracy_CV_fit,omitempty"`
	CVTest             *float64  `json:"prediction_accuracy_CV_test,omitempty"`
	CVTestBiasOnly     *float64  `json:"prediction_accuracy_CV_test_bias_only,omitempty"`
	FittedParams       []float64 `json:"fitted_paras"`
	DeltaAIC           []float64 `json:"delta_AIC,omitempty"`
}

type SubjectSummary struct {
	Subject                 string           `json:"subject"`
	Trials                  int              `json:"n_trials"`
	OverallBest             int              `json:"overall_best"`
	ParaNotation            []string         `json:"para_notation"`
	FittedParaNames         []string         `json:"fitted_para_names"`
	KFold                   int              `json:"k_fold,omitempty"`
	Sessions                []SessionSummary `json:"sessions"`
	AccuracyNONCVGrand      float64          `json:"prediction_accuracy_NONCV_grand"`
	ForagingEfficiencyGrand float64          `json:"foraging_efficiency_grand"`
	AccuracyBiasOnlyGrand   *float64         `json:"prediction_accuracy_bias_only_grand,omitempty"`
	LPTAICGrand             []float64        `json:"LPT_AIC_grand"`
	FittedParamsGrand       []float64        `json:"fitted_paras_grand"`
	// Models × sessions.
	ModelWeightAIC [][]float64 `json:"model_weight_AIC"`
	AIC            [][]float64 `json:"AIC"`
	LPTAIC         [][]float64 `json:"LPT_AIC"`

	ContrastModels   []int     `json:"contrast_models,omitempty"`
	ContrastNotation []string  `json:"delta_AIC_para_notation,omitempty"`
	DeltaAICGrand    []float64 `json:"delta_AIC_grand,omitempty"`

	BlockSwitches     []model.BlockSwitchRecord `json:"-"`
	BlockSwitchParams blockswitch.Params        `json:"block_switch_para"`
}

// AggregateSubject derives per-session and grand diagnostics from one
// subject's comparisons. Session-wise records must follow the ascending
// session order of the grand history.
func AggregateSubject(subject string, results model.SubjectResults, opts Options) (SubjectSummary, error) {
	grand := results.Grand
	if len(grand.Rows) == 0 {
		c, err := comparison.FromRecord(grand, nil)
		if err != nil {
			return SubjectSummary{}, err
		}
		grand.Rows = c.Rows()
	}
	if len(grand.Rows) == 0 {
		return SubjectSummary{}, fmt.Errorf("subject %s: grand comparison has no fitted models", subject)
	}
	if grand.History.RewardProbabilities == nil {
		return SubjectSummary{}, fmt.Errorf("subject %s: %w", subject, ErrMissingProbabilities)
	}
	nModels := len(grand.Rows)
	for _, idx := range append([]int{opts.SugrueModel}, contrastIndices(opts)...) {
		if idx < 1 || idx > nModels {
			return SubjectSummary{}, fmt.Errorf("subject %s: %w: %d not in [1, %d]", subject, registry.ErrModelIndex, idx, nModels)
		}
	}

	best, ok := comparison.BestRow(grand.Rows)
	if !ok {
		return SubjectSummary{}, fmt.Errorf("subject %s: grand comparison has no best model", subject)
	}
	overall := best.Index
	bestSpec := grand.Models[overall-1]
	sum := SubjectSummary{
		Subject:           subject,
		Trials:            grand.History.Trials(),
		OverallBest:       overall,
		FittedParaNames:   registry.FreeNames(bestSpec),
		LPTAICGrand:       make([]float64, nModels),
		FittedParamsGrand: append([]float64(nil), best.ParaFitted...),
		BlockSwitchParams: opts.BlockSwitch,
	}
	for i, row := range grand.Rows {
		sum.ParaNotation = append(sum.ParaNotation, row.ParaNotation)
		sum.LPTAICGrand[i] = row.LPTAIC
	}

	var err error
	if sum.AccuracyNONCVGrand, err = accuracy(grand, overall); err != nil {
		return SubjectSummary{}, fmt.Errorf("subject %s: %w", subject, err)
	}
	if sum.ForagingEfficiencyGrand, err = ForagingEfficiency(grand.History); err != nil {
		return SubjectSummary{}, fmt.Errorf("subject %s: %w", subject, err)
	}
	biasIdx := freeParamIndex(bestSpec, "biasL")
	if biasIdx >= 0 {
		acc := biasOnlyAccuracy(grand.History.Choices, grand.Raw[overall-1].Params[biasIdx])
		sum.AccuracyBiasOnlyGrand = &acc
	}

	sessions := grand.History.UniqueSessions()
	if len(sessions) == 0 && len(results.SessionWise) > 0 {
		return SubjectSummary{}, fmt.Errorf("subject %s: grand history has no session ids", subject)
	}
	if len(results.SessionWise) != 0 && len(results.SessionWise) != len(sessions) {
		return SubjectSummary{}, fmt.Errorf("subject %s: %d session comparisons for %d sessions", subject, len(results.SessionWise), len(sessions))
	}
	nSessions := len(results.SessionWise)
	sum.ModelWeightAIC = matrix(nModels, nSessions)
	sum.AIC = matrix(nModels, nSessions)
	sum.LPTAIC = matrix(nModels, nSessions)

	for ss, rec := range results.SessionWise {
		s, err := summariseSession(ss, sessions[ss], rec, grand, overall, biasIdx, opts)
		if err != nil {
			return SubjectSummary{}, fmt.Errorf("subject %s session %d: %w", subject, sessions[ss], err)
		}
		for m, row := range rec.Rows {
			sum.ModelWeightAIC[m][ss] = row.ModelWeightAIC
			sum.AIC[m][ss] = row.AIC
			sum.LPTAIC[m][ss] = row.LPTAIC
		}
		if len(rec.CV) > 0 {
			sum.KFold = rec.CV[0].KFold
		}
		sum.Sessions = append(sum.Sessions, s)
	}

	if opts.Contrast {
		ref := grand.Rows[opts.ReferenceModel-1].AIC
		sum.ContrastModels = append([]int(nil), opts.ContrastModels...)
		for _, m := range opts.ContrastModels {
			sum.ContrastNotation = append(sum.ContrastNotation, grand.Rows[m-1].ParaNotation)
			sum.DeltaAICGrand = append(sum.DeltaAICGrand, grand.Rows[m-1].AIC-ref)
		}
	}

	if sum.BlockSwitches, err = blockswitch.AlignSubject(grand.History.SessionIDs, grand.History.RewardProbabilities, grand.History.Choices, opts.BlockSwitch); err != nil {
		return SubjectSummary{}, fmt.Errorf("subject %s: block switch: %w", subject, err)
	}
	return sum, nil
}

func summariseSession(ss, sessionID int, rec model.ComparisonRecord, grand model.ComparisonRecord, overall, biasIdx int, opts Options) (SessionSummary, error) {
	if len(rec.Rows) == 0 {
		c, err := comparison.FromRecord(rec, nil)
		if err != nil {
			return SessionSummary{}, err
		}
		rec.Rows = c.Rows()
	}
	if len(rec.Rows) != len(grand.Rows) {
		return SessionSummary{}, fmt.Errorf("%d models in session, %d in grand", len(rec.Rows), len(grand.Rows))
	}
	best, ok := comparison.BestRow(rec.Rows)
	if !ok {
		return SessionSummary{}, errors.New("session comparison has no best model")
	}
	s := SessionSummary{
		SessionIdx:    ss + 1,
		SessionNumber: sessionID,
		Trials:        rec.History.Trials(),
		BestModel:     best.Index,
		FittedParams:  append([]float64(nil), rec.Rows[overall-1].ParaFitted...),
	}
	var err error
	if s.AccuracyNONCV, err = accuracy(rec, best.Index); err != nil {
		return SessionSummary{}, err
	}
	if s.AccuracySugrue, err = accuracy(rec, opts.SugrueModel); err != nil {
		return SessionSummary{}, err
	}

	// rewards come from the session fit, probabilities from the pooled history
	probs := grand.History.Subset(sessionID).RewardProbabilities
	eff := rec.History.Clone()
	eff.RewardProbabilities = probs
	if s.ForagingEfficiency, err = ForagingEfficiency(eff); err != nil {
		return SessionSummary{}, err
	}

	if len(rec.CV) > 0 {
		fit, test, bias := make([]float64, len(rec.CV)), make([]float64, len(rec.CV)), make([]float64, len(rec.CV))
		for i, row := range rec.CV {
			fit[i], test[i], bias[i] = row.FitAccuracy, row.TestAccuracy, row.BiasOnlyTestAccuracy
		}
		s.CVFit = meanPtr(fit)
		s.CVTest = meanPtr(test)
		s.CVTestBiasOnly = meanPtr(bias)
	}
	if biasIdx >= 0 {
		acc := biasOnlyAccuracy(rec.History.Choices, rec.Raw[overall-1].Params[biasIdx])
		s.AccuracyBiasOnly = &acc
	}
	if opts.Contrast {
		ref := rec.Rows[opts.ReferenceModel-1].AIC
		for _, m := range opts.ContrastModels {
			s.DeltaAIC = append(s.DeltaAIC, rec.Rows[m-1].AIC-ref)
		}
	}
	return s, nil
}

// accuracy is the fraction of trials whose argmax predicted choice matches
// the observed one, for the model at 1-based index.
func accuracy(rec model.ComparisonRecord, index int) (float64, error) {
	if index < 1 || index > len(rec.Raw) {
		return 0, fmt.Errorf("%w: %d not in [1, %d]", registry.ErrModelIndex, index, len(rec.Raw))
	}
	prob := rec.Raw[index-1].PredictiveChoiceProb
	choices := rec.History.Choices
	if len(prob) == 0 || len(prob[0]) != len(choices) {
		return 0, fmt.Errorf("%w: model %d has no predictive probabilities for %d trials", model.ErrInputShape, index, len(choices))
	}
	col := make([]float64, len(prob))
	hit := 0
	for t, c := range choices {
		for arm := range prob {
			col[arm] = prob[arm][t]
		}
		if floats.MaxIdx(col) == c {
			hit++
		}
	}
	return float64(hit) / float64(len(choices)), nil
}

// biasOnlyAccuracy predicts arm 0 for every trial when bias favours it,
// arm 1 otherwise.
func biasOnlyAccuracy(choices []int, bias float64) float64 {
	if len(choices) == 0 {
		return 0
	}
	which := 0
	if bias <= 0 {
		which = 1
	}
	hit := 0
	for _, c := range choices {
		if c == which {
			hit++
		}
	}
	return float64(hit) / float64(len(choices))
}

func freeParamIndex(spec model.ModelSpec, name string) int {
	for i, n := range spec.ParamNames {
		if n == name && spec.IsFree(i) {
			return i
		}
	}
	return -1
}

func contrastIndices(opts Options) []int {
	if !opts.Contrast {
		return nil
	}
	return append([]int{opts.ReferenceModel}, opts.ContrastModels...)
}

func matrix(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

func meanPtr(xs []float64) *float64 {
	v := floats.Sum(xs) / float64(len(xs))
	return &v
}
