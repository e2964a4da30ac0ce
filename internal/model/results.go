package model

import "time"

// FitResult is the output of a single bounded fit of one model to one history.
type FitResult struct {
	Forager Forager `json:"forager"`
	// Params is the full parameter vector, fixed entries included.
	Params []float64 `json:"params"`
	// X holds only the free (estimated) parameters, in spec order.
	X                    []float64   `json:"x"`
	Km                   int         `json:"km"`
	NLL                  float64     `json:"nll"`
	AIC                  float64     `json:"aic"`
	BIC                  float64     `json:"bic"`
	LPT                  float64     `json:"lpt"`
	LPTAIC               float64     `json:"lpt_aic"`
	LPTBIC               float64     `json:"lpt_bic"`
	TrialNumbers         int         `json:"trial_numbers"`
	Evaluations          int         `json:"evaluations"`
	PredictiveChoiceProb [][]float64 `json:"predictive_choice_prob,omitempty"`
}

// ComparisonRow is one model's line in a comparison table. Everything below
// the fit block is derived from the full set of rows.
type ComparisonRow struct {
	Index        int       `json:"index"`
	Model        ModelSpec `json:"model"`
	Km           int       `json:"km"`
	AIC          float64   `json:"aic"`
	BIC          float64   `json:"bic"`
	LPTAIC       float64   `json:"lpt_aic"`
	LPTBIC       float64   `json:"lpt_bic"`
	LPT          float64   `json:"lpt"`
	ParaNotation string    `json:"para_notation"`
	ParaFitted   []float64 `json:"para_fitted"`

	DeltaAIC              float64 `json:"delta_aic"`
	DeltaBIC              float64 `json:"delta_bic"`
	RelativeLikelihoodAIC float64 `json:"relative_likelihood_aic"`
	RelativeLikelihoodBIC float64 `json:"relative_likelihood_bic"`
	ModelWeightAIC        float64 `json:"model_weight_aic"`
	ModelWeightBIC        float64 `json:"model_weight_bic"`
	Log10BFAIC            float64 `json:"log10_bf_aic"`
	Log10BFBIC            float64 `json:"log10_bf_bic"`
	BestModelAIC          int     `json:"best_model_aic"`
	BestModelBIC          int     `json:"best_model_bic"`
	NotationWithBestFit   string  `json:"para_notation_with_best_fit,omitempty"`
}

// CrossValidationRow aggregates k-fold predictive accuracies for one model.
type CrossValidationRow struct {
	ModelIndex           int       `json:"model_index"`
	Forager              Forager   `json:"forager"`
	Km                   int       `json:"km"`
	ParaNotation         string    `json:"para_notation"`
	KFold                int       `json:"k_fold"`
	TestAccuracy         float64   `json:"prediction_accuracy_test"`
	FitAccuracy          float64   `json:"prediction_accuracy_fit"`
	BiasOnlyTestAccuracy float64   `json:"prediction_accuracy_test_bias_only"`
	FoldTestAccuracy     []float64 `json:"fold_test_accuracy,omitempty"`
	FoldFitAccuracy      []float64 `json:"fold_fit_accuracy,omitempty"`
	FoldBiasOnlyAccuracy []float64 `json:"fold_bias_only_accuracy,omitempty"`
}

// ComparisonRecord is the persistent snapshot of one model comparison.
type ComparisonRecord struct {
	VersionedRecord
	History      ChoiceRewardHistory  `json:"history"`
	Models       []ModelSpec          `json:"models"`
	Rows         []ComparisonRow      `json:"rows,omitempty"`
	Raw          []FitResult          `json:"raw,omitempty"`
	CV           []CrossValidationRow `json:"cv,omitempty"`
	TrialNumbers int                  `json:"trial_numbers"`
}

// SubjectResults mirrors the per-subject persisted layout: one grand
// comparison over all pooled sessions plus one per session.
type SubjectResults struct {
	VersionedRecord
	Subject     string             `json:"subject"`
	Grand       ComparisonRecord   `json:"model_comparison_grand"`
	SessionWise []ComparisonRecord `json:"model_comparison_session_wise,omitempty"`
}

// BlockSwitchRecord is one retained reward-probability transition. Choice and
// ChoiceNorm are fixed-width traces aligned on the switch; NaN marks trials
// outside the adjacent blocks. ChoiceNorm is all NaN when the post-switch
// asymptote does not exceed the baseline.
type BlockSwitchRecord struct {
	SessionID   int       `json:"session_num"`
	BlockSwitch int       `json:"block_switch"`
	PrevLength  int       `json:"prev_length"`
	NextLength  int       `json:"next_length"`
	PrevP       float64   `json:"prev_p_R"`
	NextP       float64   `json:"next_p_R"`
	ChangeP     float64   `json:"change_p_R"`
	Choice      []float64 `json:"choice_matrix"`
	ChoiceNorm  []float64 `json:"choice_norm_matrix"`
	Normalized  bool      `json:"normalized"`
}

// RunRecord indexes one batch invocation and the subjects it wrote.
type RunRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Prefix    string    `json:"prefix"`
	Subjects  []string  `json:"subjects"`
	Failed    []string  `json:"failed,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_seconds"`
}
