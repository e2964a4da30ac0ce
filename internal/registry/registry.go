// Package registry holds the immutable catalog of default behavioral models
// and the display notation of their parameters.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"foragerfit/internal/model"
)

var ErrModelIndex = errors.New("model index out of range")

// Index constants are 1-based positions in the default catalog.
const (
	SugrueIndex     = 4
	StandardRLIndex = 12
)

// defaultModels is ordered with hindsight: no bias (1-8), with bias (9-15),
// with bias and choice kernel (16-21).
var defaultModels = []model.ModelSpec{
	{Forager: model.LossCounting, ParamNames: []string{"loss_count_threshold_mean", "loss_count_threshold_std"}, Lower: []float64{0, 0}, Upper: []float64{40, 10}},
	{Forager: model.RW1972Epsi, ParamNames: []string{"learn_rate", "epsilon"}, Lower: []float64{0, 0}, Upper: []float64{1, 1}},
	{Forager: model.LNPSoftmax, ParamNames: []string{"tau1", "softmax_temperature"}, Lower: []float64{1e-3, 1e-2}, Upper: []float64{100, 15}},
	{Forager: model.LNPSoftmax, ParamNames: []string{"tau1", "tau2", "w_tau1", "softmax_temperature"}, Lower: []float64{1e-3, 1e-1, 0, 1e-2}, Upper: []float64{15, 40, 1, 15}},
	{Forager: model.RW1972Softmax, ParamNames: []string{"learn_rate", "softmax_temperature"}, Lower: []float64{0, 1e-2}, Upper: []float64{1, 15}},
	{Forager: model.Hattori2019, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "softmax_temperature"}, Lower: []float64{0, 0, 1e-2}, Upper: []float64{1, 1, 15}},
	{Forager: model.Bari2019, ParamNames: []string{"learn_rate", "forget_rate", "softmax_temperature"}, Lower: []float64{0, 0, 1e-2}, Upper: []float64{1, 1, 15}},
	{Forager: model.Hattori2019, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "forget_rate", "softmax_temperature"}, Lower: []float64{0, 0, 0, 1e-2}, Upper: []float64{1, 1, 1, 15}},

	{Forager: model.RW1972Epsi, ParamNames: []string{"learn_rate", "epsilon", "biasL"}, Lower: []float64{0, 0, -0.5}, Upper: []float64{1, 1, 0.5}},
	{Forager: model.LNPSoftmax, ParamNames: []string{"tau1", "softmax_temperature", "biasL"}, Lower: []float64{1e-3, 1e-2, -5}, Upper: []float64{100, 15, 5}},
	{Forager: model.LNPSoftmax, ParamNames: []string{"tau1", "tau2", "w_tau1", "softmax_temperature", "biasL"}, Lower: []float64{1e-3, 1e-1, 0, 1e-2, -5}, Upper: []float64{15, 40, 1, 15, 5}},
	{Forager: model.RW1972Softmax, ParamNames: []string{"learn_rate", "softmax_temperature", "biasL"}, Lower: []float64{0, 1e-2, -5}, Upper: []float64{1, 15, 5}},
	{Forager: model.Hattori2019, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "softmax_temperature", "biasL"}, Lower: []float64{0, 0, 1e-2, -5}, Upper: []float64{1, 1, 15, 5}},
	{Forager: model.Bari2019, ParamNames: []string{"learn_rate", "forget_rate", "softmax_temperature", "biasL"}, Lower: []float64{0, 0, 1e-2, -5}, Upper: []float64{1, 1, 15, 5}},
	{Forager: model.Hattori2019, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "forget_rate", "softmax_temperature", "biasL"}, Lower: []float64{0, 0, 0, 1e-2, -5}, Upper: []float64{1, 1, 1, 15, 5}},

	{Forager: model.LNPSoftmaxCK, ParamNames: []string{"tau1", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{1e-3, 1e-2, -5, 0, 1e-2}, Upper: []float64{100, 15, 5, 1, 20}},
	{Forager: model.LNPSoftmaxCK, ParamNames: []string{"tau1", "tau2", "w_tau1", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{1e-3, 1e-1, 0, 1e-2, -5, 0, 1e-2}, Upper: []float64{15, 40, 1, 15, 5, 1, 20}},
	{Forager: model.RW1972SoftmaxCK, ParamNames: []string{"learn_rate", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{0, 1e-2, -5, 0, 1e-2}, Upper: []float64{1, 15, 5, 1, 20}},
	{Forager: model.Hattori2019CK, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{0, 0, 1e-2, -5, 0, 1e-2}, Upper: []float64{1, 1, 15, 5, 1, 20}},
	{Forager: model.Bari2019CK, ParamNames: []string{"learn_rate", "forget_rate", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{0, 0, 1e-2, -5, 0, 1e-2}, Upper: []float64{1, 1, 15, 5, 1, 20}},
	{Forager: model.Hattori2019CK, ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "forget_rate", "softmax_temperature", "biasL", "choice_step_size", "choice_softmax_temperature"}, Lower: []float64{0, 0, 0, 1e-2, -5, 0, 1e-2}, Upper: []float64{1, 1, 1, 15, 5, 1, 20}},
}

var paraNotations = map[string]string{
	"loss_count_threshold_mean":  `$\mu_{LC}$`,
	"loss_count_threshold_std":   `$\sigma_{LC}$`,
	"tau1":                       `$\tau_1$`,
	"tau2":                       `$\tau_2$`,
	"w_tau1":                     `$w_{\tau_1}$`,
	"learn_rate":                 `$\alpha$`,
	"learn_rate_rew":             `$\alpha_{rew}$`,
	"learn_rate_unrew":           `$\alpha_{unr}$`,
	"forget_rate":                `$\delta$`,
	"softmax_temperature":        `$\sigma$`,
	"epsilon":                    `$\epsilon$`,
	"biasL":                      `$b_L$`,
	"biasR":                      `$b_R$`,
	"choice_step_size":           `$\alpha_c$`,
	"choice_softmax_temperature": `$\sigma_c$`,
}

// Len is the number of default models.
func Len() int {
	return len(defaultModels)
}

// Default returns a copy of the full default catalog.
func Default() []model.ModelSpec {
	out := make([]model.ModelSpec, len(defaultModels))
	for i, spec := range defaultModels {
		out[i] = spec.Clone()
	}
	return out
}

// ByIndex selects default models by 1-based index, preserving request order.
func ByIndex(indices ...int) ([]model.ModelSpec, error) {
	out := make([]model.ModelSpec, 0, len(indices))
	for _, idx := range indices {
		if idx < 1 || idx > len(defaultModels) {
			return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrModelIndex, idx, len(defaultModels))
		}
		out = append(out, defaultModels[idx-1].Clone())
	}
	return out, nil
}

// Notation returns the display symbol of a parameter, falling back to the raw
// name for parameters outside the catalog.
func Notation(param string) string {
	if sym, ok := paraNotations[param]; ok {
		return sym
	}
	return param
}

// FreeNotation joins the display symbols of the free parameters of spec with ", ".
func FreeNotation(spec model.ModelSpec) string {
	parts := make([]string, 0, len(spec.ParamNames))
	for i, name := range spec.ParamNames {
		if spec.IsFree(i) {
			parts = append(parts, Notation(name))
		}
	}
	return strings.Join(parts, ", ")
}

// FreeNames returns the raw names of the free parameters of spec.
func FreeNames(spec model.ModelSpec) []string {
	out := make([]string, 0, len(spec.ParamNames))
	for i, name := range spec.ParamNames {
		if spec.IsFree(i) {
			out = append(out, name)
		}
	}
	return out
}
