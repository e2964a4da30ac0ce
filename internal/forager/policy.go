// Package forager implements the trial-by-trial choice policies of the
// behavioral model families. The same Policy drives likelihood evaluation
// and generative simulation.
package forager

import (
	"fmt"
	"math"

	"foragerfit/internal/model"
)

// Policy is a stateful behavioral model. ChoiceProb describes the upcoming
// trial; Observe advances the latent state with the realised outcome.
type Policy interface {
	Reset()
	ChoiceProb() []float64
	Observe(choice int, reward float64)
}

type params map[string]float64

func (p params) get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

func (p params) require(f model.Forager, names ...string) error {
	for _, name := range names {
		if _, ok := p[name]; !ok {
			return fmt.Errorf("forager %s: missing parameter %q", f, name)
		}
	}
	return nil
}

// New builds the policy of forager f from named parameter values.
// Parameters a family does not use are ignored; optional ones (biasL,
// forget_rate) default to zero.
func New(f model.Forager, names []string, values []float64, arms int) (Policy, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("forager %s: %d names for %d values", f, len(names), len(values))
	}
	if arms < 2 {
		return nil, fmt.Errorf("forager %s: need at least 2 arms, got %d", f, arms)
	}
	p := make(params, len(names))
	for i, name := range names {
		p[name] = values[i]
	}

	switch f {
	case model.LossCounting:
		if err := p.require(f, "loss_count_threshold_mean", "loss_count_threshold_std"); err != nil {
			return nil, err
		}
		return newLossCounting(arms, p["loss_count_threshold_mean"], p["loss_count_threshold_std"]), nil
	case model.RW1972Epsi:
		if err := p.require(f, "learn_rate", "epsilon"); err != nil {
			return nil, err
		}
		vp := &valuePolicy{
			arms:     arms,
			rule:     ruleRW,
			alphaRew: p["learn_rate"],
			alphaUnr: p["learn_rate"],
			choice:   choiceEpsilon,
			epsilon:  p["epsilon"],
			bias:     p.get("biasL", 0),
			sigma:    1,
			ckSigma:  1,
		}
		return withChoiceKernel(vp, false, p)
	case model.RW1972Softmax, model.RW1972SoftmaxCK:
		if err := p.require(f, "learn_rate", "softmax_temperature"); err != nil {
			return nil, err
		}
		vp := &valuePolicy{
			arms:     arms,
			rule:     ruleRW,
			alphaRew: p["learn_rate"],
			alphaUnr: p["learn_rate"],
			choice:   choiceSoftmax,
			sigma:    p["softmax_temperature"],
			bias:     p.get("biasL", 0),
			ckSigma:  1,
		}
		return withChoiceKernel(vp, f == model.RW1972SoftmaxCK, p)
	case model.Hattori2019, model.Hattori2019CK:
		if err := p.require(f, "learn_rate_rew", "learn_rate_unrew", "softmax_temperature"); err != nil {
			return nil, err
		}
		vp := &valuePolicy{
			arms:     arms,
			rule:     ruleHattori,
			alphaRew: p["learn_rate_rew"],
			alphaUnr: p["learn_rate_unrew"],
			forget:   p.get("forget_rate", 0),
			choice:   choiceSoftmax,
			sigma:    p["softmax_temperature"],
			bias:     p.get("biasL", 0),
			ckSigma:  1,
		}
		return withChoiceKernel(vp, f == model.Hattori2019CK, p)
	case model.Bari2019, model.Bari2019CK:
		if err := p.require(f, "learn_rate", "forget_rate", "softmax_temperature"); err != nil {
			return nil, err
		}
		vp := &valuePolicy{
			arms:     arms,
			rule:     ruleBari,
			alphaRew: p["learn_rate"],
			alphaUnr: p["learn_rate"],
			forget:   p["forget_rate"],
			choice:   choiceSoftmax,
			sigma:    p["softmax_temperature"],
			bias:     p.get("biasL", 0),
			ckSigma:  1,
		}
		return withChoiceKernel(vp, f == model.Bari2019CK, p)
	case model.LNPSoftmax, model.LNPSoftmaxCK:
		if err := p.require(f, "tau1", "softmax_temperature"); err != nil {
			return nil, err
		}
		lp := &lnpPolicy{
			arms:    arms,
			tau1:    p["tau1"],
			tau2:    p.get("tau2", 0),
			w:       p.get("w_tau1", 1),
			sigma:   p["softmax_temperature"],
			bias:    p.get("biasL", 0),
			ckSigma: 1,
		}
		if _, ok := p["tau2"]; !ok {
			lp.w = 1
		}
		if f == model.LNPSoftmaxCK {
			if err := p.require(f, "choice_step_size", "choice_softmax_temperature"); err != nil {
				return nil, err
			}
			lp.ckEnabled = true
			lp.ckStep = p["choice_step_size"]
			lp.ckSigma = p["choice_softmax_temperature"]
		}
		lp.Reset()
		return lp, nil
	case model.ForagerUnknown:
		return nil, fmt.Errorf("forager is required")
	default:
		return nil, fmt.Errorf("unsupported forager %s", f)
	}
}

func withChoiceKernel(vp *valuePolicy, enabled bool, p params) (Policy, error) {
	if enabled {
		if err := p.require(vp.forager(), "choice_step_size", "choice_softmax_temperature"); err != nil {
			return nil, err
		}
		vp.ckEnabled = true
		vp.ckStep = p["choice_step_size"]
		vp.ckSigma = p["choice_softmax_temperature"]
	}
	vp.Reset()
	return vp, nil
}

// Softmax returns exp(v/temperature) normalised over v, stabilised by
// subtracting the maximum before exponentiating.
func Softmax(values []float64, temperature float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	maxV := math.Inf(-1)
	for _, v := range values {
		if s := v / temperature; s > maxV {
			maxV = s
		}
	}
	total := 0.0
	for i, v := range values {
		out[i] = math.Exp(v/temperature - maxV)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func softmaxLogits(logits []float64) []float64 {
	return Softmax(logits, 1)
}
