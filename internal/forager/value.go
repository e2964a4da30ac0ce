package forager

import "foragerfit/internal/model"

type updateRule int

const (
	ruleRW updateRule = iota
	ruleHattori
	ruleBari
)

type choiceRule int

const (
	choiceSoftmax choiceRule = iota
	choiceEpsilon
)

// valuePolicy covers the action-value families (RW1972, Hattori2019,
// Bari2019) and their choice-kernel variants.
type valuePolicy struct {
	arms     int
	rule     updateRule
	alphaRew float64
	alphaUnr float64
	forget   float64

	choice  choiceRule
	sigma   float64
	epsilon float64
	bias    float64

	ckEnabled bool
	ckStep    float64
	ckSigma   float64

	q  []float64
	ck []float64
}

func (p *valuePolicy) forager() model.Forager {
	switch p.rule {
	case ruleHattori:
		if p.ckEnabled {
			return model.Hattori2019CK
		}
		return model.Hattori2019
	case ruleBari:
		if p.ckEnabled {
			return model.Bari2019CK
		}
		return model.Bari2019
	default:
		if p.choice == choiceEpsilon {
			return model.RW1972Epsi
		}
		if p.ckEnabled {
			return model.RW1972SoftmaxCK
		}
		return model.RW1972Softmax
	}
}

func (p *valuePolicy) Reset() {
	p.q = make([]float64, p.arms)
	p.ck = make([]float64, p.arms)
}

func (p *valuePolicy) ChoiceProb() []float64 {
	if p.choice == choiceEpsilon {
		return epsilonGreedy(p.q, p.epsilon, p.bias)
	}
	logits := make([]float64, p.arms)
	for i := range logits {
		logits[i] = p.q[i] / p.sigma
		if p.ckEnabled {
			logits[i] += p.ck[i] / p.ckSigma
		}
	}
	logits[0] += p.bias
	return softmaxLogits(logits)
}

func (p *valuePolicy) Observe(choice int, reward float64) {
	for arm := range p.q {
		if arm == choice {
			switch p.rule {
			case ruleRW:
				p.q[arm] += p.alphaRew * (reward - p.q[arm])
			case ruleHattori:
				alpha := p.alphaUnr
				if reward > 0 {
					alpha = p.alphaRew
				}
				p.q[arm] += alpha * (reward - p.q[arm])
			case ruleBari:
				p.q[arm] = (1-p.forget)*p.q[arm] + p.alphaRew*reward
			}
			continue
		}
		if p.rule != ruleRW {
			p.q[arm] *= 1 - p.forget
		}
	}
	if p.ckEnabled {
		for arm := range p.ck {
			target := 0.0
			if arm == choice {
				target = 1
			}
			p.ck[arm] += p.ckStep * (target - p.ck[arm])
		}
	}
}

// epsilonGreedy splits epsilon uniformly over all arms and puts the rest on
// the first maximal value. The bias shifts arm 0 before renormalising.
func epsilonGreedy(q []float64, epsilon, bias float64) []float64 {
	k := len(q)
	best := 0
	for i := 1; i < k; i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	out := make([]float64, k)
	for i := range out {
		out[i] = epsilon / float64(k)
	}
	out[best] += 1 - epsilon
	if bias == 0 {
		return out
	}
	out[0] = clip01(out[0] + bias)
	if k == 2 {
		out[1] = 1 - out[0]
		return out
	}
	rest := 0.0
	for i := 1; i < k; i++ {
		rest += out[i]
	}
	for i := 1; i < k; i++ {
		if rest > 0 {
			out[i] *= (1 - out[0]) / rest
		} else {
			out[i] = (1 - out[0]) / float64(k-1)
		}
	}
	return out
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
