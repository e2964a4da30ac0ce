package forager

import "math"

// lnpPolicy is the linear-nonlinear-Poisson forager: each arm's local income
// is an exponentially filtered reward trace, optionally a mix of two time
// constants.
type lnpPolicy struct {
	arms  int
	tau1  float64
	tau2  float64
	w     float64
	sigma float64
	bias  float64

	ckEnabled bool
	ckStep    float64
	ckSigma   float64

	income1 []float64
	income2 []float64
	ck      []float64
}

func (p *lnpPolicy) Reset() {
	p.income1 = make([]float64, p.arms)
	p.income2 = make([]float64, p.arms)
	p.ck = make([]float64, p.arms)
}

func (p *lnpPolicy) value(arm int) float64 {
	if p.w >= 1 || p.tau2 <= 0 {
		return p.income1[arm]
	}
	return p.w*p.income1[arm] + (1-p.w)*p.income2[arm]
}

func (p *lnpPolicy) ChoiceProb() []float64 {
	logits := make([]float64, p.arms)
	for i := range logits {
		logits[i] = p.value(i) / p.sigma
		if p.ckEnabled {
			logits[i] += p.ck[i] / p.ckSigma
		}
	}
	logits[0] += p.bias
	return softmaxLogits(logits)
}

func (p *lnpPolicy) Observe(choice int, reward float64) {
	d1 := decay(p.tau1)
	d2 := decay(p.tau2)
	for arm := range p.income1 {
		r := 0.0
		if arm == choice {
			r = reward
		}
		p.income1[arm] = p.income1[arm]*d1 + (1-d1)*r
		p.income2[arm] = p.income2[arm]*d2 + (1-d2)*r
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

// decay is the per-trial retention of a kernel with time constant tau.
// Non-positive tau forgets everything each trial.
func decay(tau float64) float64 {
	if tau <= 0 {
		return 0
	}
	return math.Exp(-1 / tau)
}
