package forager

import "gonum.org/v1/gonum/stat/distuv"

// lossCounting stays on the current arm until the run of consecutive
// unrewarded trials crosses a normally distributed threshold.
type lossCounting struct {
	arms   int
	mu     float64
	sigma  float64
	normal distuv.Normal

	started bool
	current int
	losses  int
}

func newLossCounting(arms int, mu, sigma float64) *lossCounting {
	p := &lossCounting{arms: arms, mu: mu, sigma: sigma}
	if sigma > 0 {
		p.normal = distuv.Normal{Mu: mu, Sigma: sigma}
	}
	p.Reset()
	return p
}

func (p *lossCounting) Reset() {
	p.started = false
	p.current = 0
	p.losses = 0
}

func (p *lossCounting) switchProb() float64 {
	n := float64(p.losses)
	if p.sigma <= 0 {
		if n >= p.mu {
			return 1
		}
		return 0
	}
	return p.normal.CDF(n)
}

func (p *lossCounting) ChoiceProb() []float64 {
	out := make([]float64, p.arms)
	if !p.started {
		for i := range out {
			out[i] = 1 / float64(p.arms)
		}
		return out
	}
	ps := p.switchProb()
	out[p.current] = 1 - ps
	for i := range out {
		if i != p.current {
			out[i] = ps / float64(p.arms-1)
		}
	}
	return out
}

func (p *lossCounting) Observe(choice int, reward float64) {
	if !p.started || choice != p.current {
		p.started = true
		p.current = choice
		p.losses = 0
	}
	if reward > 0 {
		p.losses = 0
		return
	}
	p.losses++
}
