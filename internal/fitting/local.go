package fitting

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"

	"foragerfit/internal/evo"
)

// optimiseLocal runs Nelder–Mead from several random starts inside the box.
// The simplex may wander outside; the objective is evaluated at the
// projection back into the box plus a quadratic penalty on the excursion.
func (e *Engine) optimiseLocal(ctx context.Context, p *problem, settings Settings, pool *evo.Pool) (optimum, error) {
	if len(p.free) == 0 {
		nll, err := p.objective(ctx, nil)
		if err != nil {
			return optimum{}, err
		}
		return optimum{x: []float64{}, nll: nll, evaluations: 1}, nil
	}
	starts := max(settings.LocalStarts, 1)
	rng := rand.New(rand.NewSource(settings.Seed))
	inits := make([][]float64, starts)
	for s := range inits {
		x := make([]float64, len(p.free))
		for d := range x {
			x[d] = p.bounds.Lower[d] + rng.Float64()*(p.bounds.Upper[d]-p.bounds.Lower[d])
		}
		inits[s] = x
	}

	results := make([]optimum, starts)
	err := pool.Map(ctx, starts, func(ctx context.Context, s int) error {
		res, err := e.nelderMead(ctx, p, inits[s], settings.LocalMaxEvaluations)
		if err != nil {
			return err
		}
		results[s] = res
		return nil
	})
	if err != nil {
		return optimum{}, err
	}

	best := results[0]
	total := 0
	for _, r := range results {
		total += r.evaluations
		if r.nll < best.nll {
			best = r
		}
	}
	best.evaluations = total
	return best, nil
}

func (e *Engine) nelderMead(ctx context.Context, p *problem, init []float64, maxEvals int) (optimum, error) {
	var evalErr error
	clamped := make([]float64, len(init))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			copy(clamped, x)
			p.bounds.Clamp(clamped)
			penalty := 0.0
			for i := range x {
				d := x[i] - clamped[i]
				penalty += d * d
			}
			nll, err := p.objective(ctx, clamped)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return nll + 1e3*penalty
		},
	}
	settings := &optimize.Settings{FuncEvaluations: maxEvals}
	res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if evalErr != nil {
		return optimum{}, evalErr
	}
	if res == nil {
		return optimum{}, fmt.Errorf("nelder-mead: %w", err)
	}
	if err != nil && res.Status != optimize.FunctionEvaluationLimit && res.Status != optimize.IterationLimit {
		return optimum{}, fmt.Errorf("nelder-mead: %w", err)
	}
	x := p.bounds.Clamp(append([]float64(nil), res.X...))
	nll, err := p.objective(ctx, x)
	if err != nil {
		return optimum{}, err
	}
	return optimum{x: x, nll: nll, evaluations: res.Stats.FuncEvaluations + 1}, nil
}
