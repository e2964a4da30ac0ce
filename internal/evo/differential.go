package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"foragerfit/internal/tuning"
)

// DEConfig parameterises a best1bin differential evolution run.
type DEConfig struct {
	// PopSize is a multiplier: the population holds PopSize × dim members.
	PopSize     int
	MaxIter     int
	Tol         float64
	Atol        float64
	MutationMin float64
	MutationMax float64
	Crossover   float64
	Seed        int64
}

func DefaultDEConfig() DEConfig {
	return DEConfig{
		PopSize:     16,
		MaxIter:     1000,
		Tol:         0.01,
		MutationMin: 0.5,
		MutationMax: 1.0,
		Crossover:   0.7,
		Seed:        1,
	}
}

func (c DEConfig) Validate() error {
	if c.PopSize < 1 {
		return errors.New("population size must be > 0")
	}
	if c.MaxIter < 1 {
		return errors.New("max iterations must be > 0")
	}
	if c.Tol < 0 || c.Atol < 0 {
		return errors.New("tolerances must be >= 0")
	}
	if c.MutationMin < 0 || c.MutationMax < c.MutationMin || c.MutationMax > 2 {
		return fmt.Errorf("invalid mutation range [%g, %g]", c.MutationMin, c.MutationMax)
	}
	if c.Crossover < 0 || c.Crossover > 1 {
		return fmt.Errorf("crossover %g outside [0, 1]", c.Crossover)
	}
	return nil
}

type DEResult struct {
	X           []float64
	Value       float64
	Generations int
	Evaluations int
	Converged   bool
}

// DifferentialEvolution minimises objective over bounds. Each generation's
// trial vectors are scored through pool, then selection replaces members
// the trial does not worsen.
func DifferentialEvolution(ctx context.Context, objective tuning.Objective, bounds tuning.Bounds, cfg DEConfig, pool *Pool) (DEResult, error) {
	if err := cfg.Validate(); err != nil {
		return DEResult{}, err
	}
	if objective == nil {
		return DEResult{}, errors.New("objective is required")
	}
	dim := bounds.Dim()
	if len(bounds.Upper) != dim {
		return DEResult{}, fmt.Errorf("bounds have %d lower and %d upper entries", dim, len(bounds.Upper))
	}
	if dim == 0 {
		v, err := objective(ctx, nil)
		if err != nil {
			return DEResult{}, err
		}
		return DEResult{X: []float64{}, Value: v, Evaluations: 1, Converged: true}, nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	size := max(cfg.PopSize*dim, 5)
	popn := latinHypercube(rng, size, bounds)
	energies := make([]float64, size)
	if err := evaluateAll(ctx, pool, objective, popn, energies); err != nil {
		return DEResult{}, err
	}
	result := DEResult{Evaluations: size}

	trials := make([][]float64, size)
	trialEnergies := make([]float64, size)
	for gen := 1; gen <= cfg.MaxIter; gen++ {
		if err := ctx.Err(); err != nil {
			return DEResult{}, err
		}
		best := floats.MinIdx(energies)
		f := cfg.MutationMin + rng.Float64()*(cfg.MutationMax-cfg.MutationMin)
		for i := range popn {
			trials[i] = best1bin(rng, popn, i, best, f, cfg.Crossover, bounds)
		}
		if err := evaluateAll(ctx, pool, objective, trials, trialEnergies); err != nil {
			return DEResult{}, err
		}
		result.Evaluations += size
		for i := range popn {
			if trialEnergies[i] <= energies[i] {
				popn[i] = trials[i]
				energies[i] = trialEnergies[i]
			}
		}
		result.Generations = gen
		if converged(energies, cfg.Atol, cfg.Tol) {
			result.Converged = true
			break
		}
	}

	best := floats.MinIdx(energies)
	result.X = append([]float64(nil), popn[best]...)
	result.Value = energies[best]
	return result, nil
}

func evaluateAll(ctx context.Context, pool *Pool, objective tuning.Objective, xs [][]float64, out []float64) error {
	return pool.Map(ctx, len(xs), func(ctx context.Context, i int) error {
		v, err := objective(ctx, xs[i])
		if err != nil {
			return err
		}
		if math.IsNaN(v) {
			v = math.Inf(1)
		}
		out[i] = v
		return nil
	})
}

// converged applies std(E) <= atol + tol*|mean(E)|.
func converged(energies []float64, atol, tol float64) bool {
	for _, e := range energies {
		if math.IsInf(e, 0) {
			return false
		}
	}
	mean, std := stat.PopMeanStdDev(energies, nil)
	return std <= atol+tol*math.Abs(mean)
}

func latinHypercube(rng *rand.Rand, n int, bounds tuning.Bounds) [][]float64 {
	dim := bounds.Dim()
	popn := make([][]float64, n)
	for i := range popn {
		popn[i] = make([]float64, dim)
	}
	segment := 1.0 / float64(n)
	for d := 0; d < dim; d++ {
		perm := rng.Perm(n)
		width := bounds.Upper[d] - bounds.Lower[d]
		for i := range popn {
			u := (float64(perm[i]) + rng.Float64()) * segment
			popn[i][d] = bounds.Lower[d] + u*width
		}
	}
	return popn
}

func best1bin(rng *rand.Rand, popn [][]float64, i, best int, f, cr float64, bounds tuning.Bounds) []float64 {
	n := len(popn)
	r0, r1 := i, i
	for r0 == i {
		r0 = rng.Intn(n)
	}
	for r1 == i || r1 == r0 {
		r1 = rng.Intn(n)
	}
	dim := len(popn[i])
	trial := append([]float64(nil), popn[i]...)
	jrand := rng.Intn(dim)
	for d := 0; d < dim; d++ {
		if d == jrand || rng.Float64() < cr {
			trial[d] = popn[best][d] + f*(popn[r0][d]-popn[r1][d])
		}
		if trial[d] < bounds.Lower[d] || trial[d] > bounds.Upper[d] {
			trial[d] = bounds.Lower[d] + rng.Float64()*(bounds.Upper[d]-bounds.Lower[d])
		}
	}
	return trial
}
