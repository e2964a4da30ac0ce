package tuning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Exoself is a bounded stochastic hill climber. Each attempt perturbs one or
// more base candidates coordinate by coordinate with an annealed spread
// proportional to the box width, and keeps improvements larger than
// MinImprovement.
type Exoself struct {
	Rand               *rand.Rand
	Steps              int
	StepSize           float64
	AnnealingFactor    float64
	MinImprovement     float64
	CandidateSelection string
	mu                 sync.Mutex
}

const (
	CandidateSelectBestSoFar = "best_so_far"
	CandidateSelectOriginal  = "original"
	CandidateSelectDynamicA  = "dynamic"
	CandidateSelectDynamic   = "dynamic_random"
	CandidateSelectRecent    = "recent"
)

func (e *Exoself) Name() string {
	return "exoself_hillclimb"
}

func (e *Exoself) validate(x []float64, bounds Bounds, objective Objective) error {
	if e == nil || e.Rand == nil {
		return errors.New("random source is required")
	}
	if e.Steps <= 0 {
		return errors.New("steps must be > 0")
	}
	if e.StepSize <= 0 {
		return errors.New("step size must be > 0")
	}
	if e.AnnealingFactor < 0 {
		return errors.New("annealing factor must be >= 0")
	}
	if e.MinImprovement < 0 {
		return errors.New("min improvement must be >= 0")
	}
	if err := ValidateCandidateSelection(e.CandidateSelection); err != nil {
		return err
	}
	if objective == nil {
		return errors.New("objective is required")
	}
	if len(bounds.Lower) != len(x) || len(bounds.Upper) != len(x) {
		return fmt.Errorf("bounds have %d/%d entries for %d parameters", len(bounds.Lower), len(bounds.Upper), len(x))
	}
	return nil
}

func (e *Exoself) Tune(ctx context.Context, x []float64, bounds Bounds, attempts int, objective Objective) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := e.validate(x, bounds, objective); err != nil {
		return Result{}, err
	}
	report := TuneReport{AttemptsPlanned: attempts}

	original := bounds.Clamp(append([]float64(nil), x...))
	bestValue, err := objective(ctx, original)
	if err != nil {
		return Result{}, err
	}
	report.CandidateEvaluations++
	best := append([]float64(nil), original...)
	if attempts <= 0 || len(x) == 0 {
		return Result{X: best, Value: bestValue, Report: report}, nil
	}

	annealingFactor := e.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}
	recent := append([]float64(nil), best...)

	for a := 0; a < attempts; a++ {
		bases, err := e.candidateBases(best, original, recent)
		if err != nil {
			return Result{}, err
		}
		report.AttemptsExecuted++
		localBest := append([]float64(nil), best...)
		localBestValue := bestValue
		for _, base := range bases {
			candidate, err := e.perturbCandidate(ctx, base, bounds, annealingFactor)
			if err != nil {
				return Result{}, err
			}
			value, err := objective(ctx, candidate)
			if err != nil {
				return Result{}, err
			}
			report.CandidateEvaluations++
			if value < localBestValue-e.MinImprovement {
				localBest = candidate
				localBestValue = value
			}
		}
		recent = append([]float64(nil), localBest...)
		if localBestValue < bestValue-e.MinImprovement {
			best = localBest
			bestValue = localBestValue
			report.AcceptedCandidates++
		} else {
			report.RejectedCandidates++
		}
	}
	return Result{X: best, Value: bestValue, Report: report}, nil
}

func (e *Exoself) randIntn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Intn(n)
}

func (e *Exoself) randFloat64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Float64()
}

func NormalizeCandidateSelectionName(name string) string {
	switch name {
	case "", CandidateSelectBestSoFar:
		return CandidateSelectBestSoFar
	default:
		return name
	}
}

func ValidateCandidateSelection(name string) error {
	switch NormalizeCandidateSelectionName(name) {
	case CandidateSelectBestSoFar, CandidateSelectOriginal, CandidateSelectRecent, CandidateSelectDynamicA, CandidateSelectDynamic:
		return nil
	default:
		return fmt.Errorf("unsupported candidate selection %q", name)
	}
}

func (e *Exoself) candidateBases(best, original, recent []float64) ([][]float64, error) {
	switch NormalizeCandidateSelectionName(e.CandidateSelection) {
	case CandidateSelectBestSoFar:
		return [][]float64{best}, nil
	case CandidateSelectOriginal:
		return [][]float64{original}, nil
	case CandidateSelectRecent:
		return [][]float64{recent}, nil
	case CandidateSelectDynamicA:
		return [][]float64{best, original}, nil
	case CandidateSelectDynamic:
		return e.randomSubset([][]float64{best, original, recent}), nil
	default:
		return nil, fmt.Errorf("unsupported candidate selection %q", e.CandidateSelection)
	}
}

func (e *Exoself) randomSubset(pool [][]float64) [][]float64 {
	mutationP := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([][]float64, 0, len(pool))
	for i := range pool {
		if e.randFloat64() < mutationP {
			chosen = append(chosen, pool[i])
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return [][]float64{pool[e.randIntn(len(pool))]}
}

func (e *Exoself) perturbCandidate(ctx context.Context, base []float64, bounds Bounds, annealingFactor float64) ([]float64, error) {
	candidate := append([]float64(nil), base...)
	for s := 0; s < e.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := e.randIntn(len(candidate))
		width := bounds.Upper[idx] - bounds.Lower[idx]
		if width <= 0 {
			continue
		}
		spread := e.StepSize * width * math.Pow(annealingFactor, float64(s))
		candidate[idx] += (e.randFloat64()*2 - 1) * spread
	}
	return bounds.Clamp(candidate), nil
}
