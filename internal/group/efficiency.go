package group

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"foragerfit/internal/model"
)

// PHatGreedy returns the trial-averaged reward rate of the greedy
// alternating policy on a baited task with per-trial arm probabilities p
// (arm-major). For p_min > 0 the policy exploits the rich arm for m*
// trials, then harvests the bait accumulated on the lean arm.
func PHatGreedy(p [][]float64) (float64, error) {
	if len(p) == 0 || len(p[0]) == 0 {
		return 0, fmt.Errorf("%w: empty reward probability matrix", model.ErrInputShape)
	}
	trials := len(p[0])
	for arm, row := range p {
		if len(row) != trials {
			return 0, fmt.Errorf("%w: probability arm %d has %d trials, want %d", model.ErrInputShape, arm, len(row), trials)
		}
	}
	col := make([]float64, len(p))
	total := 0.0
	for t := 0; t < trials; t++ {
		for arm := range p {
			col[arm] = p[arm][t]
		}
		total += pStar(floats.Max(col), floats.Min(col))
	}
	return total / float64(trials), nil
}

func pStar(pMax, pMin float64) float64 {
	if pMin <= 0 {
		return pMax
	}
	if pMax >= 1 {
		return 1
	}
	mStar := math.Floor(math.Log(1-pMax) / math.Log(1-pMin))
	return pMax + (1-math.Pow(1-pMin, mStar+1)-pMax*pMax)/(mStar+1)
}

// ForagingEfficiency is the observed reward rate over the greedy optimum.
func ForagingEfficiency(h model.ChoiceRewardHistory) (float64, error) {
	if h.Trials() == 0 {
		return 0, fmt.Errorf("%w: empty history", model.ErrInputShape)
	}
	optimum, err := PHatGreedy(h.RewardProbabilities)
	if err != nil {
		return 0, err
	}
	if optimum <= 0 {
		return 0, nil
	}
	return h.TotalReward() / float64(h.Trials()) / optimum, nil
}
