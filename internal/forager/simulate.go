package forager

import (
	"context"
	"fmt"
	"math/rand"

	"foragerfit/internal/model"
	"foragerfit/internal/task"
)

// Simulate runs p against env for n trials, sampling each choice from the
// policy's probabilities, and returns the generated history.
func Simulate(ctx context.Context, p Policy, env task.Bandit, n int, rng *rand.Rand) (model.ChoiceRewardHistory, error) {
	if n < 0 {
		return model.ChoiceRewardHistory{}, fmt.Errorf("trial count must be >= 0, got %d", n)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	arms := env.Arms()
	h := model.ChoiceRewardHistory{
		Choices: make([]int, n),
		Rewards: make([][]float64, arms),
	}
	for arm := range h.Rewards {
		h.Rewards[arm] = make([]float64, n)
	}

	p.Reset()
	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return model.ChoiceRewardHistory{}, err
		}
		choice := sample(p.ChoiceProb(), rng)
		reward, err := env.Step(choice)
		if err != nil {
			return model.ChoiceRewardHistory{}, fmt.Errorf("trial %d: %w", t, err)
		}
		h.Choices[t] = choice
		h.Rewards[choice][t] = reward
		p.Observe(choice, reward)
	}
	if rp, ok := env.(interface{ RewardProbabilities() [][]float64 }); ok {
		h.RewardProbabilities = rp.RewardProbabilities()
	}
	return h, nil
}

func sample(probs []float64, rng *rand.Rand) int {
	u := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}
