package fullstateq

import (
	"context"
	"fmt"

	"foragerfit/internal/model"
	"foragerfit/internal/task"
)

// Simulate runs act, reward and update against env for n trials.
func Simulate(ctx context.Context, l *Learner, env task.Bandit, n int) (model.ChoiceRewardHistory, error) {
	if n < 0 {
		return model.ChoiceRewardHistory{}, fmt.Errorf("trial count must be >= 0, got %d", n)
	}
	if env.Arms() != l.Arms() {
		return model.ChoiceRewardHistory{}, fmt.Errorf("%w: learner has %d arms, task %s has %d", model.ErrInputShape, l.Arms(), env.Name(), env.Arms())
	}
	h := model.ChoiceRewardHistory{
		Choices: make([]int, n),
		Rewards: make([][]float64, env.Arms()),
	}
	for arm := range h.Rewards {
		h.Rewards[arm] = make([]float64, n)
	}
	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return model.ChoiceRewardHistory{}, err
		}
		choice := l.Act()
		reward, err := env.Step(choice)
		if err != nil {
			return model.ChoiceRewardHistory{}, fmt.Errorf("trial %d: %w", t, err)
		}
		if err := l.Update(reward); err != nil {
			return model.ChoiceRewardHistory{}, err
		}
		h.Choices[t] = choice
		h.Rewards[choice][t] = reward
	}
	if rp, ok := env.(interface{ RewardProbabilities() [][]float64 }); ok {
		h.RewardProbabilities = rp.RewardProbabilities()
	}
	return h, nil
}
