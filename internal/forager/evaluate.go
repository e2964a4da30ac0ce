package forager

import (
	"fmt"
	"math"

	"foragerfit/internal/model"
)

// probFloor keeps log-likelihood finite for deterministic policies.
const probFloor = 1e-16

// Evaluation is the outcome of replaying a history through a policy.
type Evaluation struct {
	NLL float64
	// Counted is the number of trials that contributed to NLL.
	Counted int
	// ChoiceProb is K×T, filled only when requested.
	ChoiceProb [][]float64
}

// Evaluate replays h through p and accumulates the negative log-likelihood
// of the observed choices. When mask is non-nil only trials with mask[t]
// are counted, but the latent state still advances on every trial. The
// policy is reset at the start and at every session boundary.
func Evaluate(p Policy, h model.ChoiceRewardHistory, mask []bool, wantProb bool) (Evaluation, error) {
	if err := h.Validate(); err != nil {
		return Evaluation{}, err
	}
	trials := h.Trials()
	if mask != nil && len(mask) != trials {
		return Evaluation{}, fmt.Errorf("%w: mask length %d for %d trials", model.ErrInputShape, len(mask), trials)
	}
	var eval Evaluation
	if wantProb {
		eval.ChoiceProb = make([][]float64, h.Arms())
		for arm := range eval.ChoiceProb {
			eval.ChoiceProb[arm] = make([]float64, trials)
		}
	}

	p.Reset()
	for t := 0; t < trials; t++ {
		if t > 0 && h.SessionIDs != nil && h.SessionIDs[t] != h.SessionIDs[t-1] {
			p.Reset()
		}
		probs := p.ChoiceProb()
		if len(probs) != h.Arms() {
			return Evaluation{}, fmt.Errorf("%w: policy returned %d probabilities for %d arms", model.ErrInputShape, len(probs), h.Arms())
		}
		choice := h.Choices[t]
		if mask == nil || mask[t] {
			pc := probs[choice]
			if math.IsNaN(pc) {
				return Evaluation{}, fmt.Errorf("trial %d: choice probability is NaN", t)
			}
			eval.NLL -= math.Log(math.Max(pc, probFloor))
			eval.Counted++
		}
		if wantProb {
			for arm, v := range probs {
				eval.ChoiceProb[arm][t] = v
			}
		}
		p.Observe(choice, h.Rewards[choice][t])
	}
	return eval, nil
}
