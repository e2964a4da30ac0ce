// Package task provides the dynamic foraging environment used to simulate
// behavior: a K-armed bandit with block-wise reward probabilities and
// baiting.
package task

import (
	"errors"
	"fmt"
	"math/rand"
)

// Bandit is the environment contract shared by simulators.
type Bandit interface {
	Name() string
	Arms() int
	// Step resolves one trial for the chosen arm and returns its reward.
	Step(choice int) (float64, error)
}

var ErrChoiceRange = errors.New("choice out of range")

// BaitedConfig describes block structure and baiting.
type BaitedConfig struct {
	Arms           int
	BlockMin       int
	BlockMax       int
	ProbabilitySet [][]float64
	Baiting        bool
	Seed           int64
}

func DefaultBaitedConfig() BaitedConfig {
	return BaitedConfig{
		Arms:     2,
		BlockMin: 40,
		BlockMax: 80,
		ProbabilitySet: [][]float64{
			{0.225, 0.225},
			{0.45, 0.05},
			{0.4, 0.1},
			{0.3857, 0.0643},
		},
		Baiting: true,
		Seed:    1,
	}
}

func (c BaitedConfig) Validate() error {
	if c.Arms < 2 {
		return fmt.Errorf("baited task needs at least 2 arms, got %d", c.Arms)
	}
	if c.BlockMin < 1 || c.BlockMax < c.BlockMin {
		return fmt.Errorf("invalid block length range [%d, %d]", c.BlockMin, c.BlockMax)
	}
	if len(c.ProbabilitySet) == 0 {
		return fmt.Errorf("probability set is empty")
	}
	for i, set := range c.ProbabilitySet {
		if len(set) != c.Arms {
			return fmt.Errorf("probability set %d has %d entries for %d arms", i, len(set), c.Arms)
		}
		for _, p := range set {
			if p < 0 || p > 1 {
				return fmt.Errorf("probability set %d: %g outside [0, 1]", i, p)
			}
		}
	}
	return nil
}

// Baited is a stateful K-armed baited bandit. It is not safe for concurrent
// use.
type Baited struct {
	cfg  BaitedConfig
	rng  *rand.Rand
	bait []bool

	current   []float64
	remaining int
	lastSet   int

	probHistory [][]float64
	choices     []int
	rewards     [][]float64
}

func NewBaited(cfg BaitedConfig) (*Baited, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Baited{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		bait:        make([]bool, cfg.Arms),
		lastSet:     -1,
		probHistory: make([][]float64, cfg.Arms),
		rewards:     make([][]float64, cfg.Arms),
	}
	return b, nil
}

func (b *Baited) Name() string {
	return "baited_bandit"
}

func (b *Baited) Arms() int {
	return b.cfg.Arms
}

// nextBlock draws a new block length and probability assignment. The same
// set is not repeated twice in a row when an alternative exists, and the
// rich side is shuffled.
func (b *Baited) nextBlock() {
	idx := b.rng.Intn(len(b.cfg.ProbabilitySet))
	if len(b.cfg.ProbabilitySet) > 1 {
		for idx == b.lastSet {
			idx = b.rng.Intn(len(b.cfg.ProbabilitySet))
		}
	}
	b.lastSet = idx
	set := append([]float64(nil), b.cfg.ProbabilitySet[idx]...)
	if b.current != nil && len(set) == 2 && set[0] != set[1] {
		// keep the rich side alternating across consecutive blocks
		if (b.current[0] > b.current[1]) == (set[0] > set[1]) {
			set[0], set[1] = set[1], set[0]
		}
	} else {
		b.rng.Shuffle(len(set), func(i, j int) { set[i], set[j] = set[j], set[i] })
	}
	b.current = set
	b.remaining = b.cfg.BlockMin + b.rng.Intn(b.cfg.BlockMax-b.cfg.BlockMin+1)
}

func (b *Baited) Step(choice int) (float64, error) {
	if choice < 0 || choice >= b.cfg.Arms {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrChoiceRange, choice, b.cfg.Arms)
	}
	if b.remaining == 0 {
		b.nextBlock()
	}
	b.remaining--

	for arm, p := range b.current {
		if b.cfg.Baiting {
			if !b.bait[arm] {
				b.bait[arm] = b.rng.Float64() < p
			}
		} else {
			b.bait[arm] = b.rng.Float64() < p
		}
		b.probHistory[arm] = append(b.probHistory[arm], p)
	}

	reward := 0.0
	if b.bait[choice] {
		reward = 1
		b.bait[choice] = false
	}
	b.choices = append(b.choices, choice)
	for arm := range b.rewards {
		r := 0.0
		if arm == choice {
			r = reward
		}
		b.rewards[arm] = append(b.rewards[arm], r)
	}
	return reward, nil
}

// RewardProbabilities returns the K×T matrix of probabilities in effect on
// each trial so far.
func (b *Baited) RewardProbabilities() [][]float64 {
	out := make([][]float64, len(b.probHistory))
	for arm, row := range b.probHistory {
		out[arm] = append([]float64(nil), row...)
	}
	return out
}

// Choices returns the arms chosen so far.
func (b *Baited) Choices() []int {
	return append([]int(nil), b.choices...)
}

// Rewards returns the K×T reward matrix; unchosen arms read 0.
func (b *Baited) Rewards() [][]float64 {
	out := make([][]float64, len(b.rewards))
	for arm, row := range b.rewards {
		out[arm] = append([]float64(nil), row...)
	}
	return out
}
