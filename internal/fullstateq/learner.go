// Package fullstateq implements a tabular Q-learner whose states are
// (arm, run length) pairs, the full state representation of a baited
// two-armed bandit.
package fullstateq

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"foragerfit/internal/forager"
)

var (
	ErrNoPolicy        = errors.New("either softmax temperature or epsilon is required")
	ErrNoPendingAction = errors.New("update called before any action")
)

type Config struct {
	Arms int `yaml:"arms"`

	// MaxRunLength is rounded up to the next integer.
	MaxRunLength       float64    `yaml:"max_run_length"`
	DiscountRate       float64    `yaml:"discount_rate"`
	LearnRate          float64    `yaml:"learn_rate"`
	SoftmaxTemperature *float64   `yaml:"softmax_temperature,omitempty"`
	Epsilon            *float64   `yaml:"epsilon,omitempty"`
	FirstChoice        *int       `yaml:"first_choice,omitempty"`
	Rand               *rand.Rand `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Arms:         2,
		MaxRunLength: 10,
		DiscountRate: 0.99,
		LearnRate:    0.1,
	}
}

func (c Config) Validate() error {
	if c.SoftmaxTemperature == nil && c.Epsilon == nil {
		return ErrNoPolicy
	}
	if c.Arms < 2 {
		return fmt.Errorf("need at least 2 arms, got %d", c.Arms)
	}
	if math.Ceil(c.MaxRunLength) < 1 {
		return fmt.Errorf("max run length must be >= 1, got %g", c.MaxRunLength)
	}
	if c.SoftmaxTemperature != nil && *c.SoftmaxTemperature <= 0 {
		return fmt.Errorf("softmax temperature must be > 0, got %g", *c.SoftmaxTemperature)
	}
	if c.Epsilon != nil && (*c.Epsilon < 0 || *c.Epsilon > 1) {
		return fmt.Errorf("epsilon must be in [0, 1], got %g", *c.Epsilon)
	}
	if c.FirstChoice != nil && (*c.FirstChoice < 0 || *c.FirstChoice >= c.Arms) {
		return fmt.Errorf("first choice %d not in [0, %d)", *c.FirstChoice, c.Arms)
	}
	return nil
}

// State is one arena record. Next holds arena indices of the reachable
// states: leave targets first in arm order, then stay when CanStay.
// Q is parallel to Next.
type State struct {
	Arm       int       `json:"arm"`
	RunLength int       `json:"run_length"`
	CanStay   bool      `json:"can_stay"`
	Next      []int     `json:"next"`
	Q         []float64 `json:"q"`
}

type Learner struct {
	cfg     Config
	runs    int
	states  []State
	rng     *rand.Rand
	current int

	pending    bool
	prevState  int
	prevAction int
}

func New(cfg Config) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	l := &Learner{
		cfg:  cfg,
		runs: int(math.Ceil(cfg.MaxRunLength)),
		rng:  rng,
	}
	l.states = make([]State, cfg.Arms*l.runs)
	for k := 0; k < cfg.Arms; k++ {
		for r := 0; r < l.runs; r++ {
			s := State{Arm: k, RunLength: r, CanStay: r < l.runs-1}
			for kk := 0; kk < cfg.Arms; kk++ {
				if kk != k {
					s.Next = append(s.Next, l.Index(kk, 0))
				}
			}
			if s.CanStay {
				s.Next = append(s.Next, l.Index(k, r+1))
			}
			s.Q = make([]float64, len(s.Next))
			l.states[l.Index(k, r)] = s
		}
	}
	first := rng.Intn(cfg.Arms)
	if cfg.FirstChoice != nil {
		first = *cfg.FirstChoice
	}
	l.current = l.Index(first, 0)
	return l, nil
}

// Index is the arena position of state (arm, run).
func (l *Learner) Index(arm, run int) int {
	return arm*l.runs + run
}

func (l *Learner) Arms() int         { return l.cfg.Arms }
func (l *Learner) MaxRunLength() int { return l.runs }

// Current returns the state the learner occupies.
func (l *Learner) Current() State {
	return l.states[l.current].clone()
}

// Act chooses the next transition from the current state, moves there and
// returns the arm of the new state.
func (l *Learner) Act() int {
	s := &l.states[l.current]
	var action int
	if l.cfg.SoftmaxTemperature != nil {
		action = sampleIndex(forager.Softmax(s.Q, *l.cfg.SoftmaxTemperature), l.rng)
	} else {
		action = l.epsilonGreedy(s.Q, *l.cfg.Epsilon)
	}
	l.prevState, l.prevAction, l.pending = l.current, action, true
	l.current = s.Next[action]
	return l.states[l.current].Arm
}

// Update applies the one-step Q-learning backup to the last state-action
// pair, bootstrapping on the best available value of the current state.
func (l *Learner) Update(reward float64) error {
	if !l.pending {
		return ErrNoPendingAction
	}
	target := reward + l.cfg.DiscountRate*floats.Max(l.states[l.current].Q)
	q := &l.states[l.prevState].Q[l.prevAction]
	*q += l.cfg.LearnRate * (target - *q)
	return nil
}

func (l *Learner) epsilonGreedy(q []float64, eps float64) int {
	if l.rng.Float64() < eps {
		return l.rng.Intn(len(q))
	}
	best := floats.Max(q)
	ties := make([]int, 0, len(q))
	for i, v := range q {
		if v == best {
			ties = append(ties, i)
		}
	}
	return ties[l.rng.Intn(len(ties))]
}

// Policy returns the action probabilities of every run-length state of
// arm, parallel to each state's Next.
func (l *Learner) Policy(arm int) ([][]float64, error) {
	if arm < 0 || arm >= l.cfg.Arms {
		return nil, fmt.Errorf("arm %d not in [0, %d)", arm, l.cfg.Arms)
	}
	out := make([][]float64, l.runs)
	for r := range out {
		q := l.states[l.Index(arm, r)].Q
		if l.cfg.SoftmaxTemperature != nil {
			out[r] = forager.Softmax(q, *l.cfg.SoftmaxTemperature)
			continue
		}
		eps := *l.cfg.Epsilon
		best := floats.Max(q)
		ties := 0
		for _, v := range q {
			if v == best {
				ties++
			}
		}
		p := make([]float64, len(q))
		for i, v := range q {
			p[i] = eps / float64(len(q))
			if v == best {
				p[i] += (1 - eps) / float64(ties)
			}
		}
		out[r] = p
	}
	return out, nil
}

// Snapshot copies the full state arena.
func (l *Learner) Snapshot() []State {
	out := make([]State, len(l.states))
	for i, s := range l.states {
		out[i] = s.clone()
	}
	return out
}

func (s State) clone() State {
	s.Next = append([]int(nil), s.Next...)
	s.Q = append([]float64(nil), s.Q...)
	return s
}

func sampleIndex(probs []float64, rng *rand.Rand) int {
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
