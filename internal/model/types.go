package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInputShape reports choice/reward histories whose trial axes disagree.
var ErrInputShape = errors.New("input shape mismatch")

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ModelSpec describes one behavioral model family and the box its parameters
// are estimated in. A parameter with Lower == Upper is held fixed.
type ModelSpec struct {
	Forager    Forager   `json:"forager"`
	ParamNames []string  `json:"param_names"`
	Lower      []float64 `json:"lower"`
	Upper      []float64 `json:"upper"`
}

func (s ModelSpec) Validate() error {
	if len(s.ParamNames) != len(s.Lower) || len(s.ParamNames) != len(s.Upper) {
		return fmt.Errorf("model %s: %d names, %d lower bounds, %d upper bounds", s.Forager, len(s.ParamNames), len(s.Lower), len(s.Upper))
	}
	seen := make(map[string]struct{}, len(s.ParamNames))
	for i, name := range s.ParamNames {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("model %s: duplicate parameter %q", s.Forager, name)
		}
		seen[name] = struct{}{}
		if s.Lower[i] > s.Upper[i] {
			return fmt.Errorf("model %s: parameter %q lower bound %g > upper bound %g", s.Forager, name, s.Lower[i], s.Upper[i])
		}
	}
	return nil
}

// FreeCount returns Km, the number of parameters with a non-degenerate range.
func (s ModelSpec) FreeCount() int {
	n := 0
	for i := range s.Lower {
		if s.Lower[i] < s.Upper[i] {
			n++
		}
	}
	return n
}

// IsFree reports whether parameter i is estimated.
func (s ModelSpec) IsFree(i int) bool {
	return s.Lower[i] < s.Upper[i]
}

func (s ModelSpec) Clone() ModelSpec {
	return ModelSpec{
		Forager:    s.Forager,
		ParamNames: append([]string(nil), s.ParamNames...),
		Lower:      append([]float64(nil), s.Lower...),
		Upper:      append([]float64(nil), s.Upper...),
	}
}

// ChoiceRewardHistory is one subject's (or one session's) trial sequence.
// Rewards and RewardProbabilities are arm-major: Rewards[arm][trial].
type ChoiceRewardHistory struct {
	Choices             []int       `json:"choices"`
	Rewards             [][]float64 `json:"rewards"`
	SessionIDs          []int       `json:"session_ids,omitempty"`
	RewardProbabilities [][]float64 `json:"reward_probabilities,omitempty"`
}

func (h ChoiceRewardHistory) Arms() int {
	return len(h.Rewards)
}

func (h ChoiceRewardHistory) Trials() int {
	if len(h.Rewards) == 0 {
		return 0
	}
	return len(h.Rewards[0])
}

func (h ChoiceRewardHistory) Validate() error {
	if len(h.Rewards) == 0 {
		return fmt.Errorf("%w: reward history has no arms", ErrInputShape)
	}
	n := len(h.Rewards[0])
	for arm, row := range h.Rewards {
		if len(row) != n {
			return fmt.Errorf("%w: reward arm %d has %d trials, arm 0 has %d", ErrInputShape, arm, len(row), n)
		}
	}
	if len(h.Choices) != n {
		return fmt.Errorf("%w: choice length %d should be equal to reward length %d", ErrInputShape, len(h.Choices), n)
	}
	for t, c := range h.Choices {
		if c < 0 || c >= len(h.Rewards) {
			return fmt.Errorf("%w: choice %d at trial %d outside [0, %d)", ErrInputShape, c, t, len(h.Rewards))
		}
	}
	if h.SessionIDs != nil && len(h.SessionIDs) != n {
		return fmt.Errorf("%w: %d session ids for %d trials", ErrInputShape, len(h.SessionIDs), n)
	}
	if h.RewardProbabilities != nil {
		if len(h.RewardProbabilities) != len(h.Rewards) {
			return fmt.Errorf("%w: %d reward probability rows for %d arms", ErrInputShape, len(h.RewardProbabilities), len(h.Rewards))
		}
		for arm, row := range h.RewardProbabilities {
			if len(row) != n {
				return fmt.Errorf("%w: reward probability arm %d has %d trials, want %d", ErrInputShape, arm, len(row), n)
			}
		}
	}
	return nil
}

// Equal reports whether choices and rewards are identical.
func (h ChoiceRewardHistory) Equal(other ChoiceRewardHistory) bool {
	if len(h.Choices) != len(other.Choices) || len(h.Rewards) != len(other.Rewards) {
		return false
	}
	for i := range h.Choices {
		if h.Choices[i] != other.Choices[i] {
			return false
		}
	}
	for arm := range h.Rewards {
		if len(h.Rewards[arm]) != len(other.Rewards[arm]) {
			return false
		}
		for t := range h.Rewards[arm] {
			if h.Rewards[arm][t] != other.Rewards[arm][t] {
				return false
			}
		}
	}
	return true
}

// Subset returns the trials whose session id equals session, in order.
func (h ChoiceRewardHistory) Subset(session int) ChoiceRewardHistory {
	var idx []int
	for t, s := range h.SessionIDs {
		if s == session {
			idx = append(idx, t)
		}
	}
	return h.pick(idx)
}

func (h ChoiceRewardHistory) pick(idx []int) ChoiceRewardHistory {
	out := ChoiceRewardHistory{
		Choices: make([]int, len(idx)),
		Rewards: make([][]float64, len(h.Rewards)),
	}
	for arm := range h.Rewards {
		out.Rewards[arm] = make([]float64, len(idx))
	}
	if h.SessionIDs != nil {
		out.SessionIDs = make([]int, len(idx))
	}
	if h.RewardProbabilities != nil {
		out.RewardProbabilities = make([][]float64, len(h.RewardProbabilities))
		for arm := range h.RewardProbabilities {
			out.RewardProbabilities[arm] = make([]float64, len(idx))
		}
	}
	for i, t := range idx {
		out.Choices[i] = h.Choices[t]
		for arm := range h.Rewards {
			out.Rewards[arm][i] = h.Rewards[arm][t]
		}
		if h.SessionIDs != nil {
			out.SessionIDs[i] = h.SessionIDs[t]
		}
		for arm := range h.RewardProbabilities {
			out.RewardProbabilities[arm][i] = h.RewardProbabilities[arm][t]
		}
	}
	return out
}

// UniqueSessions returns the distinct session ids in ascending order.
func (h ChoiceRewardHistory) UniqueSessions() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, s := range h.SessionIDs {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// TotalReward sums the reward matrix.
func (h ChoiceRewardHistory) TotalReward() float64 {
	total := 0.0
	for _, row := range h.Rewards {
		for _, r := range row {
			total += r
		}
	}
	return total
}

func (h ChoiceRewardHistory) Clone() ChoiceRewardHistory {
	idx := make([]int, h.Trials())
	for i := range idx {
		idx[i] = i
	}
	return h.pick(idx)
}
