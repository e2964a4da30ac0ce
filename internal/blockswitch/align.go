// Package blockswitch aligns choice traces on reward-probability block
// transitions.
package blockswitch

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"foragerfit/internal/model"
)

type Params struct {
	MinBlockLength int `json:"min_block_length" yaml:"min_block_length"`
	PrevAlign      int `json:"prev_align" yaml:"prev_align"`
	NextAlign      int `json:"next_align" yaml:"next_align"`
	NormTrial      int `json:"norm_trial" yaml:"norm_trial"`
}

func DefaultParams() Params {
	return Params{MinBlockLength: 30, PrevAlign: 30, NextAlign: 80, NormTrial: 10}
}

func (p Params) Validate() error {
	if p.MinBlockLength < 1 {
		return fmt.Errorf("min block length must be > 0, got %d", p.MinBlockLength)
	}
	if p.PrevAlign < 1 || p.NextAlign < 1 {
		return fmt.Errorf("alignment window must be positive, got prev=%d next=%d", p.PrevAlign, p.NextAlign)
	}
	if p.NormTrial < 1 {
		return fmt.Errorf("norm trial must be > 0, got %d", p.NormTrial)
	}
	return nil
}

// AlignSession finds every change in pRight, keeps switches whose blocks on
// both sides reach MinBlockLength, and cuts a NaN-padded choice window of
// width PrevAlign+NextAlign around each. Windows are flipped so that every
// trace reads lean to rich for the right arm.
func AlignSession(sessionID int, choices []int, pRight []float64, params Params) ([]model.BlockSwitchRecord, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(choices) != len(pRight) {
		return nil, fmt.Errorf("%w: %d choices for %d reward probabilities", model.ErrInputShape, len(choices), len(pRight))
	}
	var switches []int
	for t := 1; t < len(pRight); t++ {
		if pRight[t] != pRight[t-1] {
			switches = append(switches, t)
		}
	}
	if len(switches) == 0 {
		return nil, nil
	}
	lengths := make([]int, len(switches)+1)
	lengths[0] = switches[0]
	for i := 1; i < len(switches); i++ {
		lengths[i] = switches[i] - switches[i-1]
	}
	lengths[len(switches)] = len(pRight) - switches[len(switches)-1]

	width := params.PrevAlign + params.NextAlign
	var out []model.BlockSwitchRecord
	for i, at := range switches {
		prevLen, nextLen := lengths[i], lengths[i+1]
		if min(prevLen, nextLen) < params.MinBlockLength {
			continue
		}
		rec := model.BlockSwitchRecord{
			SessionID:   sessionID,
			BlockSwitch: at,
			PrevLength:  prevLen,
			NextLength:  nextLen,
			PrevP:       pRight[at-1],
			NextP:       pRight[at],
			ChangeP:     math.Abs(pRight[at-1] - pRight[at]),
			Choice:      nanSlice(width),
			ChoiceNorm:  nanSlice(width),
		}
		prevN := min(params.PrevAlign, prevLen)
		nextN := min(params.NextAlign, nextLen)
		selected := make([]float64, 0, prevN+nextN)
		for t := at - prevN; t < at+nextN; t++ {
			c := float64(choices[t])
			if rec.NextP < rec.PrevP {
				c = 1 - c
			}
			selected = append(selected, c)
		}
		offset := params.PrevAlign - prevN
		copy(rec.Choice[offset:], selected)

		baseline := floats.Sum(selected[max(prevN-params.NormTrial, 0):prevN]) / float64(prevN-max(prevN-params.NormTrial, 0))
		tail := selected[max(len(selected)-params.NormTrial, 0):]
		asymptote := floats.Sum(tail) / float64(len(tail))
		if span := asymptote - baseline; span > 0 {
			for j, c := range selected {
				rec.ChoiceNorm[offset+j] = (c - baseline) / span
			}
			rec.Normalized = true
		}
		out = append(out, rec)
	}
	return out, nil
}

// AlignSubject runs AlignSession on every session of a pooled history.
// pReward is arm-major; the right arm (index 1) defines the blocks.
func AlignSubject(sessionIDs []int, pReward [][]float64, choices []int, params Params) ([]model.BlockSwitchRecord, error) {
	if len(pReward) < 2 {
		return nil, fmt.Errorf("%w: need two reward probability rows, got %d", model.ErrInputShape, len(pReward))
	}
	if len(sessionIDs) != len(choices) || len(pReward[1]) != len(choices) {
		return nil, fmt.Errorf("%w: %d session ids, %d probabilities, %d choices", model.ErrInputShape, len(sessionIDs), len(pReward[1]), len(choices))
	}
	bySession := make(map[int][]int)
	for t, s := range sessionIDs {
		bySession[s] = append(bySession[s], t)
	}
	sessions := make([]int, 0, len(bySession))
	for s := range bySession {
		sessions = append(sessions, s)
	}
	sort.Ints(sessions)

	var out []model.BlockSwitchRecord
	for _, s := range sessions {
		idx := bySession[s]
		c := make([]int, len(idx))
		p := make([]float64, len(idx))
		for i, t := range idx {
			c[i] = choices[t]
			p[i] = pReward[1][t]
		}
		recs, err := AlignSession(s, c, p, params)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", s, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
