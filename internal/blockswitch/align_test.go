package blockswitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foragerfit/internal/model"
)

func steps(lengths []int, values []float64) []float64 {
	var out []float64
	for i, n := range lengths {
		for j := 0; j < n; j++ {
			out = append(out, values[i])
		}
	}
	return out
}

func TestAlignSessionSingleSwitch(t *testing.T) {
	p := steps([]int{50, 60}, []float64{0.1, 0.4})
	choices := make([]int, len(p))
	for i := 60; i < len(choices); i++ {
		choices[i] = 1
	}
	recs, err := AlignSession(3, choices, p, DefaultParams())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, 50, rec.BlockSwitch)
	assert.Equal(t, 3, rec.SessionID)
	assert.Equal(t, 50, rec.PrevLength)
	assert.Equal(t, 60, rec.NextLength)
	assert.InDelta(t, 0.3, rec.ChangeP, 1e-12)
	require.Len(t, rec.Choice, 110)

	// 30 before, then only 60 of the 80 requested after
	assert.Equal(t, 0.0, rec.Choice[0])
	assert.Equal(t, 1.0, rec.Choice[89])
	assert.True(t, math.IsNaN(rec.Choice[90]))
	assert.True(t, rec.Normalized)
	assert.Equal(t, 0.0, rec.ChoiceNorm[29])
	assert.Equal(t, 1.0, rec.ChoiceNorm[89])
}

func TestAlignSessionSpecExampleSwitchAtFifty(t *testing.T) {
	p := steps([]int{50, 60}, []float64{0.2, 0.8})
	recs, err := AlignSession(1, make([]int, len(p)), p, DefaultParams())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 50, recs[0].BlockSwitch)
}

func TestAlignSessionDropsShortBlocks(t *testing.T) {
	p := steps([]int{20, 25, 20}, []float64{0.1, 0.4, 0.1})
	recs, err := AlignSession(1, make([]int, len(p)), p, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = AlignSession(1, make([]int, 40), steps([]int{40}, []float64{0.3}), DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAlignSessionFlipsRichToLean(t *testing.T) {
	p := steps([]int{40, 40}, []float64{0.4, 0.1})
	choices := make([]int, 80)
	for i := 0; i < 40; i++ {
		choices[i] = 1
	}
	recs, err := AlignSession(1, choices, p, DefaultParams())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	// prev block is 40 long, so the window starts at offset 0 after 30 trials
	assert.Equal(t, 0.0, recs[0].Choice[0])
	assert.Equal(t, 1.0, recs[0].Choice[30])
	assert.True(t, recs[0].Normalized)
}

func TestAlignSessionDegenerateNormalisation(t *testing.T) {
	p := steps([]int{40, 40}, []float64{0.1, 0.4})
	choices := make([]int, 80)
	for i := range choices {
		choices[i] = 1
	}
	recs, err := AlignSession(1, choices, p, DefaultParams())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Normalized)
	for _, v := range recs[0].ChoiceNorm {
		assert.True(t, math.IsNaN(v))
	}
	assert.Equal(t, 1.0, recs[0].Choice[0])
}

func TestAlignSessionBaselineUsesTrialsBeforeSwitch(t *testing.T) {
	params := Params{MinBlockLength: 5, PrevAlign: 30, NextAlign: 10, NormTrial: 5}
	p := steps([]int{8, 10}, []float64{0.1, 0.4})
	// early prev-block trials are 1, the 5 trials before the switch are 0
	choices := []int{1, 1, 1, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	recs, err := AlignSession(1, choices, p, params)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.True(t, rec.Normalized)
	assert.True(t, math.IsNaN(rec.Choice[21]))
	assert.Equal(t, 1.0, rec.Choice[22])
	assert.Equal(t, 0.0, rec.ChoiceNorm[29])
	assert.Equal(t, 1.0, rec.ChoiceNorm[22])
}

func TestAlignSubjectSplitsSessions(t *testing.T) {
	p1 := steps([]int{40, 40}, []float64{0.1, 0.4})
	p2 := steps([]int{35, 35, 35}, []float64{0.3, 0.05, 0.3})
	pR := append(append([]float64{}, p1...), p2...)
	pL := make([]float64, len(pR))
	sessions := make([]int, len(pR))
	for i := range sessions {
		if i >= len(p1) {
			sessions[i] = 2
		} else {
			sessions[i] = 1
		}
	}
	recs, err := AlignSubject(sessions, [][]float64{pL, pR}, make([]int, len(pR)), DefaultParams())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 1, recs[0].SessionID)
	assert.Equal(t, 40, recs[0].BlockSwitch)
	assert.Equal(t, 2, recs[1].SessionID)
	assert.Equal(t, 35, recs[1].BlockSwitch)
	assert.Equal(t, 70, recs[2].BlockSwitch)

	_, err = AlignSubject(sessions[:3], [][]float64{pL, pR}, make([]int, len(pR)), DefaultParams())
	assert.ErrorIs(t, err, model.ErrInputShape)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
	bad := DefaultParams()
	bad.NormTrial = 0
	assert.Error(t, bad.Validate())
	_, err := AlignSession(1, nil, nil, bad)
	assert.Error(t, err)
}
