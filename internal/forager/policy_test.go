package forager

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foragerfit/internal/model"
	"foragerfit/internal/registry"
	"foragerfit/internal/task"
)

func midpoint(spec model.ModelSpec) []float64 {
	out := make([]float64, len(spec.Lower))
	for i := range out {
		out[i] = (spec.Lower[i] + spec.Upper[i]) / 2
	}
	return out
}

func TestEveryCatalogModelBuildsAndNormalises(t *testing.T) {
	for i, spec := range registry.Default() {
		p, err := New(spec.Forager, spec.ParamNames, midpoint(spec), 2)
		require.NoError(t, err, "model %d", i+1)
		for trial := 0; trial < 20; trial++ {
			probs := p.ChoiceProb()
			require.Len(t, probs, 2)
			assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9, "model %d", i+1)
			p.Observe(trial%2, float64(trial%3%2))
		}
	}
}

func TestNewRejectsMissingParameters(t *testing.T) {
	_, err := New(model.RW1972Softmax, []string{"learn_rate"}, []float64{0.3}, 2)
	assert.Error(t, err)
	_, err = New(model.ForagerUnknown, nil, nil, 2)
	assert.Error(t, err)
	_, err = New(model.Forager(99), nil, nil, 2)
	assert.Error(t, err)
	_, err = New(model.RW1972Softmax, []string{"learn_rate", "softmax_temperature"}, []float64{0.3}, 2)
	assert.Error(t, err)
}

func TestRescorlaWagnerUpdate(t *testing.T) {
	p, err := New(model.RW1972Softmax, []string{"learn_rate", "softmax_temperature"}, []float64{0.5, 1}, 2)
	require.NoError(t, err)
	p.Observe(0, 1)
	vp := p.(*valuePolicy)
	assert.InDelta(t, 0.5, vp.q[0], 1e-12)
	assert.Zero(t, vp.q[1])
	p.Observe(0, 0)
	assert.InDelta(t, 0.25, vp.q[0], 1e-12)

	probs := p.ChoiceProb()
	want := 1 / (1 + math.Exp(-0.25))
	assert.InDelta(t, want, probs[0], 1e-12)
}

func TestHattoriForgetsUnchosenArm(t *testing.T) {
	names := []string{"learn_rate_rew", "learn_rate_unrew", "forget_rate", "softmax_temperature"}
	p, err := New(model.Hattori2019, names, []float64{0.8, 0.2, 0.5, 1}, 2)
	require.NoError(t, err)
	vp := p.(*valuePolicy)
	p.Observe(1, 1)
	assert.InDelta(t, 0.8, vp.q[1], 1e-12)
	p.Observe(0, 0)
	assert.InDelta(t, 0.4, vp.q[1], 1e-12)
	assert.Zero(t, vp.q[0])
}

func TestBariUpdate(t *testing.T) {
	names := []string{"learn_rate", "forget_rate", "softmax_temperature"}
	p, err := New(model.Bari2019, names, []float64{0.5, 0.1, 1}, 2)
	require.NoError(t, err)
	vp := p.(*valuePolicy)
	p.Observe(0, 1)
	p.Observe(0, 1)
	assert.InDelta(t, 0.9*0.5+0.5, vp.q[0], 1e-12)
}

func TestSoftmaxBiasAddsToFirstArm(t *testing.T) {
	names := []string{"learn_rate", "softmax_temperature", "biasL"}
	p, err := New(model.RW1972Softmax, names, []float64{0.1, 1, math.Log(3)}, 2)
	require.NoError(t, err)
	probs := p.ChoiceProb()
	assert.InDelta(t, 0.75, probs[0], 1e-12)
}

func TestChoiceKernelTracksRecentChoices(t *testing.T) {
	spec := registry.Default()[17] // RW1972_softmax_CK
	require.Equal(t, model.RW1972SoftmaxCK, spec.Forager)
	vals := []float64{0, 1, 0, 1, 1}
	p, err := New(spec.Forager, spec.ParamNames, vals, 2)
	require.NoError(t, err)
	p.Observe(1, 0)
	probs := p.ChoiceProb()
	assert.InDelta(t, 1/(1+math.E), probs[0], 1e-12)
}

func TestEpsilonGreedyBiasClips(t *testing.T) {
	probs := epsilonGreedy([]float64{1, 0}, 0.2, 0.5)
	assert.Equal(t, 1.0, probs[0])
	assert.Equal(t, 0.0, probs[1])

	probs = epsilonGreedy([]float64{0, 1}, 0.2, 0)
	assert.InDelta(t, 0.1, probs[0], 1e-12)
	assert.InDelta(t, 0.9, probs[1], 1e-12)
}

func TestLNPIncomeFilter(t *testing.T) {
	p, err := New(model.LNPSoftmax, []string{"tau1", "softmax_temperature"}, []float64{2, 1}, 2)
	require.NoError(t, err)
	lp := p.(*lnpPolicy)
	p.Observe(0, 1)
	d := math.Exp(-0.5)
	assert.InDelta(t, 1-d, lp.income1[0], 1e-12)
	p.Observe(1, 0)
	assert.InDelta(t, (1-d)*d, lp.income1[0], 1e-12)
}

func TestLossCountingSwitchesAfterThreshold(t *testing.T) {
	p, err := New(model.LossCounting, []string{"loss_count_threshold_mean", "loss_count_threshold_std"}, []float64{2, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, p.ChoiceProb())

	p.Observe(0, 0)
	assert.Equal(t, 1.0, p.ChoiceProb()[0])
	p.Observe(0, 0)
	assert.Equal(t, 0.0, p.ChoiceProb()[0])
	p.Observe(0, 1)
	assert.Equal(t, 1.0, p.ChoiceProb()[0])
}

func TestLossCountingSmoothThreshold(t *testing.T) {
	p, err := New(model.LossCounting, []string{"loss_count_threshold_mean", "loss_count_threshold_std"}, []float64{3, 1}, 2)
	require.NoError(t, err)
	p.Observe(1, 0)
	p.Observe(1, 0)
	p.Observe(1, 0)
	assert.InDelta(t, 0.5, p.ChoiceProb()[0], 1e-12)
}

func TestEvaluateMaskAndSessionReset(t *testing.T) {
	h := model.ChoiceRewardHistory{
		Choices:    []int{0, 0, 1, 1},
		Rewards:    [][]float64{{1, 1, 0, 0}, {0, 0, 1, 0}},
		SessionIDs: []int{1, 1, 2, 2},
	}
	p, err := New(model.RW1972Softmax, []string{"learn_rate", "softmax_temperature"}, []float64{0.5, 1}, 2)
	require.NoError(t, err)

	full, err := Evaluate(p, h, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 4, full.Counted)
	// session 2 starts from fresh values
	assert.InDelta(t, 0.5, full.ChoiceProb[0][2], 1e-12)

	masked, err := Evaluate(p, h, []bool{true, false, true, false}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, masked.Counted)
	assert.Less(t, masked.NLL, full.NLL)
	assert.Nil(t, masked.ChoiceProb)

	_, err = Evaluate(p, h, []bool{true}, false)
	assert.ErrorIs(t, err, model.ErrInputShape)
}

func TestSimulateOnBaitedTask(t *testing.T) {
	env, err := task.NewBaited(task.DefaultBaitedConfig())
	require.NoError(t, err)
	p, err := New(model.RW1972Softmax, []string{"learn_rate", "softmax_temperature"}, []float64{0.4, 0.2}, 2)
	require.NoError(t, err)

	h, err := Simulate(context.Background(), p, env, 500, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.NoError(t, h.Validate())
	assert.Equal(t, 500, h.Trials())
	require.Len(t, h.RewardProbabilities, 2)
	assert.Greater(t, h.TotalReward(), 0.0)
}

func TestSimulateHonorsCancellation(t *testing.T) {
	env, err := task.NewBaited(task.DefaultBaitedConfig())
	require.NoError(t, err)
	p, err := New(model.RW1972Softmax, []string{"learn_rate", "softmax_temperature"}, []float64{0.4, 0.2}, 2)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Simulate(ctx, p, env, 10, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSoftmaxIsStable(t *testing.T) {
	probs := Softmax([]float64{1000, 0}, 1)
	assert.InDelta(t, 1.0, probs[0], 1e-12)
	assert.False(t, math.IsNaN(probs[1]))
}
