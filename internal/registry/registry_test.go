package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foragerfit/internal/model"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	models := Default()
	require.Len(t, models, 21)
	for i, spec := range models {
		require.NoError(t, spec.Validate(), "model %d", i+1)
		assert.True(t, spec.Forager.Valid(), "model %d", i+1)
	}
	assert.Equal(t, model.LNPSoftmax, models[SugrueIndex-1].Forager)
	assert.Equal(t, model.RW1972Softmax, models[StandardRLIndex-1].Forager)
}

func TestDefaultReturnsCopies(t *testing.T) {
	first := Default()
	first[0].Upper[0] = -1
	first[0].ParamNames[0] = "mutated"

	second := Default()
	assert.Equal(t, 40.0, second[0].Upper[0])
	assert.Equal(t, "loss_count_threshold_mean", second[0].ParamNames[0])
}

func TestByIndexIsOneBased(t *testing.T) {
	models, err := ByIndex(1, 9)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, model.LossCounting, models[0].Forager)
	assert.Equal(t, model.RW1972Epsi, models[1].Forager)
	assert.Contains(t, models[1].ParamNames, "biasL")

	_, err = ByIndex(0)
	assert.True(t, errors.Is(err, ErrModelIndex))
	_, err = ByIndex(22)
	assert.True(t, errors.Is(err, ErrModelIndex))
}

func TestFreeNotationSkipsFixedParameters(t *testing.T) {
	spec := model.ModelSpec{
		Forager:    model.Hattori2019,
		ParamNames: []string{"learn_rate_rew", "learn_rate_unrew", "forget_rate", "softmax_temperature"},
		Lower:      []float64{0, 0, 0, 0.01},
		Upper:      []float64{1, 1, 0, 15},
	}
	assert.Equal(t, `$\alpha_{rew}$, $\alpha_{unr}$, $\sigma$`, FreeNotation(spec))
	assert.Equal(t, []string{"learn_rate_rew", "learn_rate_unrew", "softmax_temperature"}, FreeNames(spec))
	assert.Equal(t, 3, spec.FreeCount())
}

func TestNotationFallsBackToName(t *testing.T) {
	assert.Equal(t, `$b_L$`, Notation("biasL"))
	assert.Equal(t, "custom_param", Notation("custom_param"))
}
