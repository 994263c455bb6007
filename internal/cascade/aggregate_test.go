package cascade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cascade/internal/params"
)

// bruteForce evaluates the pairwise sum with a fresh exp for every pair.
func bruteForce(alpha float64, n int) float64 {
	energy := func(d int) float64 { return math.Exp(-alpha * float64(d)) }
	var total float64
	for d := 0; d < n; d++ {
		effect := energy(d)
		for o := 0; o < n; o++ {
			if o != d {
				effect += energy(o) * math.Exp(-alpha*math.Abs(float64(d-o)))
			}
		}
		total += effect
	}
	return total
}

func TestAggregate_Reference(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Verdict()
	require.NoError(t, err)

	assert.InDelta(t, bruteForce(params.DefaultAlpha, params.DefaultLayers), v.TotalEffect, 1e-9)
	assert.InDelta(t, 514.3970, v.TotalEffect, 1e-3)
	assert.InDelta(t, 21.2064, v.CascadeTotal, 1e-4)
	assert.InDelta(t, 24.2567, v.ThresholdRatio, 1e-3)
	assert.True(t, v.Achieved)

	assert.InDelta(t, v.TotalEffect/params.ReferenceTotal, v.ReferenceRatio, 1e-12)
	assert.Equal(t, 1.0, v.Saturation)

	require.Len(t, v.LayerEffects, 33)
	var sum float64
	for _, le := range v.LayerEffects {
		sum += le
	}
	assert.Equal(t, sum, v.TotalEffect)
}

func TestAggregate_SingleLayer(t *testing.T) {
	p, err := params.New(0.1, 1)
	require.NoError(t, err)
	e, err := NewEngine(p)
	require.NoError(t, err)

	v, err := e.Verdict()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.TotalEffect)
	assert.Equal(t, 1.0, v.ThresholdRatio)
	assert.True(t, v.Achieved)
	assert.InDelta(t, 1/20.58, v.Saturation, 1e-12)
}

func TestAggregate_MonotoneInAlpha(t *testing.T) {
	alphas := []float64{0.001, 0.01, 0.0302011, 0.1, 0.5, 2}
	prev := math.Inf(1)
	for _, a := range alphas {
		p, err := params.New(a, 33)
		require.NoError(t, err)
		e, err := NewEngine(p)
		require.NoError(t, err)
		v, err := e.Verdict()
		require.NoError(t, err)
		assert.Less(t, v.TotalEffect, prev, "alpha=%v", a)
		prev = v.TotalEffect
	}
}

func TestAggregate_SeriesMismatch(t *testing.T) {
	s, err := NewEnergySeries(0.1, 4)
	require.NoError(t, err)
	_, err = Aggregate(params.Default(), s)
	assert.ErrorIs(t, err, params.ErrInvalidArgument)
}
