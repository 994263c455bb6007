package cascade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cascade/internal/params"
)

func TestEnergySeries_Reference(t *testing.T) {
	s, err := NewEnergySeries(params.DefaultAlpha, params.DefaultLayers)
	require.NoError(t, err)
	require.Equal(t, 33, s.Len())

	assert.Equal(t, 1.0, s.At(0))
	assert.InDelta(t, 0.970250, s.At(1), 1e-6)
	assert.InDelta(t, 0.380437, s.At(32), 1e-6)

	// Closed form of the geometric sum.
	q := math.Exp(-params.DefaultAlpha)
	want := (1 - math.Pow(q, 33)) / (1 - q)
	assert.InDelta(t, want, s.Total, 1e-9)
	assert.InDelta(t, 21.2064, s.Total, 1e-4)
}

func TestEnergySeries_StrictlyDecreasingInUnitInterval(t *testing.T) {
	cases := []struct {
		alpha float64
		n     int
	}{
		{0.0302011, 33},
		{0.001, 500},
		{0.5, 64},
		{2, 10},
		{1, 1},
	}
	for _, c := range cases {
		s, err := NewEnergySeries(c.alpha, c.n)
		require.NoError(t, err, "alpha=%v n=%d", c.alpha, c.n)

		var sum float64
		for d, e := range s.Values {
			assert.Greater(t, e, 0.0)
			assert.LessOrEqual(t, e, 1.0)
			if d > 0 {
				assert.Less(t, e, s.Values[d-1], "alpha=%v d=%d", c.alpha, d)
			}
			sum += e
		}
		assert.Equal(t, sum, s.Total)
	}
}

func TestEnergySeries_InvalidArguments(t *testing.T) {
	for _, alpha := range []float64{0, -0.03, math.NaN(), math.Inf(1)} {
		_, err := NewEnergySeries(alpha, 33)
		assert.ErrorIs(t, err, params.ErrInvalidArgument, "alpha=%v", alpha)
	}
	for _, n := range []int{0, -1} {
		_, err := NewEnergySeries(0.03, n)
		assert.ErrorIs(t, err, params.ErrInvalidArgument, "n=%d", n)
	}
}

func TestEnergySeries_PrecisionLoss(t *testing.T) {
	// exp(-1e-18) rounds to 1.0, so the series cannot decrease.
	_, err := NewEnergySeries(1e-18, 4)
	assert.ErrorIs(t, err, params.ErrArithmeticOverflow)

	// exp(-800) underflows to zero.
	_, err = NewEnergySeries(800, 3)
	assert.ErrorIs(t, err, params.ErrArithmeticOverflow)
}

func TestEnergySeries_Deterministic(t *testing.T) {
	a, err := NewEnergySeries(0.0302011, 33)
	require.NoError(t, err)
	b, err := NewEnergySeries(0.0302011, 33)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
