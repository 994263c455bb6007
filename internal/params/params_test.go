package params

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 0.0302011, p.Alpha)
	assert.Equal(t, 33, p.Layers)
	assert.Equal(t, PhaseLayer, p.Phase)
	assert.Equal(t, 4096*33, p.BufferSize())
	require.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"zero alpha", Params{Alpha: 0, Layers: 33}, ErrInvalidArgument},
		{"negative alpha", Params{Alpha: -0.1, Layers: 33}, ErrInvalidArgument},
		{"nan alpha", Params{Alpha: math.NaN(), Layers: 33}, ErrInvalidArgument},
		{"inf alpha", Params{Alpha: math.Inf(1), Layers: 33}, ErrInvalidArgument},
		{"zero layers", Params{Alpha: 0.1, Layers: 0}, ErrInvalidArgument},
		{"negative layers", Params{Alpha: 0.1, Layers: -4}, ErrInvalidArgument},
		{"huge layers", Params{Alpha: 0.1, Layers: math.MaxInt}, ErrArithmeticOverflow},
		{"bad phase", Params{Alpha: 0.1, Layers: 3, Phase: PhaseMode(9)}, ErrInvalidArgument},
		{"ok", Params{Alpha: 0.1, Layers: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New(0.5, 4)
	require.NoError(t, err)
	assert.Equal(t, Params{Alpha: 0.5, Layers: 4, Phase: PhaseLayer}, p)

	_, err = New(0, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCheckLayer(t *testing.T) {
	p := Default()
	assert.NoError(t, p.CheckLayer(0))
	assert.NoError(t, p.CheckLayer(32))
	assert.ErrorIs(t, p.CheckLayer(-1), ErrInvalidArgument)
	assert.ErrorIs(t, p.CheckLayer(33), ErrInvalidArgument)
}

func TestPrimeTable(t *testing.T) {
	p := Default()
	primes := p.Primes()
	assert.Equal(t, []int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31}, primes)

	// Mutating the copy must not leak back.
	primes[0] = 99
	q, ok := p.PrimeAt(0)
	assert.True(t, ok)
	assert.Equal(t, 2, q)

	q, ok = p.PrimeAt(10)
	assert.True(t, ok)
	assert.Equal(t, 31, q)

	_, ok = p.PrimeAt(11)
	assert.False(t, ok)
	_, ok = p.PrimeAt(-1)
	assert.False(t, ok)
}

func TestIsResonancePrime(t *testing.T) {
	p := Default()
	for _, d := range []int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31} {
		assert.True(t, p.IsResonancePrime(d), "layer %d", d)
	}
	for _, d := range []int{0, 1, 4, 9, 15, 21, 32, 37} {
		assert.False(t, p.IsResonancePrime(d), "layer %d", d)
	}
}

func TestParity(t *testing.T) {
	assert.Equal(t, byte(0xAA), Parity(0))
	assert.Equal(t, byte(0x55), Parity(1))
	assert.Equal(t, byte(0xAA), Parity(32))
}

func TestParsePhaseMode(t *testing.T) {
	m, err := ParsePhaseMode("")
	require.NoError(t, err)
	assert.Equal(t, PhaseLayer, m)

	m, err = ParsePhaseMode(" FLAT ")
	require.NoError(t, err)
	assert.Equal(t, PhaseFlat, m)
	assert.Equal(t, "flat", m.String())

	_, err = ParsePhaseMode("spiral")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
