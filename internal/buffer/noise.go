package buffer

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/cascade/internal/params"
)

// Noise fills each buffer with layered simplex noise so dispersion can be
// observed on non-zero input. The same seed always yields the same bytes.
type Noise struct {
	Seed        int64
	Octaves     int
	Frequency   float64
	Persistence float64
}

// NewNoise returns a noise provider with the default octave settings.
func NewNoise(seed int64) *Noise {
	return &Noise{
		Seed:        seed,
		Octaves:     3,
		Frequency:   0.05,
		Persistence: 0.5,
	}
}

// Acquire returns size bytes of noise. Byte i is sampled at
// (i mod PageSize, i / PageSize), so each page is one row of the field.
func (n *Noise) Acquire(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	field := opensimplex.NewNormalized(n.Seed)
	buf := make([]byte, size)
	for i := range buf {
		x := float64(i % params.PageSize)
		y := float64(i / params.PageSize)
		v := octaveNoise(field, x, y, n.Octaves, n.Frequency, n.Persistence)
		buf[i] = byte(v * 255)
	}
	return buf, nil
}

// Release is a no-op.
func (n *Noise) Release([]byte) {}

// octaveNoise sums octaves of normalized noise and rescales to [0, 1).
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
