package params

import (
	"fmt"
	"math"
	"strings"
)

// PhaseMode selects how the per-layer phase is derived.
type PhaseMode uint8

const (
	PhaseLayer PhaseMode = iota // π / (1 + α·(d+1)), depends on the layer
	PhaseFlat                   // π / (1 + α), identical for every layer
)

// String returns the config spelling of the mode.
func (m PhaseMode) String() string {
	switch m {
	case PhaseLayer:
		return "layer"
	case PhaseFlat:
		return "flat"
	default:
		return fmt.Sprintf("phase(%d)", uint8(m))
	}
}

// ParsePhaseMode accepts "layer" or "flat" (case-insensitive). Empty means layer.
func ParsePhaseMode(s string) (PhaseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "layer":
		return PhaseLayer, nil
	case "flat":
		return PhaseFlat, nil
	default:
		return 0, fmt.Errorf("phase mode %q: %w", s, ErrInvalidArgument)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m PhaseMode) MarshalText() ([]byte, error) {
	if m != PhaseLayer && m != PhaseFlat {
		return nil, fmt.Errorf("phase mode %d: %w", uint8(m), ErrInvalidArgument)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PhaseMode) UnmarshalText(text []byte) error {
	parsed, err := ParsePhaseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Params holds the immutable inputs of a run.
type Params struct {
	Alpha  float64   `json:"alpha"`
	Layers int       `json:"layers"`
	Phase  PhaseMode `json:"phase"`
}

// Default returns the reference parameters (α = 0.0302011, 33 layers).
func Default() Params {
	return Params{
		Alpha:  DefaultAlpha,
		Layers: DefaultLayers,
		Phase:  PhaseLayer,
	}
}

// New builds validated parameters with the layer-dependent phase.
func New(alpha float64, layers int) (Params, error) {
	p := Params{Alpha: alpha, Layers: layers, Phase: PhaseLayer}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate rejects non-positive or non-finite alpha, non-positive layer
// counts, layer counts whose buffer would overflow int, and unknown phase modes.
func (p Params) Validate() error {
	if math.IsNaN(p.Alpha) || math.IsInf(p.Alpha, 0) || p.Alpha <= 0 {
		return fmt.Errorf("alpha %v must be positive: %w", p.Alpha, ErrInvalidArgument)
	}
	if p.Layers <= 0 {
		return fmt.Errorf("layers %d must be positive: %w", p.Layers, ErrInvalidArgument)
	}
	if p.Layers > math.MaxInt/PageSize {
		return fmt.Errorf("layers %d: buffer size: %w", p.Layers, ErrArithmeticOverflow)
	}
	if p.Phase != PhaseLayer && p.Phase != PhaseFlat {
		return fmt.Errorf("phase mode %d: %w", p.Phase, ErrInvalidArgument)
	}
	return nil
}

// CheckLayer reports whether d is a valid layer index.
func (p Params) CheckLayer(d int) error {
	if d < 0 || d >= p.Layers {
		return fmt.Errorf("layer %d outside [0, %d): %w", d, p.Layers, ErrInvalidArgument)
	}
	return nil
}

// BufferSize is PageSize × Layers.
func (p Params) BufferSize() int {
	return PageSize * p.Layers
}

// Primes returns a copy of the resonance prime table.
func (p Params) Primes() []int {
	out := make([]int, len(resonancePrimes))
	copy(out, resonancePrimes[:])
	return out
}

// PrimeAt returns the prime at table index d, if the table reaches that far.
func (p Params) PrimeAt(d int) (int, bool) {
	if d < 0 || d >= len(resonancePrimes) {
		return 0, false
	}
	return resonancePrimes[d], true
}

// IsResonancePrime reports whether d is itself one of the table's primes.
// This is value membership, not an index lookup.
func (p Params) IsResonancePrime(d int) bool {
	for _, q := range resonancePrimes {
		if q == d {
			return true
		}
		if q > d {
			return false
		}
	}
	return false
}

// Parity returns the XOR pattern for layer d: 0xAA when even, 0x55 when odd.
func Parity(d int) byte {
	if d%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}
