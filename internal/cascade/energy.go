// Package cascade implements the layered exponential-decay pipeline: the
// energy series, per-layer signatures, the buffer dispersion pass, the
// fixed-width record encoder and the pairwise cascade aggregation.
// Every stage is a pure function of params.Params and the energy series.
package cascade

import (
	"fmt"
	"math"

	"github.com/talgya/cascade/internal/params"
)

// EnergySeries is E[d] = exp(-α·d) for d in [0, N) together with its sum.
// Values are strictly decreasing and lie in (0, 1]. Read-only once built.
type EnergySeries struct {
	Values []float64 `json:"values"`
	Total  float64   `json:"cascade_total"`
}

// NewEnergySeries computes the series for alpha and n layers.
// It fails with ErrInvalidArgument for alpha <= 0 or n <= 0, and with
// ErrArithmeticOverflow when float64 cannot keep the series strictly
// decreasing and positive (alpha so small that adjacent terms round to the
// same value, or so large that the tail underflows to zero).
func NewEnergySeries(alpha float64, n int) (*EnergySeries, error) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha <= 0 {
		return nil, fmt.Errorf("energy series: alpha %v: %w", alpha, params.ErrInvalidArgument)
	}
	if n <= 0 {
		return nil, fmt.Errorf("energy series: layers %d: %w", n, params.ErrInvalidArgument)
	}

	s := &EnergySeries{Values: make([]float64, n)}
	for d := 0; d < n; d++ {
		e := math.Exp(-alpha * float64(d))
		if e <= 0 {
			return nil, fmt.Errorf("energy series: layer %d underflows at alpha %v: %w",
				d, alpha, params.ErrArithmeticOverflow)
		}
		if d > 0 && e >= s.Values[d-1] {
			return nil, fmt.Errorf("energy series: layer %d not below layer %d at alpha %v: %w",
				d, d-1, alpha, params.ErrArithmeticOverflow)
		}
		s.Values[d] = e
		s.Total += e
	}
	return s, nil
}

// Len returns the number of layers.
func (s *EnergySeries) Len() int {
	return len(s.Values)
}

// At returns E[d]. The caller guarantees d is in range.
func (s *EnergySeries) At(d int) float64 {
	return s.Values[d]
}
