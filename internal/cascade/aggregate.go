package cascade

import (
	"fmt"
	"math"

	"github.com/talgya/cascade/internal/params"
)

// CascadeVerdict is the outcome of the pairwise layer aggregation.
type CascadeVerdict struct {
	TotalEffect    float64   `json:"total_effect"`
	CascadeTotal   float64   `json:"cascade_total"`
	ThresholdRatio float64   `json:"threshold_ratio"`
	Achieved       bool      `json:"achieved"`
	LayerEffects   []float64 `json:"layer_effects"`

	// ReferenceRatio is TotalEffect / params.ReferenceTotal.
	ReferenceRatio float64 `json:"reference_ratio"`
	// Saturation is ReferenceRatio capped at 1.
	Saturation float64 `json:"saturation"`
}

// Aggregate computes, for every layer d,
//
//	effect(d) = E[d] + Σ_{o≠d} E[o]·exp(-α·|d-o|)
//
// and sums the effects over all layers. The verdict is achieved when the
// total exceeds 95% of the cascade total.
func Aggregate(p params.Params, series *EnergySeries) (CascadeVerdict, error) {
	n := series.Len()
	if n != p.Layers {
		return CascadeVerdict{}, fmt.Errorf("aggregate: series has %d layers, params %d: %w",
			n, p.Layers, params.ErrInvalidArgument)
	}

	// exp(-α·k) for k < N is exactly E[k], so the interaction kernel is the
	// series itself indexed by distance.
	kernel := series.Values

	v := CascadeVerdict{
		CascadeTotal: series.Total,
		LayerEffects: make([]float64, n),
	}
	for d := 0; d < n; d++ {
		effect := series.At(d)
		for other := 0; other < n; other++ {
			if other == d {
				continue
			}
			dist := d - other
			if dist < 0 {
				dist = -dist
			}
			effect += series.At(other) * kernel[dist]
		}
		v.LayerEffects[d] = effect
		v.TotalEffect += effect
	}

	v.ThresholdRatio = v.TotalEffect / v.CascadeTotal
	v.Achieved = v.TotalEffect > v.CascadeTotal*params.AchievedFraction
	v.ReferenceRatio = v.TotalEffect / params.ReferenceTotal
	v.Saturation = math.Min(1, v.ReferenceRatio)
	return v, nil
}
