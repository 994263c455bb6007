// Package params provides the immutable parameters every cascade run is
// derived from: the decay coefficient, the layer count and the resonance
// prime table. No component reads process-wide state; each receives a Params.
package params

// Default run parameters.
const (
	// DefaultAlpha is the decay coefficient of the energy series.
	DefaultAlpha = 0.0302011

	// DefaultLayers is the number of cascade layers.
	DefaultLayers = 33
)

// Layout constants shared by the buffer and record stages.
const (
	// PageSize is the number of buffer bytes allotted to each layer.
	PageSize = 4096

	// ParityEven is the XOR pattern for even layers and prime records.
	ParityEven byte = 0xAA

	// ParityOdd is the XOR pattern for odd layers and non-prime records.
	ParityOdd byte = 0x55

	// DefaultDelayNanos is the delay for layers past the prime table.
	DefaultDelayNanos = 1000

	// ReferenceTotal is the published reference cascade total that
	// verdicts report their saturation against.
	ReferenceTotal = 20.58

	// AchievedFraction is the share of the cascade total the aggregated
	// effect must exceed for a verdict to be achieved.
	AchievedFraction = 0.95
)

// resonancePrimes are the first 11 primes, ascending.
var resonancePrimes = [...]int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31}
