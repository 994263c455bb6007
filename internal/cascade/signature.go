package cascade

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/talgya/cascade/internal/params"
)

// DigestLen is the number of dispersed digest bytes per signature.
const DigestLen = 8

// digestScale turns an offset into the integer whose hex form seeds the digest.
const digestScale = 1e16

const hexDigits = "0123456789abcdef"

// LayerSignature is the derived identity of one layer.
type LayerSignature struct {
	Layer      int             `json:"layer"`
	Energy     float64         `json:"energy"`
	Phase      float64         `json:"phase"`
	Offset     float64         `json:"offset"`
	DelayNanos int64           `json:"delay_nanos"`
	Digest     [DigestLen]byte `json:"digest"`
}

// Delay returns DelayNanos as a time.Duration.
func (s LayerSignature) Delay() time.Duration {
	return time.Duration(s.DelayNanos)
}

// DigestString renders each digest byte as the code point of the same value.
// Bytes at or above 0x80 therefore become two-byte UTF-8 sequences.
func (s LayerSignature) DigestString() string {
	var b strings.Builder
	for _, c := range s.Digest {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// String formats the signature as CTT-L<dd>:<digest>:<energy>.
func (s LayerSignature) String() string {
	return fmt.Sprintf("CTT-L%02d:%s:%.6f", s.Layer, s.DigestString(), s.Energy)
}

// Phase returns the phase of layer d under the configured mode.
func Phase(p params.Params, d int) float64 {
	if p.Phase == params.PhaseFlat {
		return math.Pi / (1 + p.Alpha)
	}
	return math.Pi / (1 + p.Alpha*float64(d+1))
}

// DeriveSignature computes the signature of layer d.
func DeriveSignature(p params.Params, series *EnergySeries, d int) (LayerSignature, error) {
	if err := p.CheckLayer(d); err != nil {
		return LayerSignature{}, fmt.Errorf("signature: %w", err)
	}
	if series.Len() != p.Layers {
		return LayerSignature{}, fmt.Errorf("signature: series has %d layers, params %d: %w",
			series.Len(), p.Layers, params.ErrInvalidArgument)
	}

	sig := LayerSignature{
		Layer:      d,
		Energy:     series.At(d),
		Phase:      Phase(p, d),
		DelayNanos: DefaultDelay(p, d),
	}
	sig.Offset = sig.Energy * sig.Phase

	digest, err := dispersedDigest(sig.Offset, params.Parity(d))
	if err != nil {
		return LayerSignature{}, fmt.Errorf("signature layer %d: %w", d, err)
	}
	sig.Digest = digest
	return sig, nil
}

// DefaultDelay is prime[d]·1000 ns inside the prime table, 1000 ns past it.
func DefaultDelay(p params.Params, d int) int64 {
	if prime, ok := p.PrimeAt(d); ok {
		return int64(prime) * 1000
	}
	return params.DefaultDelayNanos
}

// dispersedDigest takes the leading 8 characters of floor(offset·1e16) as a
// 16-digit zero-padded lower-case hex string and XORs each with pattern.
// The hex characters are produced straight from the nibbles.
func dispersedDigest(offset float64, pattern byte) ([DigestLen]byte, error) {
	var out [DigestLen]byte
	scaled := math.Floor(offset * digestScale)
	if math.IsNaN(scaled) || scaled < 0 || scaled >= math.Exp2(64) {
		return out, fmt.Errorf("digest of offset %v: %w", offset, params.ErrArithmeticOverflow)
	}
	raw := uint64(scaled)
	for i := 0; i < DigestLen; i++ {
		nibble := (raw >> (4 * (15 - i))) & 0xF
		out[i] = hexDigits[nibble] ^ pattern
	}
	return out, nil
}
