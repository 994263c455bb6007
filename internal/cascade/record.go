package cascade

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/talgya/cascade/internal/params"
)

// Record layout, little-endian:
//
//	0  u8   opcode
//	1  u8   flags      floor(energy·255), clamped
//	2  u16  signature  floor(offset·1e6) & 0xFF
//	4  i32  reserved0
//	8  u64  reserved1..reserved4 (four slots)
//
// The packed bytes are then XORed with 0xAA for resonance-prime layers and
// 0x55 otherwise.
const (
	RecordSize = 40

	// Opcode identifies the operation type carried by every record.
	Opcode byte = 59

	reservedSlots = 4
)

// Record is the decoded form of one layer's encoded parameters.
type Record struct {
	Layer     int                   `json:"layer"`
	Opcode    uint8                 `json:"opcode"`
	Flags     uint8                 `json:"flags"`
	Signature uint16                `json:"signature"`
	Reserved0 int32                 `json:"reserved0"`
	Reserved  [reservedSlots]uint64 `json:"reserved"`
}

// BuildRecord computes the record fields for layer d.
func BuildRecord(p params.Params, series *EnergySeries, d int) (Record, error) {
	sig, err := DeriveSignature(p, series, d)
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	flags, err := energyFlags(sig.Energy)
	if err != nil {
		return Record{}, fmt.Errorf("record layer %d: %w", d, err)
	}
	sb, err := signatureByte(sig.Offset)
	if err != nil {
		return Record{}, fmt.Errorf("record layer %d: %w", d, err)
	}
	return Record{
		Layer:     d,
		Opcode:    Opcode,
		Flags:     flags,
		Signature: uint16(sb),
	}, nil
}

// EncodeRecord builds and packs the record for layer d.
func EncodeRecord(p params.Params, series *EnergySeries, d int) ([]byte, error) {
	r, err := BuildRecord(p, series, d)
	if err != nil {
		return nil, err
	}
	return r.Pack(p), nil
}

// Pack serialises r and applies the whole-record XOR for its layer.
func (r Record) Pack(p params.Params) []byte {
	buf := make([]byte, RecordSize)
	buf[0] = r.Opcode
	buf[1] = r.Flags
	binary.LittleEndian.PutUint16(buf[2:4], r.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Reserved0))
	for i, v := range r.Reserved {
		off := 8 + 8*i
		binary.LittleEndian.PutUint64(buf[off:off+8], v)
	}
	xorAll(buf, recordPattern(p, r.Layer))
	return buf
}

// DecodeRecord reverses Pack for layer d.
func DecodeRecord(p params.Params, d int, raw []byte) (Record, error) {
	if err := p.CheckLayer(d); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if len(raw) != RecordSize {
		return Record{}, fmt.Errorf("decode record: %d bytes, want %d: %w",
			len(raw), RecordSize, params.ErrInvalidArgument)
	}
	buf := make([]byte, RecordSize)
	copy(buf, raw)
	xorAll(buf, recordPattern(p, d))

	r := Record{
		Layer:     d,
		Opcode:    buf[0],
		Flags:     buf[1],
		Signature: binary.LittleEndian.Uint16(buf[2:4]),
		Reserved0: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
	for i := range r.Reserved {
		off := 8 + 8*i
		r.Reserved[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}
	return r, nil
}

func recordPattern(p params.Params, d int) byte {
	if p.IsResonancePrime(d) {
		return params.ParityEven
	}
	return params.ParityOdd
}

func xorAll(buf []byte, pattern byte) {
	for i := range buf {
		buf[i] ^= pattern
	}
}

// energyFlags is floor(energy·255) clamped to [0, 255].
func energyFlags(energy float64) (uint8, error) {
	v := math.Floor(energy * 255)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("flags of energy %v: %w", energy, params.ErrArithmeticOverflow)
	}
	return uint8(math.Max(0, math.Min(255, v))), nil
}

// signatureByte is floor(offset·1e6) & 0xFF.
func signatureByte(offset float64) (uint8, error) {
	v := math.Floor(offset * 1e6)
	if math.IsNaN(v) || math.Abs(v) >= math.Exp2(63) {
		return 0, fmt.Errorf("signature of offset %v: %w", offset, params.ErrArithmeticOverflow)
	}
	return uint8(int64(v) & 0xFF), nil
}
