package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CanonicalDimension is the fixed length of every vector handed to the stores
const CanonicalDimension = 768

// vectorHeaderSize is flags(1) + native dimension(2) + tier length(1)
const vectorHeaderSize = 4

const flagPadded = 1 << 0

var errShortVector = errors.New("encoded vector is truncated")

// EmbeddingVector is a canonical-length vector with provenance
type EmbeddingVector struct {
	Values          []float32
	Tier            string
	Padded          bool
	NativeDimension int
}

// Normalize fits raw provider output to the canonical dimension. Shorter
// vectors are zero-filled and flagged as padded, longer ones are truncated.
func Normalize(raw []float32, tier string) *EmbeddingVector {
	out := &EmbeddingVector{
		Values:          make([]float32, CanonicalDimension),
		Tier:            tier,
		NativeDimension: len(raw),
	}
	copy(out.Values, raw)
	if len(raw) < CanonicalDimension {
		out.Padded = true
	}
	return out
}

// Clone returns a deep copy of the vector
func (v *EmbeddingVector) Clone() *EmbeddingVector {
	values := make([]float32, len(v.Values))
	copy(values, v.Values)
	return &EmbeddingVector{
		Values:          values,
		Tier:            v.Tier,
		Padded:          v.Padded,
		NativeDimension: v.NativeDimension,
	}
}

// MarshalBinary encodes the vector as a small header followed by
// little-endian float32 values.
func (v *EmbeddingVector) MarshalBinary() ([]byte, error) {
	if len(v.Tier) > math.MaxUint8 {
		return nil, fmt.Errorf("tier name too long: %d bytes", len(v.Tier))
	}
	if v.NativeDimension > math.MaxUint16 {
		return nil, fmt.Errorf("native dimension too large: %d", v.NativeDimension)
	}

	buf := make([]byte, vectorHeaderSize+len(v.Tier)+len(v.Values)*4)
	if v.Padded {
		buf[0] |= flagPadded
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(v.NativeDimension))
	buf[3] = byte(len(v.Tier))
	n := copy(buf[vectorHeaderSize:], v.Tier)
	copy(buf[vectorHeaderSize+n:], EncodeFloats(v.Values))
	return buf, nil
}

// UnmarshalBinary decodes a vector produced by MarshalBinary
func (v *EmbeddingVector) UnmarshalBinary(data []byte) error {
	if len(data) < vectorHeaderSize {
		return errShortVector
	}
	tierLen := int(data[3])
	body := data[vectorHeaderSize:]
	if len(body) < tierLen || (len(body)-tierLen)%4 != 0 {
		return errShortVector
	}

	v.Padded = data[0]&flagPadded != 0
	v.NativeDimension = int(binary.LittleEndian.Uint16(data[1:3]))
	v.Tier = string(body[:tierLen])
	v.Values = DecodeFloats(body[tierLen:])
	return nil
}

// EncodeFloats converts a float32 slice to a little-endian byte blob
func EncodeFloats(values []float32) []byte {
	blob := make([]byte, len(values)*4)
	for i, f := range values {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// DecodeFloats converts a little-endian byte blob back to a float32 slice
func DecodeFloats(blob []byte) []float32 {
	values := make([]float32, len(blob)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return values
}
