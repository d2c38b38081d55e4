package scale

import (
	"fmt"
	"math/big"
)

// DecodeCompact decodes a SCALE compact integer starting at offset and
// returns its value as a big.Int (the mode can carry arbitrarily large
// integers) plus the offset of the first unconsumed byte.
//
// The low two bits of the first byte select the mode:
//
//	00 - single-byte mode, value fits in 6 bits
//	01 - two-byte mode, value fits in 14 bits
//	10 - four-byte mode, value fits in 30 bits
//	11 - big-integer mode, (first_byte>>2)+4 following bytes, little-endian
func DecodeCompact(data []byte, offset int) (*big.Int, int, error) {
	if offset >= len(data) {
		return nil, offset, fmt.Errorf("compact decode: offset %d out of range (len %d)", offset, len(data))
	}

	first := data[offset]
	mode := first & 0x03

	switch mode {
	case 0x00:
		return big.NewInt(int64(first >> 2)), offset + 1, nil
	case 0x01:
		if offset+2 > len(data) {
			return nil, offset, fmt.Errorf("compact decode: two-byte mode needs 2 bytes at offset %d", offset)
		}
		v := uint16(data[offset]) | uint16(data[offset+1])<<8
		return big.NewInt(int64(v >> 2)), offset + 2, nil
	case 0x02:
		if offset+4 > len(data) {
			return nil, offset, fmt.Errorf("compact decode: four-byte mode needs 4 bytes at offset %d", offset)
		}
		v := uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
		return big.NewInt(int64(v >> 2)), offset + 4, nil
	default: // 0x03
		numBytes := int(first>>2) + 4
		start := offset + 1
		end := start + numBytes
		if end > len(data) {
			return nil, offset, fmt.Errorf("compact decode: big-int mode needs %d bytes at offset %d", numBytes, start)
		}
		// little-endian bytes -> big.Int
		be := make([]byte, numBytes)
		for i := 0; i < numBytes; i++ {
			be[numBytes-1-i] = data[start+i]
		}
		return new(big.Int).SetBytes(be), end, nil
	}
}

// DecodeCompactUint64 is a convenience wrapper over DecodeCompact for values
// known to fit in a uint64 (block counts, lengths, nonces).
func DecodeCompactUint64(data []byte, offset int) (uint64, int, error) {
	v, newOffset, err := DecodeCompact(data, offset)
	if err != nil {
		return 0, offset, err
	}
	if !v.IsUint64() {
		return 0, offset, fmt.Errorf("compact decode: value %s overflows uint64", v.String())
	}
	return v.Uint64(), newOffset, nil
}

// EncodeCompact encodes a non-negative integer using the smallest mode that
// fits it. Used by tests to validate round-tripping and by components that
// must construct storage keys containing compact-encoded lengths.
func EncodeCompact(v uint64) []byte {
	switch {
	case v < 1<<6:
		return []byte{byte(v << 2)}
	case v < 1<<14:
		x := uint16(v<<2) | 0x01
		return []byte{byte(x), byte(x >> 8)}
	case v < 1<<30:
		x := uint32(v<<2) | 0x02
		return []byte{byte(x), byte(x >> 8), byte(x >> 16), byte(x >> 24)}
	default:
		b := big.NewInt(0).SetUint64(v).Bytes() // big-endian
		// reverse to little-endian
		le := make([]byte, len(b))
		for i, c := range b {
			le[len(b)-1-i] = c
		}
		header := byte((len(le)-4)<<2) | 0x03
		return append([]byte{header}, le...)
	}
}
