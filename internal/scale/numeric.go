package scale

import "math/big"

// signExtend interprets the low (width*8) bits of v as a two's-complement
// signed integer and sign-extends it into an int64. width is at most 8
// (i64), so this never loses precision.
func signExtend(v uint64, width int) int64 {
	bits := uint(width * 8)
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		return int64(v - (signBit << 1))
	}
	return int64(v)
}

// bigIntFromBytes interprets big-endian bytes as a signed or unsigned
// integer depending on kind, applying two's-complement sign extension for
// the signed 128/256-bit primitives.
func bigIntFromBytes(be []byte, kind PrimitiveKind) *big.Int {
	v := new(big.Int).SetBytes(be)
	switch kind {
	case PrimI128, PrimI256:
		bits := uint(len(be) * 8)
		signBit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if v.Cmp(signBit) >= 0 {
			modulus := new(big.Int).Lsh(big.NewInt(1), bits)
			v.Sub(v, modulus)
		}
	}
	return v
}
