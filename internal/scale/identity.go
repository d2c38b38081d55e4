package scale

import (
	"fmt"
	"unicode/utf8"
)

// DecodeIdentityData decodes the `pallet_identity::Data` enum: tag 0 is
// None, tags 1..33 carry a raw byte string of length (tag-1), and tags
// 34..37 carry a fixed-size hash (Blake2/Sha256/Keccak256/ShaThree256,
// 32 bytes each). It does not appear in the portable type registry under
// its own composite/variant shape in most runtimes, so it is decoded by
// hand rather than through Read.
func DecodeIdentityData(data []byte, offset int) (Value, int, error) {
	if offset >= len(data) {
		return Value{}, offset, fmt.Errorf("scale: identity data tag out of range at offset %d", offset)
	}
	tag := data[offset]
	cur := offset + 1

	switch {
	case tag == 0:
		return NewVariant("None", NewMap(nil)), cur, nil
	case tag >= 1 && tag <= 33:
		length := int(tag - 1)
		end := cur + length
		if end > len(data) {
			return Value{}, offset, fmt.Errorf("scale: identity data raw value of %d bytes overruns buffer at offset %d", length, cur)
		}
		raw := data[cur:end]
		if utf8.Valid(raw) {
			return NewVariant("Raw", NewString(string(raw))), end, nil
		}
		return NewVariant("Raw", NewHex(BytesToHex(raw))), end, nil
	case tag >= 34 && tag <= 37:
		end := cur + 32
		if end > len(data) {
			return Value{}, offset, fmt.Errorf("scale: identity data hash overruns buffer at offset %d", cur)
		}
		name := identityHashVariantName(tag)
		return NewVariant(name, NewHex(BytesToHex(data[cur:end]))), end, nil
	default:
		return Value{}, offset, fmt.Errorf("scale: unknown identity data tag %d", tag)
	}
}

func identityHashVariantName(tag byte) string {
	switch tag {
	case 34:
		return "BlakeTwo256"
	case 35:
		return "Sha256"
	case 36:
		return "Keccak256"
	case 37:
		return "ShaThree256"
	default:
		return "Unknown"
	}
}
