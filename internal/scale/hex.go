// Package scale implements the primitives needed to decode SCALE-encoded
// (Simple Concatenated Aggregate Little-Endian) values from Substrate-family
// chains: hex conversion, compact integers, storage-key hashers, and a
// metadata-driven type-registry traversal.
package scale

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexToBytes decodes a hex string into bytes. Both "0x"-prefixed and bare
// hex strings are accepted.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// BytesToHex encodes bytes as a lowercase, "0x"-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// MustHexToBytes is HexToBytes but panics on error; used only for constants
// known to be valid at compile time (tests, fixtures).
func MustHexToBytes(s string) []byte {
	b, err := HexToBytes(s)
	if err != nil {
		panic(err)
	}
	return b
}
