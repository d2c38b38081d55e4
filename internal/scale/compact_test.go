package scale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCompactVectors(t *testing.T) {
	cases := []struct {
		hex      string
		expected uint64
	}{
		{"00", 0},
		{"04", 1},
		{"a8", 42},
		{"a10f", 1000},
		{"c91f", 2034},
		{"821a0600", 100000},
	}

	for _, c := range cases {
		data := MustHexToBytes(c.hex)
		v, offset, err := DecodeCompactUint64(data, 0)
		require.NoError(t, err)
		require.Equal(t, c.expected, v)
		require.Equal(t, len(data), offset)
	}
}

func TestEncodeDecodeCompactRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 42, 63, 64, 16383, 16384, 1 << 29, 1 << 30, 1 << 40}
	for _, v := range values {
		encoded := EncodeCompact(v)
		decoded, offset, err := DecodeCompactUint64(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, v, decoded)
		require.Equal(t, len(encoded), offset)
	}
}

func TestDecodeCompactTruncatedBuffer(t *testing.T) {
	_, _, err := DecodeCompact([]byte{0x01}, 0) // two-byte mode, only 1 byte present
	require.Error(t, err)
}
