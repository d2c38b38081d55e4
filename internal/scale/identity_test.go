package scale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeIdentityDataNone(t *testing.T) {
	v, offset, err := DecodeIdentityData([]byte{0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, offset)
	inner, ok := v.Get("None")
	require.True(t, ok)
	require.Equal(t, KindMap, inner.Kind)
}

func TestDecodeIdentityDataRawUTF8(t *testing.T) {
	raw := []byte("alice")
	data := append([]byte{byte(len(raw) + 1)}, raw...)

	v, offset, err := DecodeIdentityData(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), offset)
	inner, ok := v.Get("Raw")
	require.True(t, ok)
	require.Equal(t, KindString, inner.Kind)
	require.Equal(t, "alice", inner.Str)
}

func TestDecodeIdentityDataRawNonUTF8FallsBackToHex(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	data := append([]byte{byte(len(raw) + 1)}, raw...)

	v, _, err := DecodeIdentityData(data, 0)
	require.NoError(t, err)
	inner, ok := v.Get("Raw")
	require.True(t, ok)
	require.Equal(t, KindHex, inner.Kind)
}

func TestDecodeIdentityDataHashVariant(t *testing.T) {
	data := make([]byte, 33)
	data[0] = 34 // BlakeTwo256
	v, offset, err := DecodeIdentityData(data, 0)
	require.NoError(t, err)
	require.Equal(t, 33, offset)
	_, ok := v.Get("BlakeTwo256")
	require.True(t, ok)
}

func TestDecodeIdentityDataUnknownTag(t *testing.T) {
	_, _, err := DecodeIdentityData([]byte{200}, 0)
	require.Error(t, err)
}
