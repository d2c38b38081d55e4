package balances

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func le128(v uint64) []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func TestDecodeAccountInfo(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{7, 0, 0, 0}) // nonce = 7
	buf.Write([]byte{1, 0, 0, 0}) // consumers
	buf.Write([]byte{1, 0, 0, 0}) // providers
	buf.Write([]byte{0, 0, 0, 0}) // sufficients
	buf.Write(le128(1_000_000))   // free
	buf.Write(le128(500))         // reserved
	buf.Write(le128(0))           // frozen
	buf.Write(le128(0))           // flags

	info, err := decodeAccountInfo(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(7), info.Nonce)
	require.Equal(t, big.NewInt(1_000_000), info.Free)
	require.Equal(t, big.NewInt(500), info.Reserved)
	require.Equal(t, big.NewInt(0), info.Frozen)
	require.Equal(t, big.NewInt(0), info.Flags)
}

func TestDecodeAccountInfoRejectsShortInput(t *testing.T) {
	_, err := decodeAccountInfo([]byte{1, 2, 3})
	require.Error(t, err)
}
