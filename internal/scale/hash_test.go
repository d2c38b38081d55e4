package scale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwox128Length(t *testing.T) {
	digest := Twox128([]byte("System"))
	require.Len(t, digest, 16)
}

func TestTwox128Deterministic(t *testing.T) {
	a := Twox128([]byte("Balances"))
	b := Twox128([]byte("Balances"))
	require.Equal(t, a, b)

	c := Twox128([]byte("System"))
	require.NotEqual(t, a, c)
}

func TestBlake2_128ConcatPreservesKey(t *testing.T) {
	key := []byte{1, 2, 3, 4}
	out := Blake2_128Concat(key)
	require.Len(t, out, 16+len(key))
	require.Equal(t, key, out[16:])
}

func TestTwox64ConcatPreservesKey(t *testing.T) {
	key := []byte{9, 9, 9}
	out := Twox64Concat(key)
	require.Len(t, out, 8+len(key))
	require.Equal(t, key, out[8:])
}

func TestStorageMapKeyComposesPrefixAndHashedKey(t *testing.T) {
	hashedKey := Blake2_128Concat([]byte("accountid"))
	key := StorageMapKey("System", "Account", hashedKey)
	require.Len(t, key, 32+len(hashedKey))
	require.Equal(t, StoragePrefixKey("System", "Account"), key[:32])
}
