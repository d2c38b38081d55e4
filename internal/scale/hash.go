package scale

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Blake2_256 returns the 32-byte Blake2b digest of data.
func Blake2_256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Blake2_128 returns the 16-byte Blake2b digest of data.
func Blake2_128(data []byte) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// only fails for invalid digest sizes/keys, both fixed here
		panic(err)
	}
	h.Write(data)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// xxh64LE hashes data with the given seed and returns the digest
// little-endian, matching the wire representation used by Twox hashers.
func xxh64LE(data []byte, seed uint64) []byte {
	d := xxhash.NewWithSeed(seed)
	d.Write(data)
	sum := d.Sum64()
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, sum)
	return out
}

// Twox128 implements the storage-key hasher used for pallet/item name
// components: XXH64(data‖0) ‖ XXH64(data‖1), each little-endian, 16 bytes
// total.
func Twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	out = append(out, xxh64LE(data, 0)...)
	out = append(out, xxh64LE(data, 1)...)
	return out
}

// Twox64Concat implements the Twox64Concat storage-key hasher:
// XXH64(key, seed 0) little-endian ‖ key.
func Twox64Concat(key []byte) []byte {
	out := make([]byte, 0, 8+len(key))
	out = append(out, xxh64LE(key, 0)...)
	out = append(out, key...)
	return out
}

// Blake2_128Concat implements the Blake2_128Concat storage-key hasher:
// Blake2_128(key) ‖ key.
func Blake2_128Concat(key []byte) []byte {
	digest := Blake2_128(key)
	out := make([]byte, 0, 16+len(key))
	out = append(out, digest[:]...)
	out = append(out, key...)
	return out
}

// StorageMapKey builds the full storage key for a map entry: the pallet and
// item name twox128-hashed, followed by the hashed map key.
func StorageMapKey(pallet, item string, hashedMapKey []byte) []byte {
	out := make([]byte, 0, 32+len(hashedMapKey))
	out = append(out, Twox128([]byte(pallet))...)
	out = append(out, Twox128([]byte(item))...)
	out = append(out, hashedMapKey...)
	return out
}

// StoragePrefixKey builds the storage key for a plain (non-map) storage
// item: the pallet and item name twox128-hashed, with no further component.
func StoragePrefixKey(pallet, item string) []byte {
	out := make([]byte, 0, 32)
	out = append(out, Twox128([]byte(pallet))...)
	out = append(out, Twox128([]byte(item))...)
	return out
}
