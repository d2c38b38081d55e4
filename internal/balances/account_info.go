package balances

import (
	"fmt"
	"math/big"
)

// accountInfo mirrors frame_system::AccountInfo<Index, AccountData>: a
// fixed, well-known layout that hasn't changed shape across runtime
// upgrades, so it is decoded directly rather than through the portable
// type registry (which has no entry for it, since storage-item value
// types are never read out of frame metadata by this indexer). AccountData
// carries the modern `frozen`/`flags` pair (the pre-2022 runtime split
// `misc_frozen`/`fee_frozen` into two balances; both layouts are four
// back-to-back u128 words, so only the field names differ here).
type accountInfo struct {
	Nonce    uint32
	Free     *big.Int
	Reserved *big.Int
	Frozen   *big.Int
	Flags    *big.Int
}

// decodeAccountInfo reads nonce, consumers, providers, sufficients (each
// u32) followed by the AccountData block of four u128 words.
func decodeAccountInfo(data []byte) (accountInfo, error) {
	const (
		u32Width  = 4
		u128Width = 16
		minLen    = u32Width*4 + u128Width*4
	)
	if len(data) < minLen {
		return accountInfo{}, fmt.Errorf("account info too short: %d bytes", len(data))
	}

	offset := u32Width // nonce kept
	nonce := leUint32(data[0:u32Width])
	offset += u32Width * 2 // skip consumers, providers
	offset += u32Width     // skip sufficients

	free := leUint128(data[offset : offset+u128Width])
	offset += u128Width
	reserved := leUint128(data[offset : offset+u128Width])
	offset += u128Width
	frozen := leUint128(data[offset : offset+u128Width])
	offset += u128Width
	flags := leUint128(data[offset : offset+u128Width])

	return accountInfo{
		Nonce:    nonce,
		Free:     free,
		Reserved: reserved,
		Frozen:   frozen,
		Flags:    flags,
	}, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint128(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}
