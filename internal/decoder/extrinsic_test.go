package decoder

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

const (
	typeU128 scale.TypeID = iota
	typeCompactU128
	typeU8
	typeDest32
)

func transferKeepAliveLookup() *metadata.Lookup {
	registry := scale.MapRegistry{
		typeU128:        scale.TypeDef{Kind: scale.DefPrimitive, Primitive: scale.PrimU128},
		typeCompactU128: scale.TypeDef{Kind: scale.DefCompact, Compact: typeU128},
		typeU8:          scale.TypeDef{Kind: scale.DefPrimitive, Primitive: scale.PrimU8},
		typeDest32:      scale.TypeDef{Kind: scale.DefArray, ArrayLen: 32, ArrayElem: typeU8},
	}

	destName := "dest"
	valueName := "value"

	return &metadata.Lookup{
		PalletsByIndex: map[uint8]metadata.PalletInfo{3: {Name: "Balances"}},
		CallsByPalletIndex: map[uint8]map[uint8]metadata.VariantInfo{
			3: {
				7: {
					Name: "transfer_keep_alive",
					Fields: []scale.FieldDef{
						{Name: &destName, Type: typeDest32},
						{Name: &valueName, Type: typeCompactU128},
					},
				},
			},
		},
		SignedExtensions: []string{"CheckMortality", "CheckNonce", "ChargeTransactionPayment", "CheckMetadataHash"},
		RawTypes:         registry,
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// TestDecodeSignedExtrinsicRoundTrip covers a signed
// Balances.transfer_keep_alive call with CheckMortality(Immortal),
// CheckNonce(5), ChargeTransactionPayment(0), CheckMetadataHash(Disabled).
func TestDecodeSignedExtrinsicRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(scale.EncodeCompact(0)) // length prefix, ignored by the decoder
	buf.WriteByte(0x84)               // version 4, signed bit set

	buf.WriteByte(0x00) // MultiAddress tag: AccountId32
	signer := bytes.Repeat([]byte{0xaa}, 32)
	buf.Write(signer)

	buf.WriteByte(0x01) // MultiSignature tag: Sr25519
	buf.Write(bytes.Repeat([]byte{0xbb}, 64))

	buf.WriteByte(0x00)                // CheckMortality: immortal
	buf.Write(scale.EncodeCompact(5))  // CheckNonce: 5
	buf.Write(scale.EncodeCompact(0))  // ChargeTransactionPayment: tip 0
	buf.WriteByte(0x00)                // CheckMetadataHash: mode disabled

	buf.WriteByte(3) // pallet index: Balances
	buf.WriteByte(7) // call index: transfer_keep_alive

	dest := bytes.Repeat([]byte{0xcc}, 32)
	buf.Write(dest)
	buf.Write(scale.EncodeCompact(0)) // value: 0

	hexStr := scale.BytesToHex(buf.Bytes())
	ext := DecodeExtrinsic(0, hexStr, transferKeepAliveLookup(), nopLogger())

	require.Equal(t, "Balances", ext.Module)
	require.Equal(t, "transfer_keep_alive", ext.Call)
	require.NotNil(t, ext.Signer)
	require.Equal(t, scale.BytesToHex(signer), *ext.Signer)
	require.NotNil(t, ext.Nonce)
	require.Equal(t, uint64(5), *ext.Nonce)
	require.NotNil(t, ext.Tip)
	require.Equal(t, "0", *ext.Tip)
	require.NotNil(t, ext.Hash)
	require.NotNil(t, ext.Success)
	require.True(t, *ext.Success, "an extrinsic is optimistically successful until a later enrichment pass says otherwise")

	destValue, ok := ext.Args.Get("dest")
	require.True(t, ok)
	require.Equal(t, scale.BytesToHex(dest), destValue.Hex)

	valueValue, ok := ext.Args.Get("value")
	require.True(t, ok)
	require.Equal(t, "0", valueValue.Big.String())
}

func TestDecodeExtrinsicFallsBackOnUnknownCall(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(scale.EncodeCompact(0))
	buf.WriteByte(0x04) // unsigned, version 4
	buf.WriteByte(99)   // unknown pallet index
	buf.WriteByte(1)

	hexStr := scale.BytesToHex(buf.Bytes())
	ext := DecodeExtrinsic(0, hexStr, transferKeepAliveLookup(), nopLogger())

	require.Equal(t, "Unknown", ext.Module)
	require.Equal(t, "unknown", ext.Call)
	raw, ok := ext.Args.Get("raw")
	require.True(t, ok)
	require.Equal(t, hexStr, raw.Hex)
	require.NotNil(t, ext.Success)
	require.True(t, *ext.Success)
}

func TestDecodeUnsignedExtrinsicHasNoSignerOrHash(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(scale.EncodeCompact(0))
	buf.WriteByte(0x04) // unsigned
	buf.WriteByte(3)
	buf.WriteByte(7)
	buf.Write(bytes.Repeat([]byte{0xdd}, 32))
	buf.Write(scale.EncodeCompact(42))

	hexStr := scale.BytesToHex(buf.Bytes())
	ext := DecodeExtrinsic(0, hexStr, transferKeepAliveLookup(), nopLogger())

	require.Equal(t, "Balances", ext.Module)
	require.Nil(t, ext.Signer)
	require.Nil(t, ext.Hash)
}
