package decoder

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

func bigFromInt(v int64) *big.Int { return big.NewInt(v) }

func strPtr(s string) *string { return &s }

func TestDecodeEventsApplyExtrinsicPhase(t *testing.T) {
	reg := scale.MapRegistry{
		0: scale.TypeDef{Kind: scale.DefPrimitive, Primitive: scale.PrimU32},
	}
	lookup := &metadata.Lookup{
		PalletsByIndex: map[uint8]metadata.PalletInfo{2: {Name: "Balances"}},
		EventsByPalletIndex: map[uint8]map[uint8]metadata.VariantInfo{
			2: {1: {Name: "Endowed", Fields: []scale.FieldDef{{Name: strPtr("amount"), Type: 0}}}},
		},
		RawTypes: reg,
	}

	var buf bytes.Buffer
	buf.Write(scale.EncodeCompact(1)) // 1 event record

	buf.WriteByte(0x00)                         // ApplyExtrinsic
	buf.Write([]byte{3, 0, 0, 0})                // extrinsic index 3
	buf.WriteByte(2)                            // pallet index
	buf.WriteByte(1)                            // event index
	buf.Write([]byte{100, 0, 0, 0})              // amount = 100
	buf.Write(scale.EncodeCompact(0))           // 0 topics

	events, err := DecodeEvents(buf.Bytes(), lookup)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, PhaseApplyExtrinsic, events[0].Phase)
	require.NotNil(t, events[0].ExtrinsicIndex)
	require.Equal(t, uint32(3), *events[0].ExtrinsicIndex)
	require.Equal(t, "Balances", events[0].Module)
	require.Equal(t, "Endowed", events[0].Name)

	amount, ok := events[0].Args.Get("amount")
	require.True(t, ok)
	require.Equal(t, int64(100), amount.Int)
}

func TestEnrichExtrinsicsMarksFailureAndFee(t *testing.T) {
	extrinsics := []Extrinsic{
		{Index: 0, Module: "Balances", Call: "transfer"},
	}

	idx := uint32(0)
	feeArgs := scale.NewMap([]scale.Field{
		{Name: "who", Value: scale.NewHex("0x00")},
		{Name: "actual_fee", Value: scale.NewBigInt(bigFromInt(500))},
	})

	events := []Event{
		{Phase: PhaseApplyExtrinsic, ExtrinsicIndex: &idx, Module: "System", Name: "ExtrinsicFailed"},
		{Phase: PhaseApplyExtrinsic, ExtrinsicIndex: &idx, Module: "TransactionPayment", Name: "TransactionFeePaid", Args: feeArgs},
	}

	EnrichExtrinsics(extrinsics, events, nopLogger())

	require.NotNil(t, extrinsics[0].Success)
	require.False(t, *extrinsics[0].Success)
	require.NotNil(t, extrinsics[0].Fee)
	require.Equal(t, "500", *extrinsics[0].Fee)
}

func TestEnrichExtrinsicsIgnoresOutOfRangeIndex(t *testing.T) {
	extrinsics := []Extrinsic{{Index: 0}}
	idx := uint32(5)
	events := []Event{{Phase: PhaseApplyExtrinsic, ExtrinsicIndex: &idx, Module: "System", Name: "ExtrinsicFailed"}}

	require.NotPanics(t, func() {
		EnrichExtrinsics(extrinsics, events, nopLogger())
	})
	require.Nil(t, extrinsics[0].Success)
}
