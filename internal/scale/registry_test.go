package scale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	typeU8 TypeID = iota
	typeU32
	typeVecU8
	typeNewtypeU32
	typeOptionU32
)

func testRegistry() MapRegistry {
	name := "value"
	return MapRegistry{
		typeU8:         TypeDef{Kind: DefPrimitive, Primitive: PrimU8},
		typeU32:        TypeDef{Kind: DefPrimitive, Primitive: PrimU32},
		typeVecU8:      TypeDef{Kind: DefSequence, Sequence: typeU8},
		typeNewtypeU32: TypeDef{Kind: DefComposite, Fields: []FieldDef{{Name: nil, Type: typeU32}}},
		typeOptionU32: TypeDef{
			Kind: DefVariant,
			Variants: []VariantDef{
				{Index: 0, Name: "None"},
				{Index: 1, Name: "Some", Fields: []FieldDef{{Name: &name, Type: typeU32}}},
			},
		},
	}
}

func TestReadVecU8FastPathsToHex(t *testing.T) {
	reg := testRegistry()
	data := append(EncodeCompact(2), 0x01, 0x02)

	v, offset, err := Read(data, 0, typeVecU8, reg)
	require.NoError(t, err)
	require.Equal(t, len(data), offset)
	require.Equal(t, KindHex, v.Kind)
	require.Equal(t, "0x0102", v.Hex)
}

func TestReadSingleFieldCompositeUnwraps(t *testing.T) {
	reg := testRegistry()
	data := []byte{0x07, 0x00, 0x00, 0x00} // u32 LE = 7

	v, offset, err := Read(data, 0, typeNewtypeU32, reg)
	require.NoError(t, err)
	require.Equal(t, 4, offset)
	require.Equal(t, KindInt, v.Kind)
	require.Equal(t, int64(7), v.Int)
}

func TestReadVariantKeepsNamedSingleFieldWrapped(t *testing.T) {
	reg := testRegistry()
	// "Some" field is named, so it does not unwrap to the bare value; it
	// still produces {"Some": {"value": 7}}.
	data := []byte{0x01, 0x07, 0x00, 0x00, 0x00}

	v, offset, err := Read(data, 0, typeOptionU32, reg)
	require.NoError(t, err)
	require.Equal(t, 5, offset)

	inner, ok := v.Get("Some")
	require.True(t, ok)
	field, ok := inner.Get("value")
	require.True(t, ok)
	require.Equal(t, int64(7), field.Int)
}

func TestReadVariantNoneHasEmptyMap(t *testing.T) {
	reg := testRegistry()
	data := []byte{0x00}

	v, offset, err := Read(data, 0, typeOptionU32, reg)
	require.NoError(t, err)
	require.Equal(t, 1, offset)

	inner, ok := v.Get("None")
	require.True(t, ok)
	require.Equal(t, KindMap, inner.Kind)
	require.Empty(t, inner.Fields)
}

func TestSkipMatchesReadOffset(t *testing.T) {
	reg := testRegistry()
	data := append(EncodeCompact(3), 0x01, 0x02, 0x03)

	_, readOffset, err := Read(data, 0, typeVecU8, reg)
	require.NoError(t, err)

	skipOffset, err := Skip(data, 0, typeVecU8, reg)
	require.NoError(t, err)
	require.Equal(t, readOffset, skipOffset)
}

func TestReadUnknownTypeIDErrors(t *testing.T) {
	reg := testRegistry()
	_, _, err := Read([]byte{0x00}, 0, TypeID(999), reg)
	require.Error(t, err)
}
