package metadata

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// metaBuilder assembles a minimal, valid V14 RuntimeMetadataPrefixed blob
// byte-by-byte, mirroring the wire format frame.go decodes. It exists only
// for this test: there is no production need to encode metadata.
type metaBuilder struct {
	buf []byte
}

func (b *metaBuilder) u8(v byte) { b.buf = append(b.buf, v) }

func (b *metaBuilder) u32(v uint32) {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	b.buf = append(b.buf, tmp...)
}

func (b *metaBuilder) compact(v uint64) { b.buf = append(b.buf, scale.EncodeCompact(v)...) }

func (b *metaBuilder) str(s string) {
	b.compact(uint64(len(s)))
	b.buf = append(b.buf, []byte(s)...)
}

func (b *metaBuilder) none() { b.u8(0) }

func (b *metaBuilder) someCompact(v uint64) {
	b.u8(1)
	b.compact(v)
}

func (b *metaBuilder) emptyVec() { b.compact(0) }

// buildMinimalMetadata assembles a registry of two types (a u32 primitive,
// and a variant type with one "Transfer" event carrying that u32 as its
// single unnamed field), one pallet ("Balances", index 5) exposing only
// that event type, and a single signed extension ("CheckNonce").
func buildMinimalMetadata() []byte {
	b := &metaBuilder{}

	b.u32(metaMagic)
	b.u8(14) // version

	// --- PortableRegistry: 2 types ---
	b.compact(2)

	// type id 0: u32 primitive
	b.compact(0)  // id
	b.emptyVec()  // path
	b.emptyVec()  // type_params
	b.u8(5)       // TypeDef tag 5 = Primitive
	b.u8(5)       // primitive tag 5 = U32
	b.emptyVec()  // docs

	// type id 1: variant { Transfer(u32) }
	b.compact(1) // id
	b.emptyVec() // path
	b.emptyVec() // type_params
	b.u8(1)      // TypeDef tag 1 = Variant
	b.compact(1) // 1 variant
	b.str("Transfer")
	b.compact(1)  // 1 field
	b.none()      // field name = None (unnamed)
	b.compact(0)  // field type = 0
	b.none()      // field typeName
	b.emptyVec()  // field docs
	b.u8(0)       // variant index = 0
	b.emptyVec()  // variant docs
	b.emptyVec()  // type docs

	// --- pallets: 1 ---
	b.compact(1)
	b.str("Balances")
	b.none()         // storage = None
	b.none()         // calls = None
	b.someCompact(1) // event = Some(ty: 1)
	b.emptyVec()     // constants
	b.none()         // errors = None
	b.u8(5)          // pallet index = 5

	// --- extrinsic metadata ---
	b.compact(0) // ty
	b.u8(4)      // version
	b.compact(1) // 1 signed extension
	b.str("CheckNonce")
	b.compact(0) // ty
	b.compact(0) // additional_signed

	return b.buf
}

func TestDecodeFrameMetadataMinimal(t *testing.T) {
	raw := buildMinimalMetadata()

	lookup, err := DecodeFrameMetadata(raw, 9100)
	require.NoError(t, err)
	require.Equal(t, uint32(9100), lookup.SpecVersion)
	require.Equal(t, []string{"CheckNonce"}, lookup.SignedExtensions)
	require.Equal(t, "Balances", lookup.PalletName(5))

	event, ok := lookup.Event(5, 0)
	require.True(t, ok)
	require.Equal(t, "Transfer", event.Name)
	require.Len(t, event.Fields, 1)

	def, ok := lookup.RawTypes.TypeDef(0)
	require.True(t, ok)
	require.Equal(t, scale.DefPrimitive, def.Kind)
	require.Equal(t, scale.PrimU32, def.Primitive)
}

func TestDecodeFrameMetadataRejectsBadMagic(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 14}
	_, err := DecodeFrameMetadata(raw, 1)
	require.Error(t, err)
}

func TestDecodeFrameMetadataRejectsPreV14(t *testing.T) {
	b := &metaBuilder{}
	b.u32(metaMagic)
	b.u8(12)
	_, err := DecodeFrameMetadata(b.buf, 1)
	require.Error(t, err)
}
