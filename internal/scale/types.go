package scale

// TypeID indexes into a Registry's portable type table, as produced by the
// runtime's V14+ metadata.
type TypeID uint32

// PrimitiveKind names a SCALE primitive leaf type.
type PrimitiveKind string

const (
	PrimBool PrimitiveKind = "bool"
	PrimU8   PrimitiveKind = "u8"
	PrimU16  PrimitiveKind = "u16"
	PrimU32  PrimitiveKind = "u32"
	PrimU64  PrimitiveKind = "u64"
	PrimU128 PrimitiveKind = "u128"
	PrimU256 PrimitiveKind = "u256"
	PrimI8   PrimitiveKind = "i8"
	PrimI16  PrimitiveKind = "i16"
	PrimI32  PrimitiveKind = "i32"
	PrimI64  PrimitiveKind = "i64"
	PrimI128 PrimitiveKind = "i128"
	PrimI256 PrimitiveKind = "i256"
	PrimStr  PrimitiveKind = "str"
	PrimChar PrimitiveKind = "char"
)

// primitiveWidths gives the fixed byte width of each integer primitive; str
// and bool are handled separately by the traversal.
var primitiveWidths = map[PrimitiveKind]int{
	PrimU8: 1, PrimI8: 1,
	PrimU16: 2, PrimI16: 2,
	PrimU32: 4, PrimI32: 4,
	PrimU64: 8, PrimI64: 8,
	PrimU128: 16, PrimI128: 16,
	PrimU256: 32, PrimI256: 32,
	PrimChar: 4,
}

// TypeDefKind tags the shape of one entry in a type registry.
type TypeDefKind uint8

const (
	DefPrimitive TypeDefKind = iota
	DefCompact
	DefSequence
	DefArray
	DefTuple
	DefComposite
	DefVariant
	DefBitSequence
)

// FieldDef names one field of a composite type or variant. Name is nil for
// unnamed (tuple-style) fields.
type FieldDef struct {
	Name *string
	Type TypeID
}

// VariantDef is one arm of an enum: the index is the discriminant byte found
// on the wire, Fields is empty for unit variants.
type VariantDef struct {
	Index  uint8
	Name   string
	Fields []FieldDef
}

// TypeDef is one entry of a portable type registry, as decoded from runtime
// metadata. Exactly one of the kind-specific fields is meaningful for a
// given Kind.
type TypeDef struct {
	Kind      TypeDefKind
	Path      []string // type path segments, e.g. ["sp_core","crypto","AccountId32"]
	Primitive PrimitiveKind
	Compact   TypeID
	Sequence  TypeID
	ArrayLen  int
	ArrayElem TypeID
	Tuple     []TypeID
	Fields    []FieldDef
	Variants  []VariantDef
}

// Registry resolves a TypeID to its definition. Implemented by
// internal/metadata's portable type lookup; kept as an interface here so
// internal/scale has no dependency on how metadata is fetched or cached.
type Registry interface {
	TypeDef(id TypeID) (TypeDef, bool)
}

// MapRegistry is the simplest Registry implementation: a plain map, used by
// tests and by internal/metadata once it has flattened the portable
// registry decoded from chain metadata.
type MapRegistry map[TypeID]TypeDef

func (m MapRegistry) TypeDef(id TypeID) (TypeDef, bool) {
	td, ok := m[id]
	return td, ok
}
