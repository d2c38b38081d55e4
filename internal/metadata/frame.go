package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// metaMagic is the 4-byte ASCII magic "meta" every RuntimeMetadataPrefixed
// payload begins with, read as a little-endian u32.
const metaMagic = 0x6174656d

// minSupportedVersion is the lowest metadata version this decoder accepts.
// Earlier versions carry no portable type registry — see DESIGN.md's Open
// Question decision.
const minSupportedVersion = 14

// cursor is a hand-rolled SCALE reader used only to bootstrap the type
// registry itself: internal/scale.Read needs a Registry to decode against,
// and the registry is exactly what frame metadata carries, so metadata
// parsing cannot go through internal/scale.Read for its own structure.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) byte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, fmt.Errorf("metadata: unexpected end of buffer at offset %d", c.pos)
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, fmt.Errorf("metadata: need %d bytes at offset %d, only %d remain", n, c.pos, len(c.data)-c.pos)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) compactU64() (uint64, error) {
	v, next, err := scale.DecodeCompactUint64(c.data, c.pos)
	if err != nil {
		return 0, err
	}
	c.pos = next
	return v, nil
}

func (c *cursor) str() (string, error) {
	n, err := c.compactU64()
	if err != nil {
		return "", err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) optionStr() (*string, error) {
	tag, err := c.byte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	s, err := c.str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *cursor) optionCompact() (*uint64, error) {
	tag, err := c.byte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	v, err := c.compactU64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// skipStrVec skips a Vec<str> without retaining it (used for docs fields,
// which this decoder has no use for).
func (c *cursor) skipStrVec() error {
	n, err := c.compactU64()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := c.str(); err != nil {
			return err
		}
	}
	return nil
}

// portableField mirrors scale_info's Field: an optional name, a type id,
// and docs (skipped).
type portableField struct {
	Name *string
	Type uint64
}

func (c *cursor) readField() (portableField, error) {
	var f portableField
	name, err := c.optionStr()
	if err != nil {
		return f, err
	}
	f.Name = name
	ty, err := c.compactU64()
	if err != nil {
		return f, err
	}
	f.Type = ty
	if _, err := c.optionStr(); err != nil { // typeName
		return f, err
	}
	if err := c.skipStrVec(); err != nil { // docs
		return f, err
	}
	return f, nil
}

func (c *cursor) readFields() ([]portableField, error) {
	n, err := c.compactU64()
	if err != nil {
		return nil, err
	}
	fields := make([]portableField, 0, n)
	for i := uint64(0); i < n; i++ {
		f, err := c.readField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

type portableVariant struct {
	Name   string
	Fields []portableField
	Index  uint8
}

func (c *cursor) readVariant() (portableVariant, error) {
	var v portableVariant
	name, err := c.str()
	if err != nil {
		return v, err
	}
	v.Name = name
	fields, err := c.readFields()
	if err != nil {
		return v, err
	}
	v.Fields = fields
	idx, err := c.byte()
	if err != nil {
		return v, err
	}
	v.Index = idx
	if err := c.skipStrVec(); err != nil { // docs
		return v, err
	}
	return v, nil
}

// readTypeDef decodes one scale_info TypeDef (tagged by a leading byte)
// into this module's TypeDef representation.
func (c *cursor) readTypeDef() (scale.TypeDef, error) {
	tag, err := c.byte()
	if err != nil {
		return scale.TypeDef{}, err
	}

	switch tag {
	case 0: // Composite
		fields, err := c.readFields()
		if err != nil {
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefComposite, Fields: toFieldDefs(fields)}, nil

	case 1: // Variant
		n, err := c.compactU64()
		if err != nil {
			return scale.TypeDef{}, err
		}
		variants := make([]scale.VariantDef, 0, n)
		for i := uint64(0); i < n; i++ {
			pv, err := c.readVariant()
			if err != nil {
				return scale.TypeDef{}, err
			}
			variants = append(variants, scale.VariantDef{
				Index:  pv.Index,
				Name:   pv.Name,
				Fields: toFieldDefs(pv.Fields),
			})
		}
		return scale.TypeDef{Kind: scale.DefVariant, Variants: variants}, nil

	case 2: // Sequence
		elem, err := c.compactU64()
		if err != nil {
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefSequence, Sequence: scale.TypeID(elem)}, nil

	case 3: // Array
		length, err := c.u32()
		if err != nil {
			return scale.TypeDef{}, err
		}
		elem, err := c.compactU64()
		if err != nil {
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefArray, ArrayLen: int(length), ArrayElem: scale.TypeID(elem)}, nil

	case 4: // Tuple
		n, err := c.compactU64()
		if err != nil {
			return scale.TypeDef{}, err
		}
		ids := make([]scale.TypeID, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := c.compactU64()
			if err != nil {
				return scale.TypeDef{}, err
			}
			ids = append(ids, scale.TypeID(v))
		}
		return scale.TypeDef{Kind: scale.DefTuple, Tuple: ids}, nil

	case 5: // Primitive
		p, err := c.byte()
		if err != nil {
			return scale.TypeDef{}, err
		}
		kind, err := primitiveFromTag(p)
		if err != nil {
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefPrimitive, Primitive: kind}, nil

	case 6: // Compact
		elem, err := c.compactU64()
		if err != nil {
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefCompact, Compact: scale.TypeID(elem)}, nil

	case 7: // BitSequence
		if _, err := c.compactU64(); err != nil { // bit_store_type
			return scale.TypeDef{}, err
		}
		if _, err := c.compactU64(); err != nil { // bit_order_type
			return scale.TypeDef{}, err
		}
		return scale.TypeDef{Kind: scale.DefBitSequence}, nil

	default:
		return scale.TypeDef{}, fmt.Errorf("metadata: unknown type def tag %d", tag)
	}
}

func toFieldDefs(fields []portableField) []scale.FieldDef {
	out := make([]scale.FieldDef, 0, len(fields))
	for _, f := range fields {
		out = append(out, scale.FieldDef{Name: f.Name, Type: scale.TypeID(f.Type)})
	}
	return out
}

func primitiveFromTag(tag byte) (scale.PrimitiveKind, error) {
	kinds := []scale.PrimitiveKind{
		scale.PrimBool, scale.PrimChar, scale.PrimStr,
		scale.PrimU8, scale.PrimU16, scale.PrimU32, scale.PrimU64, scale.PrimU128, scale.PrimU256,
		scale.PrimI8, scale.PrimI16, scale.PrimI32, scale.PrimI64, scale.PrimI128, scale.PrimI256,
	}
	if int(tag) >= len(kinds) {
		return "", fmt.Errorf("metadata: unknown primitive tag %d", tag)
	}
	return kinds[tag], nil
}

// readPortableRegistry decodes the full `types: Vec<PortableType>` table
// into a flat TypeID -> TypeDef registry.
func (c *cursor) readPortableRegistry() (scale.MapRegistry, error) {
	n, err := c.compactU64()
	if err != nil {
		return nil, err
	}
	reg := make(scale.MapRegistry, n)
	for i := uint64(0); i < n; i++ {
		id, err := c.compactU64()
		if err != nil {
			return nil, err
		}
		// path
		pathLen, err := c.compactU64()
		if err != nil {
			return nil, err
		}
		path := make([]string, 0, pathLen)
		for j := uint64(0); j < pathLen; j++ {
			s, err := c.str()
			if err != nil {
				return nil, err
			}
			path = append(path, s)
		}
		// type_params: Vec<{name: str, type: Option<compact<u32>>}>
		paramsLen, err := c.compactU64()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < paramsLen; j++ {
			if _, err := c.str(); err != nil {
				return nil, err
			}
			if _, err := c.optionCompact(); err != nil {
				return nil, err
			}
		}
		def, err := c.readTypeDef()
		if err != nil {
			return nil, err
		}
		def.Path = path
		if err := c.skipStrVec(); err != nil { // docs
			return nil, err
		}
		reg[scale.TypeID(id)] = def
	}
	return reg, nil
}

type extrinsicMetadata struct {
	signedExtensions []string
}

func (c *cursor) readExtrinsicMetadata() (extrinsicMetadata, error) {
	var em extrinsicMetadata
	if _, err := c.compactU64(); err != nil { // ty
		return em, err
	}
	if _, err := c.byte(); err != nil { // version
		return em, err
	}
	n, err := c.compactU64()
	if err != nil {
		return em, err
	}
	extensions := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		identifier, err := c.str()
		if err != nil {
			return em, err
		}
		if _, err := c.compactU64(); err != nil { // ty
			return em, err
		}
		if _, err := c.compactU64(); err != nil { // additional_signed
			return em, err
		}
		extensions = append(extensions, identifier)
	}
	em.signedExtensions = extensions
	return em, nil
}

type palletMetadata struct {
	name       string
	index      uint8
	callsType  *uint64
	eventsType *uint64
}

func (c *cursor) readPalletMetadata() (palletMetadata, error) {
	var p palletMetadata
	name, err := c.str()
	if err != nil {
		return p, err
	}
	p.name = name

	// storage: Option<PalletStorageMetadata{prefix: str, entries: Vec<StorageEntryMetadata>}>
	hasStorage, err := c.byte()
	if err != nil {
		return p, err
	}
	if hasStorage != 0 {
		if _, err := c.str(); err != nil { // prefix
			return p, err
		}
		if err := c.skipStorageEntries(); err != nil {
			return p, err
		}
	}

	// calls: Option<{ty: compact<u32>}>
	hasCalls, err := c.byte()
	if err != nil {
		return p, err
	}
	if hasCalls != 0 {
		ty, err := c.compactU64()
		if err != nil {
			return p, err
		}
		p.callsType = &ty
	}

	// event: Option<{ty: compact<u32>}>
	hasEvent, err := c.byte()
	if err != nil {
		return p, err
	}
	if hasEvent != 0 {
		ty, err := c.compactU64()
		if err != nil {
			return p, err
		}
		p.eventsType = &ty
	}

	// constants: Vec<PalletConstantMetadata{name, ty, value: Vec<u8>, docs}>
	nConsts, err := c.compactU64()
	if err != nil {
		return p, err
	}
	for i := uint64(0); i < nConsts; i++ {
		if _, err := c.str(); err != nil {
			return p, err
		}
		if _, err := c.compactU64(); err != nil { // ty
			return p, err
		}
		valLen, err := c.compactU64()
		if err != nil {
			return p, err
		}
		if _, err := c.bytes(int(valLen)); err != nil {
			return p, err
		}
		if err := c.skipStrVec(); err != nil {
			return p, err
		}
	}

	// errors: Option<{ty: compact<u32>}>
	hasErrors, err := c.byte()
	if err != nil {
		return p, err
	}
	if hasErrors != 0 {
		if _, err := c.compactU64(); err != nil {
			return p, err
		}
	}

	idx, err := c.byte()
	if err != nil {
		return p, err
	}
	p.index = idx
	return p, nil
}

// skipStorageEntries advances past a PalletStorageMetadata's entries
// without decoding them; this indexer resolves storage keys itself
// (internal/scale's Twox128/Blake2_128Concat hashers) rather than through
// the declarative storage metadata.
func (c *cursor) skipStorageEntries() error {
	n, err := c.compactU64()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := c.str(); err != nil { // name
			return err
		}
		if _, err := c.byte(); err != nil { // modifier
			return err
		}
		// StorageEntryType: tag 0 Plain{ty}, 1 Map{hashers, key, value}
		tag, err := c.byte()
		if err != nil {
			return err
		}
		switch tag {
		case 0:
			if _, err := c.compactU64(); err != nil {
				return err
			}
		case 1:
			nHashers, err := c.compactU64()
			if err != nil {
				return err
			}
			for j := uint64(0); j < nHashers; j++ {
				if _, err := c.byte(); err != nil {
					return err
				}
			}
			if _, err := c.compactU64(); err != nil { // key
				return err
			}
			if _, err := c.compactU64(); err != nil { // value
				return err
			}
		default:
			return fmt.Errorf("metadata: unknown storage entry type tag %d", tag)
		}
		defaultLen, err := c.compactU64()
		if err != nil {
			return err
		}
		if _, err := c.bytes(int(defaultLen)); err != nil {
			return err
		}
		if err := c.skipStrVec(); err != nil { // docs
			return err
		}
	}
	return nil
}

// DecodeFrameMetadata parses a raw state_getMetadata payload (including the
// "meta" magic and version prefix) into a Lookup for the given spec
// version. Only V14+ portable-registry metadata is supported.
func DecodeFrameMetadata(raw []byte, specVersion uint32) (*Lookup, error) {
	c := &cursor{data: raw}

	magic, err := c.u32()
	if err != nil {
		return nil, fmt.Errorf("metadata: read magic: %w", err)
	}
	if magic != metaMagic {
		return nil, fmt.Errorf("metadata: bad magic %#x, expected %#x", magic, metaMagic)
	}

	version, err := c.byte()
	if err != nil {
		return nil, fmt.Errorf("metadata: read version: %w", err)
	}
	if version < minSupportedVersion {
		return nil, fmt.Errorf("metadata: unsupported metadata version %d, this decoder requires V%d+", version, minSupportedVersion)
	}

	registry, err := c.readPortableRegistry()
	if err != nil {
		return nil, fmt.Errorf("metadata: read type registry: %w", err)
	}

	nPallets, err := c.compactU64()
	if err != nil {
		return nil, fmt.Errorf("metadata: read pallet count: %w", err)
	}

	pallets := make(map[uint8]PalletInfo, nPallets)
	calls := make(map[uint8]map[uint8]VariantInfo, nPallets)
	events := make(map[uint8]map[uint8]VariantInfo, nPallets)

	for i := uint64(0); i < nPallets; i++ {
		p, err := c.readPalletMetadata()
		if err != nil {
			return nil, fmt.Errorf("metadata: read pallet %d: %w", i, err)
		}
		pallets[p.index] = PalletInfo{Name: p.name}

		if p.callsType != nil {
			variants := variantsOf(registry, scale.TypeID(*p.callsType))
			table := make(map[uint8]VariantInfo, len(variants))
			for _, v := range variants {
				table[v.Index] = VariantInfo{Name: v.Name, Fields: v.Fields}
			}
			calls[p.index] = table
		}
		if p.eventsType != nil {
			variants := variantsOf(registry, scale.TypeID(*p.eventsType))
			table := make(map[uint8]VariantInfo, len(variants))
			for _, v := range variants {
				table[v.Index] = VariantInfo{Name: v.Name, Fields: v.Fields}
			}
			events[p.index] = table
		}
	}

	extrinsicMeta, err := c.readExtrinsicMetadata()
	if err != nil {
		return nil, fmt.Errorf("metadata: read extrinsic metadata: %w", err)
	}

	return &Lookup{
		SpecVersion:         specVersion,
		PalletsByIndex:      pallets,
		CallsByPalletIndex:  calls,
		EventsByPalletIndex: events,
		SignedExtensions:    extrinsicMeta.signedExtensions,
		RawTypes:            registry,
	}, nil
}

// variantsOf returns the variant list of a type registered as DefVariant,
// or nil if the type id is missing or not a variant (defensive: malformed
// metadata should degrade to "no calls/events known" rather than panic).
func variantsOf(reg scale.MapRegistry, id scale.TypeID) []scale.VariantDef {
	def, ok := reg[id]
	if !ok || def.Kind != scale.DefVariant {
		return nil
	}
	return def.Variants
}
