package scale

import "fmt"

// maxDepth bounds recursive descent into a type registry. Real runtime
// metadata never nests this deep; a cycle or corrupt registry hits this
// bound instead of recursing forever.
const maxDepth = 16

// Skip advances past one encoded value of the given type without building a
// Value tree, returning the offset of the first unconsumed byte. It shares
// the same traversal rules as Read and is used where only extrinsic/event
// boundaries matter, not their contents (e.g. locating the Nth extrinsic).
func Skip(data []byte, offset int, id TypeID, reg Registry) (int, error) {
	newOffset, _, err := read(data, offset, id, reg, 0, false)
	return newOffset, err
}

// Read decodes one value of the given type starting at offset, returning
// the decoded Value tree and the offset of the first unconsumed byte.
func Read(data []byte, offset int, id TypeID, reg Registry) (Value, int, error) {
	newOffset, val, err := read(data, offset, id, reg, 0, true)
	return val, newOffset, err
}

func read(data []byte, offset int, id TypeID, reg Registry, depth int, build bool) (int, Value, error) {
	if depth > maxDepth {
		// past the recursion bound: fall back to a raw hex capture of
		// whatever remains so callers still get a usable, if opaque, value.
		v := Value{}
		if build {
			v = NewHex(BytesToHex(data[offset:]))
		}
		return len(data), v, nil
	}

	def, ok := reg.TypeDef(id)
	if !ok {
		return offset, Value{}, fmt.Errorf("scale: unknown type id %d", id)
	}

	switch def.Kind {
	case DefPrimitive:
		return readPrimitive(data, offset, def.Primitive, build)

	case DefCompact:
		v, next, err := DecodeCompact(data, offset)
		if err != nil {
			return offset, Value{}, err
		}
		if !build {
			return next, Value{}, nil
		}
		return next, NewBigInt(v), nil

	case DefSequence:
		length, next, err := DecodeCompactUint64(data, offset)
		if err != nil {
			return offset, Value{}, err
		}
		return readElements(data, next, def.Sequence, reg, int(length), depth, build)

	case DefArray:
		if elemIsByte(def.ArrayElem, reg) {
			end := offset + def.ArrayLen
			if end > len(data) {
				return offset, Value{}, fmt.Errorf("scale: array of %d bytes overruns buffer at offset %d", def.ArrayLen, offset)
			}
			v := Value{}
			if build {
				v = NewHex(BytesToHex(data[offset:end]))
			}
			return end, v, nil
		}
		return readElements(data, offset, def.ArrayElem, reg, def.ArrayLen, depth, build)

	case DefTuple:
		items := make([]Value, 0, len(def.Tuple))
		cur := offset
		for _, elemID := range def.Tuple {
			next, v, err := read(data, cur, elemID, reg, depth+1, build)
			if err != nil {
				return offset, Value{}, err
			}
			cur = next
			if build {
				items = append(items, v)
			}
		}
		if !build {
			return cur, Value{}, nil
		}
		return cur, NewList(items), nil

	case DefComposite:
		fields, next, err := readFields(data, offset, def.Fields, reg, depth, build)
		if err != nil {
			return offset, Value{}, err
		}
		if !build {
			return next, Value{}, nil
		}
		// a composite with exactly one field unwraps to that field's value,
		// matching how newtype wrappers (e.g. `struct Foo(u32)`) read on
		// the wire in every SCALE-aware client.
		if len(fields) == 1 {
			return next, fields[0].Value, nil
		}
		return next, NewMap(fields), nil

	case DefVariant:
		if offset >= len(data) {
			return offset, Value{}, fmt.Errorf("scale: variant tag out of range at offset %d", offset)
		}
		tag := data[offset]
		cur := offset + 1
		for _, variant := range def.Variants {
			if variant.Index != tag {
				continue
			}
			fields, next, err := readFields(data, cur, variant.Fields, reg, depth, build)
			if err != nil {
				return offset, Value{}, err
			}
			if !build {
				return next, Value{}, nil
			}
			// a single unnamed field unwraps directly, e.g.
			// `Event::Transfer(TransferEvent)` reads as {"Transfer": {...}}
			// rather than {"Transfer": {"0": {...}}}.
			if len(variant.Fields) == 1 && variant.Fields[0].Name == nil {
				return next, NewVariant(variant.Name, fields[0].Value), nil
			}
			if len(variant.Fields) == 0 {
				return next, NewVariant(variant.Name, NewMap(nil)), nil
			}
			return next, NewVariant(variant.Name, NewMap(fields)), nil
		}
		return offset, Value{}, fmt.Errorf("scale: unknown variant tag %d for type id %d", tag, id)

	case DefBitSequence:
		// encoded as a compact bit-count followed by the packed bits; not
		// interpreted further, just captured as hex.
		bitLen, next, err := DecodeCompactUint64(data, offset)
		if err != nil {
			return offset, Value{}, err
		}
		byteLen := int((bitLen + 7) / 8)
		end := next + byteLen
		if end > len(data) {
			return offset, Value{}, fmt.Errorf("scale: bit sequence of %d bits overruns buffer at offset %d", bitLen, next)
		}
		v := Value{}
		if build {
			v = NewHex(BytesToHex(data[next:end]))
		}
		return end, v, nil

	default:
		return offset, Value{}, fmt.Errorf("scale: unhandled type def kind %d for type id %d", def.Kind, id)
	}
}

// ReadFields decodes an ordered list of fields (e.g. a call or event
// variant's argument list) against a registry, starting at depth 0. Used
// by internal/decoder to decode extrinsic/event arguments, which are
// supplied as a field list from metadata rather than a single type id.
func ReadFields(data []byte, offset int, fields []FieldDef, reg Registry) ([]Field, int, error) {
	return readFields(data, offset, fields, reg, 0, true)
}

func readFields(data []byte, offset int, defs []FieldDef, reg Registry, depth int, build bool) ([]Field, int, error) {
	fields := make([]Field, 0, len(defs))
	cur := offset
	for i, fd := range defs {
		next, v, err := read(data, cur, fd.Type, reg, depth+1, build)
		if err != nil {
			return nil, offset, err
		}
		cur = next
		if build {
			name := fmt.Sprintf("%d", i)
			if fd.Name != nil {
				name = *fd.Name
			}
			fields = append(fields, Field{Name: name, Value: v})
		}
	}
	return fields, cur, nil
}

func readElements(data []byte, offset int, elemID TypeID, reg Registry, count int, depth int, build bool) (int, Value, error) {
	if elemIsByte(elemID, reg) {
		end := offset + count
		if end > len(data) {
			return offset, Value{}, fmt.Errorf("scale: byte sequence of %d overruns buffer at offset %d", count, offset)
		}
		v := Value{}
		if build {
			v = NewHex(BytesToHex(data[offset:end]))
		}
		return end, v, nil
	}

	items := make([]Value, 0, count)
	cur := offset
	for i := 0; i < count; i++ {
		next, v, err := read(data, cur, elemID, reg, depth+1, build)
		if err != nil {
			return offset, Value{}, err
		}
		cur = next
		if build {
			items = append(items, v)
		}
	}
	if !build {
		return cur, Value{}, nil
	}
	return cur, NewList(items), nil
}

// elemIsByte reports whether a sequence/array's element type is the u8
// primitive, in which case Vec<u8> / [u8; N] fast-paths to a single hex
// string instead of a list of N single-byte integers.
func elemIsByte(elemID TypeID, reg Registry) bool {
	def, ok := reg.TypeDef(elemID)
	return ok && def.Kind == DefPrimitive && def.Primitive == PrimU8
}

func readPrimitive(data []byte, offset int, kind PrimitiveKind, build bool) (int, Value, error) {
	if kind == PrimBool {
		if offset >= len(data) {
			return offset, Value{}, fmt.Errorf("scale: bool out of range at offset %d", offset)
		}
		v := Value{}
		if build {
			v = NewBool(data[offset] != 0)
		}
		return offset + 1, v, nil
	}

	if kind == PrimStr {
		length, next, err := DecodeCompactUint64(data, offset)
		if err != nil {
			return offset, Value{}, err
		}
		end := next + int(length)
		if end > len(data) {
			return offset, Value{}, fmt.Errorf("scale: string of %d bytes overruns buffer at offset %d", length, next)
		}
		v := Value{}
		if build {
			v = NewString(string(data[next:end]))
		}
		return end, v, nil
	}

	width, ok := primitiveWidths[kind]
	if !ok {
		return offset, Value{}, fmt.Errorf("scale: unknown primitive kind %q", kind)
	}
	end := offset + width
	if end > len(data) {
		return offset, Value{}, fmt.Errorf("scale: primitive %q overruns buffer at offset %d", kind, offset)
	}

	if !build {
		return end, Value{}, nil
	}

	raw := data[offset:end] // little-endian

	switch kind {
	case PrimChar:
		// decoded as a little-endian u32 code point, rendered as a
		// one-rune string.
		var cp uint32
		for i := width - 1; i >= 0; i-- {
			cp = cp<<8 | uint32(raw[i])
		}
		return end, NewString(string(rune(cp))), nil
	case PrimU8, PrimU16, PrimU32, PrimU64:
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = v<<8 | uint64(raw[i])
		}
		return end, NewInt(int64(v)), nil
	case PrimI8, PrimI16, PrimI32, PrimI64:
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = v<<8 | uint64(raw[i])
		}
		signed := signExtend(v, width)
		return end, NewInt(signed), nil
	default:
		// u128/u256/i128/i256: little-endian bytes reversed into a big.Int.
		be := make([]byte, width)
		for i := 0; i < width; i++ {
			be[width-1-i] = raw[i]
		}
		bi := bigIntFromBytes(be, kind)
		return end, NewBigInt(bi), nil
	}
}
