// Package metadata resolves runtime metadata for a given block hash into a
// Lookup usable by internal/decoder and internal/scale's type-registry
// traversal, using a two-level bounded-LRU-plus-singleflight caching
// strategy.
package metadata

import "github.com/darkfriend77/polka-xplo-sub000/internal/scale"

// VariantInfo names one call or event variant: its declared name and
// ordered field list, as found under a pallet's call/event enum.
type VariantInfo struct {
	Name   string
	Fields []scale.FieldDef
}

// PalletInfo holds one pallet's declared name, used to resolve
// pallet_index -> name during decode-error diagnostics.
type PalletInfo struct {
	Name string
}

// Lookup holds everything the decoder needs for one spec_version: pallet
// names, call/event variant tables keyed by (pallet_index, item_index), the
// signed-extension order, and the full portable type registry.
type Lookup struct {
	SpecVersion         uint32
	PalletsByIndex      map[uint8]PalletInfo
	CallsByPalletIndex  map[uint8]map[uint8]VariantInfo
	EventsByPalletIndex map[uint8]map[uint8]VariantInfo
	SignedExtensions    []string
	RawTypes            scale.MapRegistry
}

// TypeDef implements scale.Registry, so a Lookup can be passed directly to
// scale.Read/scale.Skip.
func (l *Lookup) TypeDef(id scale.TypeID) (scale.TypeDef, bool) {
	return l.RawTypes.TypeDef(id)
}

// Call returns the variant info for a pallet/call index pair.
func (l *Lookup) Call(palletIndex, callIndex uint8) (VariantInfo, bool) {
	pallet, ok := l.CallsByPalletIndex[palletIndex]
	if !ok {
		return VariantInfo{}, false
	}
	v, ok := pallet[callIndex]
	return v, ok
}

// Event returns the variant info for a pallet/event index pair.
func (l *Lookup) Event(palletIndex, eventIndex uint8) (VariantInfo, bool) {
	pallet, ok := l.EventsByPalletIndex[palletIndex]
	if !ok {
		return VariantInfo{}, false
	}
	v, ok := pallet[eventIndex]
	return v, ok
}

// PalletName returns the pallet's declared name, or "Unknown" if the index
// is not present in this spec version's metadata.
func (l *Lookup) PalletName(index uint8) string {
	if p, ok := l.PalletsByIndex[index]; ok {
		return p.Name
	}
	return "Unknown"
}
