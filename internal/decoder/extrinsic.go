// Package decoder turns raw SCALE-encoded extrinsic and event bytes into
// structured records, using a metadata.Lookup resolved per block. Decode
// errors fall back to a sentinel record rather than propagating, so a
// single malformed extrinsic never blocks the ingestion pipeline.
package decoder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// zeroByteExtensions contribute nothing to the extrinsic body; their
// effect is entirely in the (unverified, since this indexer does no
// consensus checking) additional-signed payload.
var zeroByteExtensions = map[string]bool{
	"CheckNonZeroSender": true,
	"CheckSpecVersion":   true,
	"CheckTxVersion":     true,
	"CheckGenesis":       true,
	"CheckWeight":        true,
	"PrevalidateAttests": true,
}

// Extrinsic is one decoded extrinsic, enriched in a later pass with
// success/fee information extracted from the block's events.
type Extrinsic struct {
	Index           int
	Signer          *string
	Signature       *string
	Module          string
	Call            string
	Args            scale.Value
	Nonce           *uint64
	Tip             *string
	Hash            *string
	Success         *bool
	Fee             *string
	TimestampMillis *int64
}

// DecodeExtrinsic decodes one raw extrinsic hex string, falling back to a
// sentinel record on any internal error rather than propagating it.
func DecodeExtrinsic(index int, hexStr string, lookup *metadata.Lookup, logger *zerolog.Logger) Extrinsic {
	ext, err := decodeExtrinsic(index, hexStr, lookup, logger)
	if err != nil {
		logger.Warn().Err(err).Int("index", index).Msg("extrinsic decode failed, using fallback record")
		return fallbackExtrinsic(index, hexStr)
	}
	return ext
}

func fallbackExtrinsic(index int, hexStr string) Extrinsic {
	return Extrinsic{
		Index:   index,
		Module:  "Unknown",
		Call:    "unknown",
		Args:    scale.NewMap([]scale.Field{{Name: "raw", Value: scale.NewHex(hexStr)}}),
		Success: optimisticSuccess(),
	}
}

// optimisticSuccess is the initial value every extrinsic's Success field
// takes at decode time; EnrichExtrinsics downgrades it to false for the
// specific extrinsic index named in a System.ExtrinsicFailed event.
func optimisticSuccess() *bool {
	v := true
	return &v
}

func decodeExtrinsic(index int, hexStr string, lookup *metadata.Lookup, logger *zerolog.Logger) (Extrinsic, error) {
	data, err := scale.HexToBytes(hexStr)
	if err != nil {
		return Extrinsic{}, fmt.Errorf("decode hex: %w", err)
	}

	// step 1: leading compact-u32 byte length is informational only.
	_, offset, err := scale.DecodeCompactUint64(data, 0)
	if err != nil {
		return Extrinsic{}, fmt.Errorf("read length prefix: %w", err)
	}

	if offset >= len(data) {
		return Extrinsic{}, fmt.Errorf("no version byte")
	}
	version := data[offset]
	offset++
	signed := version&0x80 != 0

	ext := Extrinsic{Index: index, Success: optimisticSuccess()}

	if signed {
		signer, signature, next, err := readSignedHeader(data, offset)
		if err != nil {
			return Extrinsic{}, fmt.Errorf("read signed header: %w", err)
		}
		offset = next
		ext.Signer = &signer
		ext.Signature = &signature

		offset, err = readSignedExtensions(data, offset, lookup, &ext, logger)
		if err != nil {
			return Extrinsic{}, fmt.Errorf("read signed extensions: %w", err)
		}
	}

	if offset+2 > len(data) {
		return Extrinsic{}, fmt.Errorf("no pallet/call index bytes")
	}
	palletIndex := data[offset]
	callIndex := data[offset+1]
	offset += 2

	variant, ok := lookup.Call(palletIndex, callIndex)
	if !ok {
		return Extrinsic{}, fmt.Errorf("unknown pallet/call index %d/%d", palletIndex, callIndex)
	}

	fields, _, err := scale.ReadFields(data, offset, variant.Fields, lookup)
	if err != nil {
		return Extrinsic{}, fmt.Errorf("decode call args: %w", err)
	}

	ext.Module = lookup.PalletName(palletIndex)
	ext.Call = variant.Name
	ext.Args = scale.NewMap(fields)

	if ext.Module == "Timestamp" && ext.Call == "set" {
		if now, ok := ext.Args.Get("now"); ok && now.Kind == scale.KindBigInt {
			ms := now.Big.Int64()
			ext.TimestampMillis = &ms
		}
	}

	if signed {
		digest := scale.Blake2_256(data)
		hash := scale.BytesToHex(digest[:])
		ext.Hash = &hash
	}

	return ext, nil
}

// readSignedHeader decodes the MultiAddress signer and MultiSignature,
// returning their hex representations (the signer hex is empty for
// AccountIndex, which carries no recoverable public key).
func readSignedHeader(data []byte, offset int) (signer string, signature string, next int, err error) {
	if offset >= len(data) {
		return "", "", offset, fmt.Errorf("no MultiAddress tag")
	}
	addrTag := data[offset]
	offset++

	switch addrTag {
	case 0x00: // AccountId32
		if offset+32 > len(data) {
			return "", "", offset, fmt.Errorf("MultiAddress AccountId32 overruns buffer")
		}
		signer = scale.BytesToHex(data[offset : offset+32])
		offset += 32
	case 0x01: // AccountIndex
		if offset+4 > len(data) {
			return "", "", offset, fmt.Errorf("MultiAddress AccountIndex overruns buffer")
		}
		offset += 4 // no signer recovered
	case 0x04: // Address20 (EVM)
		if offset+20 > len(data) {
			return "", "", offset, fmt.Errorf("MultiAddress Address20 overruns buffer")
		}
		signer = scale.BytesToHex(data[offset : offset+20])
		offset += 20
	default:
		return "", "", offset, fmt.Errorf("unknown MultiAddress tag %#x", addrTag)
	}

	if offset >= len(data) {
		return "", "", offset, fmt.Errorf("no MultiSignature tag")
	}
	sigTag := data[offset]
	offset++

	var sigLen int
	switch sigTag {
	case 0x00, 0x01: // Ed25519, Sr25519
		sigLen = 64
	case 0x02: // ECDSA
		sigLen = 65
	default:
		return "", "", offset, fmt.Errorf("unknown MultiSignature tag %#x", sigTag)
	}
	if offset+sigLen > len(data) {
		return "", "", offset, fmt.Errorf("MultiSignature overruns buffer")
	}
	signature = scale.BytesToHex(data[offset : offset+sigLen])
	offset += sigLen

	return signer, signature, offset, nil
}

// readSignedExtensions consumes the signed-extension extras in the exact
// order declared by the runtime's signed_extensions list, capturing nonce
// and tip onto ext as they're encountered.
func readSignedExtensions(data []byte, offset int, lookup *metadata.Lookup, ext *Extrinsic, logger *zerolog.Logger) (int, error) {
	for _, identifier := range lookup.SignedExtensions {
		switch {
		case zeroByteExtensions[identifier]:
			// no bytes

		case identifier == "CheckMortality":
			if offset >= len(data) {
				return offset, fmt.Errorf("CheckMortality: no era byte")
			}
			if data[offset] == 0x00 {
				offset++ // immortal
				continue
			}
			if offset+2 > len(data) {
				return offset, fmt.Errorf("CheckMortality: mortal era overruns buffer")
			}
			offset += 2

		case identifier == "CheckNonce":
			nonce, next, err := scale.DecodeCompactUint64(data, offset)
			if err != nil {
				return offset, fmt.Errorf("CheckNonce: %w", err)
			}
			ext.Nonce = &nonce
			offset = next

		case identifier == "ChargeTransactionPayment":
			tip, next, err := scale.DecodeCompact(data, offset)
			if err != nil {
				return offset, fmt.Errorf("ChargeTransactionPayment: %w", err)
			}
			s := tip.String()
			ext.Tip = &s
			offset = next

		case identifier == "ChargeAssetTxPayment":
			tip, next, err := scale.DecodeCompact(data, offset)
			if err != nil {
				return offset, fmt.Errorf("ChargeAssetTxPayment tip: %w", err)
			}
			s := tip.String()
			ext.Tip = &s
			offset = next

			if offset >= len(data) {
				return offset, fmt.Errorf("ChargeAssetTxPayment: no option tag")
			}
			hasAsset := data[offset]
			offset++
			if hasAsset == 0x01 {
				_, next, err := scale.DecodeCompactUint64(data, offset)
				if err != nil {
					return offset, fmt.Errorf("ChargeAssetTxPayment assetId: %w", err)
				}
				offset = next
			}

		case identifier == "CheckMetadataHash":
			if offset >= len(data) {
				return offset, fmt.Errorf("CheckMetadataHash: no mode byte")
			}
			offset++

		default:
			// unknown extensions are assumed zero-byte; this is the one
			// place a runtime upgrade can silently desync offset
			// accounting, so it is always logged.
			logger.Warn().Str("extension", identifier).Msg("unknown signed extension treated as zero-byte")
		}
	}
	return offset, nil
}
