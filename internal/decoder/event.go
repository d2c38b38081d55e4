package decoder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// Phase names the point in block execution an event was recorded at.
type Phase string

const (
	PhaseApplyExtrinsic Phase = "ApplyExtrinsic"
	PhaseFinalization   Phase = "Finalization"
	PhaseInitialization Phase = "Initialization"
)

// Event is one decoded event record.
type Event struct {
	Index          int
	Phase          Phase
	ExtrinsicIndex *uint32 // set only for PhaseApplyExtrinsic
	Module         string
	Name           string
	Args           scale.Value
	Topics         []string
}

// FetchEvents retrieves and decodes the System.Events storage item for a
// block: state_getStorage(twox128("System") ++ twox128("Events"), hash).
func FetchEvents(ctx context.Context, pool *rpcpool.Pool, blockHash string, lookup *metadata.Lookup) ([]Event, error) {
	key := scale.BytesToHex(scale.StoragePrefixKey("System", "Events"))

	raw, err := rpcpool.Call[*string](ctx, pool, "state_getStorage", []any{key, blockHash})
	if err != nil {
		return nil, fmt.Errorf("decoder: state_getStorage(System.Events): %w", err)
	}
	if raw == nil || *raw == "" {
		return nil, nil
	}

	data, err := scale.HexToBytes(*raw)
	if err != nil {
		return nil, fmt.Errorf("decoder: decode events hex: %w", err)
	}

	return DecodeEvents(data, lookup)
}

// DecodeEvents decodes a raw Vec<EventRecord> payload.
func DecodeEvents(data []byte, lookup *metadata.Lookup) ([]Event, error) {
	count, offset, err := scale.DecodeCompactUint64(data, 0)
	if err != nil {
		return nil, fmt.Errorf("read event count: %w", err)
	}

	events := make([]Event, 0, count)
	for i := uint64(0); i < count; i++ {
		ev, next, err := decodeOneEvent(data, offset, lookup)
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", i, err)
		}
		ev.Index = int(i)
		events = append(events, ev)
		offset = next
	}
	return events, nil
}

func decodeOneEvent(data []byte, offset int, lookup *metadata.Lookup) (Event, int, error) {
	if offset >= len(data) {
		return Event{}, offset, fmt.Errorf("no phase tag")
	}
	phaseTag := data[offset]
	offset++

	var ev Event
	switch phaseTag {
	case 0x00:
		if offset+4 > len(data) {
			return Event{}, offset, fmt.Errorf("ApplyExtrinsic phase overruns buffer")
		}
		idx := uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
		ev.Phase = PhaseApplyExtrinsic
		ev.ExtrinsicIndex = &idx
		offset += 4
	case 0x01:
		ev.Phase = PhaseFinalization
	case 0x02:
		ev.Phase = PhaseInitialization
	default:
		return Event{}, offset, fmt.Errorf("unknown phase tag %#x", phaseTag)
	}

	if offset+2 > len(data) {
		return Event{}, offset, fmt.Errorf("no pallet/event index bytes")
	}
	palletIndex := data[offset]
	eventIndex := data[offset+1]
	offset += 2

	variant, ok := lookup.Event(palletIndex, eventIndex)
	if !ok {
		return Event{}, offset, fmt.Errorf("unknown pallet/event index %d/%d", palletIndex, eventIndex)
	}

	fields, next, err := scale.ReadFields(data, offset, variant.Fields, lookup)
	if err != nil {
		return Event{}, offset, fmt.Errorf("decode event args: %w", err)
	}
	offset = next

	ev.Module = lookup.PalletName(palletIndex)
	ev.Name = variant.Name
	ev.Args = scale.NewMap(fields)

	topicCount, next, err := scale.DecodeCompactUint64(data, offset)
	if err != nil {
		return Event{}, offset, fmt.Errorf("read topic count: %w", err)
	}
	offset = next

	topics := make([]string, 0, topicCount)
	for i := uint64(0); i < topicCount; i++ {
		if offset+32 > len(data) {
			return Event{}, offset, fmt.Errorf("topic %d overruns buffer", i)
		}
		topics = append(topics, scale.BytesToHex(data[offset:offset+32]))
		offset += 32
	}
	ev.Topics = topics

	return ev, offset, nil
}

// EnrichExtrinsics cross-references decoded events back onto their
// extrinsics: System.ExtrinsicFailed marks the referenced extrinsic as
// failed, and TransactionPayment.TransactionFeePaid records its actual fee.
func EnrichExtrinsics(extrinsics []Extrinsic, events []Event, logger *zerolog.Logger) {
	for _, ev := range events {
		if ev.Phase != PhaseApplyExtrinsic || ev.ExtrinsicIndex == nil {
			continue
		}
		idx := int(*ev.ExtrinsicIndex)
		if idx < 0 || idx >= len(extrinsics) {
			logger.Warn().Int("extrinsic_index", idx).Msg("enrichment: event references out-of-range extrinsic")
			continue
		}

		switch {
		case ev.Module == "System" && ev.Name == "ExtrinsicFailed":
			success := false
			extrinsics[idx].Success = &success

		case ev.Module == "TransactionPayment" && ev.Name == "TransactionFeePaid":
			if fee, ok := ev.Args.Get("actual_fee"); ok && fee.Kind == scale.KindBigInt {
				s := fee.Big.String()
				extrinsics[idx].Fee = &s
			}
		}
	}
}
