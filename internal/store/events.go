package store

import (
	"context"
	"fmt"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// HistoricalEvent pairs a decoded event with the height it was recorded
// at, the unit EventsForKeys streams back for extension backfill.
type HistoricalEvent struct {
	Height int64
	Event  decoder.Event
}

// EventsForKeys streams every stored event whose "Module.Name" key is in
// keys, ordered by (block_height, index) — the same order a live
// extension would have observed them in. Used to replay history into an
// extension the moment its first migration applies.
func (s *Store) EventsForKeys(ctx context.Context, keys []string) ([]HistoricalEvent, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT block_height, index, extrinsic_index, phase, module, name, args, topics
		FROM events
		WHERE (module || '.' || name) = ANY($1)
		ORDER BY block_height, index
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("store: query events for replay: %w", err)
	}
	defer rows.Close()

	var out []HistoricalEvent
	for rows.Next() {
		var (
			height int64
			idx    int
			extIdx *int32
			phase  string
			module string
			name   string
			args   []byte
			topics []string
		)
		if err := rows.Scan(&height, &idx, &extIdx, &phase, &module, &name, &args, &topics); err != nil {
			return nil, fmt.Errorf("store: scan replay event: %w", err)
		}

		var extrinsicIndex *uint32
		if extIdx != nil {
			v := uint32(*extIdx)
			extrinsicIndex = &v
		}

		out = append(out, HistoricalEvent{
			Height: height,
			Event: decoder.Event{
				Index:          idx,
				Phase:          decoder.Phase(phase),
				ExtrinsicIndex: extrinsicIndex,
				Module:         module,
				Name:           name,
				Args:           scale.NewRaw(args),
				Topics:         topics,
			},
		})
	}
	return out, rows.Err()
}
