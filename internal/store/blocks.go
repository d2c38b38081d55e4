package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
)

// BlockStatus mirrors the finalized/best distinction the pipeline tracks
// per block; stored as text so ad-hoc SQL dashboards read it directly.
type BlockStatus string

const (
	StatusBest      BlockStatus = "best"
	StatusFinalized BlockStatus = "finalized"
)

// Block is the header data the processor commits alongside its extrinsics
// and events.
type Block struct {
	Height          int64
	Hash            string
	ParentHash      string
	StateRoot       string
	ExtrinsicsRoot  string
	SpecVersion     uint32
	ValidatorID     *string
	TimestampMillis *int64
	Status          BlockStatus
}

// UpsertBlock writes the block row within tx, using an
// INSERT ... ON CONFLICT DO UPDATE idiom (a block first seen as "best" is
// later re-written "finalized" at the same height; each height keeps
// exactly one row).
func UpsertBlock(ctx context.Context, tx pgx.Tx, b Block, extrinsicCount, eventCount int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO blocks (height, hash, parent_hash, state_root, extrinsics_root,
			spec_version, validator_id, timestamp_ms, status, extrinsic_count, event_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (height) DO UPDATE SET
			hash             = EXCLUDED.hash,
			parent_hash      = EXCLUDED.parent_hash,
			state_root       = EXCLUDED.state_root,
			extrinsics_root  = EXCLUDED.extrinsics_root,
			status           = CASE WHEN blocks.status = 'finalized' THEN blocks.status ELSE EXCLUDED.status END,
			extrinsic_count  = EXCLUDED.extrinsic_count,
			event_count      = EXCLUDED.event_count
	`, b.Height, b.Hash, b.ParentHash, b.StateRoot, b.ExtrinsicsRoot,
		b.SpecVersion, b.ValidatorID, b.TimestampMillis, string(b.Status), extrinsicCount, eventCount)
	if err != nil {
		return fmt.Errorf("store: upsert block %d: %w", b.Height, err)
	}
	return nil
}

// ReplaceExtrinsics deletes any prior rows for height (a reorg or a
// best-to-finalized rewrite can change extrinsic content) and inserts the
// decoded set, advancing each signer's last_active_block.
func ReplaceExtrinsics(ctx context.Context, tx pgx.Tx, height int64, extrinsics []decoder.Extrinsic) error {
	if _, err := tx.Exec(ctx, `DELETE FROM extrinsics WHERE block_height = $1`, height); err != nil {
		return fmt.Errorf("store: clear extrinsics at %d: %w", height, err)
	}

	for _, ext := range extrinsics {
		args, err := json.Marshal(ext.Args)
		if err != nil {
			return fmt.Errorf("store: marshal extrinsic args: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO extrinsics (block_height, index, hash, signer, module, call, args, nonce, tip, success, fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, height, ext.Index, ext.Hash, ext.Signer, ext.Module, ext.Call, args, ext.Nonce, ext.Tip, ext.Success, ext.Fee)
		if err != nil {
			return fmt.Errorf("store: insert extrinsic %d/%d: %w", height, ext.Index, err)
		}

		if ext.Signer != nil {
			if err := touchAccount(ctx, tx, *ext.Signer, height); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceEvents mirrors ReplaceExtrinsics for the event set.
func ReplaceEvents(ctx context.Context, tx pgx.Tx, height int64, events []decoder.Event) error {
	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE block_height = $1`, height); err != nil {
		return fmt.Errorf("store: clear events at %d: %w", height, err)
	}

	for _, ev := range events {
		args, err := json.Marshal(ev.Args)
		if err != nil {
			return fmt.Errorf("store: marshal event args: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO events (block_height, index, extrinsic_index, phase, module, name, args, topics)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (block_height, index) DO NOTHING
		`, height, ev.Index, ev.ExtrinsicIndex, string(ev.Phase), ev.Module, ev.Name, args, ev.Topics)
		if err != nil {
			return fmt.Errorf("store: insert event %d/%d: %w", height, ev.Index, err)
		}
	}
	return nil
}

// touchAccount records first/last activity for a signer, following the
// teacher's storeTokenRegistered shape of a single upsert statement.
func touchAccount(ctx context.Context, tx pgx.Tx, accountID string, height int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (account_id, first_seen_block, last_active_block)
		VALUES ($1, $2, $2)
		ON CONFLICT (account_id) DO UPDATE SET
			last_active_block = GREATEST(accounts.last_active_block, EXCLUDED.last_active_block)
	`, accountID, height)
	if err != nil {
		return fmt.Errorf("store: touch account %s: %w", accountID, err)
	}
	return nil
}

// BlockAt loads the stored hash/status for height, or nil if no row
// exists yet. Used by the live pipeline to detect forks before
// re-ingesting a best-stream notification.
func (s *Store) BlockAt(ctx context.Context, height int64) (*Block, error) {
	var b Block
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT height, hash, parent_hash, status FROM blocks WHERE height = $1
	`, height).Scan(&b.Height, &b.Hash, &b.ParentHash, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load block at %d: %w", height, err)
	}
	b.Status = BlockStatus(status)
	return &b, nil
}

// PruneAbove deletes non-finalized blocks at or above height (finalized
// rows are kept), used when the live
// pipeline detects a fork and must roll back to a common ancestor before
// re-ingesting the new canonical chain.
func PruneAbove(ctx context.Context, tx pgx.Tx, height int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM blocks WHERE height >= $1 AND status <> 'finalized'`, height); err != nil {
		return fmt.Errorf("store: prune above %d: %w", height, err)
	}
	return nil
}
