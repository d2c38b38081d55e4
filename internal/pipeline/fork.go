package pipeline

import (
	"context"
	"fmt"

	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// handleForkIfNeeded detects whether the best stream is reporting a hash
// at height that differs from what is already stored there, and if so
// prunes every non-finalized row at or above the branch point before the
// new canonical chain is re-ingested. Finalized rows are never touched —
// a finalized block cannot be un-finalized.
func (p *Pipeline) handleForkIfNeeded(ctx context.Context, height int64, hash string) error {
	existing, err := p.store.BlockAt(ctx, height)
	if err != nil {
		return fmt.Errorf("pipeline: load block at %d: %w", height, err)
	}
	if existing == nil {
		return nil
	}
	if existing.Status == store.StatusFinalized {
		return nil
	}
	if existing.Hash == hash {
		return nil
	}

	p.logger.Warn().
		Int64("height", height).
		Str("old_hash", existing.Hash).
		Str("new_hash", hash).
		Msg("fork detected, pruning best-status rows at and above branch point")

	tx, err := p.store.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: begin fork prune tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := store.PruneAbove(ctx, tx, height); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pipeline: commit fork prune: %w", err)
	}
	return nil
}
