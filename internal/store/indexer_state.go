package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// IndexerState is the pipeline's persisted progress, read at startup to
// resume synchronization and written after each backfill batch and each
// finalized block the live stream commits.
type IndexerState struct {
	LastFinalized int64
	LastBest      int64
}

// LoadState returns the zero-value state when no row exists yet (first
// run against a fresh database).
func (s *Store) LoadState(ctx context.Context) (IndexerState, error) {
	var st IndexerState
	row := s.pool.QueryRow(ctx, `SELECT last_finalized, last_best FROM indexer_state WHERE id = true`)
	if err := row.Scan(&st.LastFinalized, &st.LastBest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IndexerState{}, nil
		}
		return IndexerState{}, err
	}
	return st, nil
}

// SaveState upserts the singleton progress row. Progress is monotonic:
// each column keeps the greater of its stored and passed value, so a
// lower height never moves the row backward.
func (s *Store) SaveState(ctx context.Context, st IndexerState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (id, last_finalized, last_best, updated_at)
		VALUES (true, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			last_finalized = GREATEST(indexer_state.last_finalized, EXCLUDED.last_finalized),
			last_best      = GREATEST(indexer_state.last_best, EXCLUDED.last_best),
			updated_at     = now()
	`, st.LastFinalized, st.LastBest)
	return err
}
