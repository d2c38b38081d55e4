package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AppliedVersion returns the highest migration version recorded for an
// extension, or 0 if none has ever been applied.
func (s *Store) AppliedVersion(ctx context.Context, extensionID string) (int, error) {
	var version int
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM extension_migrations WHERE extension_id = $1
	`, extensionID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: applied version for %s: %w", extensionID, err)
	}
	return version, nil
}

// ApplyMigration runs statement and records extensionID/version atomically,
// so a crash between the DDL and the bookkeeping row never leaves a
// migration half-applied.
func (s *Store) ApplyMigration(ctx context.Context, extensionID string, version int, statement string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin migration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if statement != "" {
		if _, err := tx.Exec(ctx, statement); err != nil {
			return fmt.Errorf("store: apply migration %s v%d: %w", extensionID, version, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO extension_migrations (extension_id, version) VALUES ($1, $2)
		ON CONFLICT (extension_id, version) DO NOTHING
	`, extensionID, version)
	if err != nil {
		return fmt.Errorf("store: record migration %s v%d: %w", extensionID, version, err)
	}

	return tx.Commit(ctx)
}

// Gaps returns heights in [from, to] with no row in blocks, bounded to
// limit results so a corrupt or freshly-seeded range never produces an
// unbounded scan.
func (s *Store) Gaps(ctx context.Context, from, to int64, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.height
		FROM generate_series($1::bigint, $2::bigint) AS g(height)
		LEFT JOIN blocks b ON b.height = g.height
		WHERE b.height IS NULL
		ORDER BY g.height
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query gaps: %w", err)
	}
	defer rows.Close()

	var gaps []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("store: scan gap height: %w", err)
		}
		gaps = append(gaps, h)
	}
	return gaps, rows.Err()
}
