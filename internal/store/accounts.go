package store

import (
	"context"
	"fmt"
)

// AccountBalance is the decoded System.Account snapshot the balance
// refresher writes back after each poll. Frozen/Flags match the modern
// AccountData layout (frozen balance plus a packed extra-flags word).
type AccountBalance struct {
	AccountID string
	Free      string
	Reserved  string
	Frozen    string
	Flags     string
}

// UpsertAccountBalance records the latest known balance for an account,
// following the same upsert-by-primary-key idiom as touchAccount.
func (s *Store) UpsertAccountBalance(ctx context.Context, b AccountBalance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_balances (account_id, free, reserved, frozen, flags, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (account_id) DO UPDATE SET
			free       = EXCLUDED.free,
			reserved   = EXCLUDED.reserved,
			frozen     = EXCLUDED.frozen,
			flags      = EXCLUDED.flags,
			updated_at = now()
	`, b.AccountID, b.Free, b.Reserved, b.Frozen, b.Flags)
	if err != nil {
		return fmt.Errorf("store: upsert account balance %s: %w", b.AccountID, err)
	}
	return nil
}

// ActiveAccounts returns every account touched at or above sinceBlock, the
// working set the balance refresher polls on each tick.
func (s *Store) ActiveAccounts(ctx context.Context, sinceBlock int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT account_id FROM accounts WHERE last_active_block >= $1`, sinceBlock)
	if err != nil {
		return nil, fmt.Errorf("store: query active accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
