package plugins

import (
	"context"
	"encoding/json"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// balancesLedgerExtension is a built-in extension recording Balances
// transfers and endowments into a dedicated ledger table, demonstrating
// the migration and dispatch path every extension follows.
type balancesLedgerExtension struct {
	store *store.Store
}

func (e *balancesLedgerExtension) SetStore(st *store.Store) { e.store = st }

func (e *balancesLedgerExtension) Manifest() Manifest {
	return Manifest{
		ID:              "balances-ledger",
		Version:         1,
		PalletID:        "Balances",
		SupportedEvents: []string{"Balances.Transfer", "Balances.Endowed"},
		SupportedCalls:  []string{"Balances.transfer", "Balances.transfer_keep_alive"},
	}
}

func (e *balancesLedgerExtension) Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Statement: `CREATE TABLE IF NOT EXISTS balances_ledger (
				id            BIGSERIAL PRIMARY KEY,
				block_height  BIGINT NOT NULL,
				kind          TEXT NOT NULL,
				payload       JSONB NOT NULL
			)`,
		},
	}
}

func (e *balancesLedgerExtension) OnEvent(ctx context.Context, height int64, event decoder.Event) error {
	payload, err := json.Marshal(event.Args)
	if err != nil {
		return err
	}
	_, err = e.store.Pool().Exec(ctx, `
		INSERT INTO balances_ledger (block_height, kind, payload) VALUES ($1, $2, $3)
	`, height, event.Name, payload)
	return err
}

func (e *balancesLedgerExtension) OnCall(ctx context.Context, height int64, extrinsic decoder.Extrinsic) error {
	payload, err := json.Marshal(extrinsic.Args)
	if err != nil {
		return err
	}
	_, err = e.store.Pool().Exec(ctx, `
		INSERT INTO balances_ledger (block_height, kind, payload) VALUES ($1, $2, $3)
	`, height, extrinsic.Call, payload)
	return err
}

func init() {
	Register(&balancesLedgerExtension{})
}
