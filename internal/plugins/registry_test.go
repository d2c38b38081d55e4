package plugins

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

type recordingExtension struct {
	manifest     Manifest
	migrations   []Migration
	seenEvents   []string
	seenCalls    []string
	seenHeights  []int64
	eventFailure error
}

func (e *recordingExtension) Manifest() Manifest      { return e.manifest }
func (e *recordingExtension) Migrations() []Migration { return e.migrations }

func (e *recordingExtension) OnEvent(ctx context.Context, height int64, event decoder.Event) error {
	e.seenEvents = append(e.seenEvents, event.Module+"."+event.Name)
	e.seenHeights = append(e.seenHeights, height)
	return e.eventFailure
}

func (e *recordingExtension) OnCall(ctx context.Context, height int64, extrinsic decoder.Extrinsic) error {
	e.seenCalls = append(e.seenCalls, extrinsic.Module+"."+extrinsic.Call)
	return nil
}

// newTestRegistry builds a Registry by hand rather than through
// NewRegistry, since indexing is the only behavior under test here and
// it has no database dependency.
func newTestRegistry(exts ...Extension) *Registry {
	r := &Registry{
		logger:     zerolog.Nop(),
		byEventKey: make(map[string][]Extension),
		byCallKey:  make(map[string][]Extension),
		extensions: exts,
	}
	for _, ext := range exts {
		m := ext.Manifest()
		for _, key := range m.SupportedEvents {
			r.byEventKey[key] = append(r.byEventKey[key], ext)
		}
		for _, key := range m.SupportedCalls {
			r.byCallKey[key] = append(r.byCallKey[key], ext)
		}
	}
	return r
}

func TestDispatchRoutesOnlyToSubscribedExtensions(t *testing.T) {
	transfers := &recordingExtension{manifest: Manifest{
		ID:              "transfers",
		SupportedEvents: []string{"Balances.Transfer"},
		SupportedCalls:  []string{"Balances.transfer_keep_alive"},
	}}
	identity := &recordingExtension{manifest: Manifest{
		ID:              "identity",
		SupportedEvents: []string{"Identity.IdentitySet"},
	}}

	r := newTestRegistry(transfers, identity)

	extrinsics := []decoder.Extrinsic{{Index: 0, Module: "Balances", Call: "transfer_keep_alive"}}
	events := []decoder.Event{{Index: 0, Module: "Balances", Name: "Transfer"}}

	r.Dispatch(context.Background(), 10, extrinsics, events)

	require.Equal(t, []string{"Balances.transfer_keep_alive"}, transfers.seenCalls)
	require.Equal(t, []string{"Balances.Transfer"}, transfers.seenEvents)
	require.Empty(t, identity.seenEvents)
	require.Empty(t, identity.seenCalls)
}

func TestDispatchIsolatesHandlerErrors(t *testing.T) {
	failing := &recordingExtension{
		manifest:     Manifest{ID: "failing", SupportedEvents: []string{"Balances.Transfer"}},
		eventFailure: fmt.Errorf("handler exploded"),
	}
	ok := &recordingExtension{manifest: Manifest{ID: "ok", SupportedEvents: []string{"Balances.Transfer"}}}

	r := newTestRegistry(failing, ok)
	events := []decoder.Event{{Index: 0, Module: "Balances", Name: "Transfer"}}

	require.NotPanics(t, func() {
		r.Dispatch(context.Background(), 1, nil, events)
	})
	require.Len(t, ok.seenEvents, 1)
}

func TestExtensionsListsManifests(t *testing.T) {
	a := &recordingExtension{manifest: Manifest{ID: "a"}}
	b := &recordingExtension{manifest: Manifest{ID: "b"}}
	r := newTestRegistry(a, b)

	manifests := r.Extensions()
	require.Len(t, manifests, 2)
	require.Equal(t, "a", manifests[0].ID)
	require.Equal(t, "b", manifests[1].ID)
}

// TestApplyMigrationsReplaysHistoryOnFirstApply exercises the registry's
// backfill responsibility end to end against a real store: an extension
// seeing its first migration must be replayed against every matching
// event already on disk, in height order, and must not be replayed again
// on a subsequent run once its migration is recorded as applied.
func TestApplyMigrationsReplaysHistoryOnFirstApply(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping plugin backfill integration test")
	}

	logger := zerolog.Nop()
	st, err := store.New(context.Background(), dsn, &logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(st.Close)

	ctx := context.Background()
	tx, err := st.Pool().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpsertBlock(ctx, tx, store.Block{Height: 1, Hash: "0xb1", ParentHash: "0xb0", SpecVersion: 1, Status: store.StatusFinalized}, 0, 1))
	require.NoError(t, store.ReplaceEvents(ctx, tx, 1, []decoder.Event{{Index: 0, Module: "Identity", Name: "IdentitySet"}}))
	require.NoError(t, store.UpsertBlock(ctx, tx, store.Block{Height: 2, Hash: "0xb2", ParentHash: "0xb1", SpecVersion: 1, Status: store.StatusFinalized}, 0, 1))
	require.NoError(t, store.ReplaceEvents(ctx, tx, 2, []decoder.Event{{Index: 0, Module: "Identity", Name: "IdentitySet"}}))
	require.NoError(t, tx.Commit(ctx))

	ext := &recordingExtension{
		manifest: Manifest{
			ID:              "identity-backfill-test",
			SupportedEvents: []string{"Identity.IdentitySet"},
		},
		migrations: []Migration{{Version: 1, Statement: ""}},
	}

	r := &Registry{logger: logger, store: st, byEventKey: map[string][]Extension{}, byCallKey: map[string][]Extension{}}
	require.NoError(t, r.applyMigrations(ctx, ext))

	require.Equal(t, []int64{1, 2}, ext.seenHeights)
	require.Equal(t, []string{"Identity.IdentitySet", "Identity.IdentitySet"}, ext.seenEvents)

	ext.seenHeights = nil
	ext.seenEvents = nil
	require.NoError(t, r.applyMigrations(ctx, ext))
	require.Empty(t, ext.seenHeights, "a migration already recorded as applied must not trigger another replay")
}
