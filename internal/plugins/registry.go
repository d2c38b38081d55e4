// Package plugins implements the extension registry: pallet-scoped
// handlers that react to decoded calls and events, indexed by
// "Module.Name" the way a log-handler router indexes by event signature.
package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// Manifest describes one extension's identity and the calls/events it
// wants dispatched to it. Extensions register a Manifest at compile time;
// Go has no portable dynamic-library loading, so plugin loading resolves
// to this static registration pattern instead.
type Manifest struct {
	ID              string
	Version         int
	PalletID        string
	SupportedEvents []string // "Module.EventName"
	SupportedCalls  []string // "Module.CallName"
}

// Migration is one schema change an extension owns, applied exactly once
// and tracked in the store's extension_migrations table.
type Migration struct {
	Version   int
	Statement string
}

// Extension is the interface every plugin implements.
type Extension interface {
	Manifest() Manifest
	Migrations() []Migration
	OnEvent(ctx context.Context, height int64, event decoder.Event) error
	OnCall(ctx context.Context, height int64, extrinsic decoder.Extrinsic) error
}

// StoreAware is implemented by extensions that need the shared store
// handle to persist their own tables; NewRegistry injects it before the
// first dispatch.
type StoreAware interface {
	SetStore(st *store.Store)
}

var registered []Extension

// Register adds an extension to the compile-time registry. Extensions
// call this from their own init(), so registration is resolved at
// package-init time rather than at registry-construction time.
func Register(ext Extension) {
	registered = append(registered, ext)
}

// Registry dispatches decoded extrinsics and events to every extension
// that declared support for them.
type Registry struct {
	logger     zerolog.Logger
	store      *store.Store
	byEventKey map[string][]Extension
	byCallKey  map[string][]Extension
	extensions []Extension
	mu         sync.RWMutex
	dispatched int64
}

// NewRegistry builds a Registry from every compile-time registered
// extension, applying any pending migrations before returning.
func NewRegistry(ctx context.Context, st *store.Store, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		logger:     logger.With().Str("component", "plugins").Logger(),
		store:      st,
		byEventKey: make(map[string][]Extension),
		byCallKey:  make(map[string][]Extension),
		extensions: registered,
	}

	for _, ext := range r.extensions {
		if aware, ok := ext.(StoreAware); ok {
			aware.SetStore(st)
		}

		m := ext.Manifest()
		for _, key := range m.SupportedEvents {
			r.byEventKey[key] = append(r.byEventKey[key], ext)
		}
		for _, key := range m.SupportedCalls {
			r.byCallKey[key] = append(r.byCallKey[key], ext)
		}
		if err := r.applyMigrations(ctx, ext); err != nil {
			return nil, fmt.Errorf("plugins: migrate %s: %w", m.ID, err)
		}
	}

	r.logger.Info().Int("extensions", len(r.extensions)).Msg("plugin registry initialized")
	return r, nil
}

// applyMigrations runs every pending migration for ext in order. If no
// migration had ever previously applied (current == 0) and at least one
// applies now, the extension is new to the registry and its supported
// events are replayed from history once migrations finish, per the
// registry's backfill responsibility.
func (r *Registry) applyMigrations(ctx context.Context, ext Extension) error {
	m := ext.Manifest()
	current, err := r.store.AppliedVersion(ctx, m.ID)
	if err != nil {
		return err
	}

	applied := false
	for _, mig := range ext.Migrations() {
		if mig.Version <= current {
			continue
		}
		if err := r.store.ApplyMigration(ctx, m.ID, mig.Version, mig.Statement); err != nil {
			return fmt.Errorf("apply version %d: %w", mig.Version, err)
		}
		applied = true
		r.logger.Info().Str("extension", m.ID).Int("version", mig.Version).Msg("extension migration applied")
	}

	if current == 0 && applied {
		if err := r.Replay(ctx, ext); err != nil {
			return fmt.Errorf("replay %s: %w", m.ID, err)
		}
	}
	return nil
}

// Dispatch routes every event and extrinsic in a block to its interested
// extensions. A single handler's error is logged and isolated; it never
// aborts dispatch to the remaining handlers or the remaining items.
func (r *Registry) Dispatch(ctx context.Context, height int64, extrinsics []decoder.Extrinsic, events []decoder.Event) {
	r.mu.Lock()
	r.dispatched++
	r.mu.Unlock()

	for _, ext := range extrinsics {
		key := ext.Module + "." + ext.Call
		for _, handler := range r.byCallKey[key] {
			if err := handler.OnCall(ctx, height, ext); err != nil {
				r.logger.Error().
					Err(err).
					Str("extension", handler.Manifest().ID).
					Str("call", key).
					Int64("height", height).
					Msg("extension call handler failed")
			}
		}
	}

	for _, ev := range events {
		key := ev.Module + "." + ev.Name
		for _, handler := range r.byEventKey[key] {
			if err := handler.OnEvent(ctx, height, ev); err != nil {
				r.logger.Error().
					Err(err).
					Str("extension", handler.Manifest().ID).
					Str("event", key).
					Int64("height", height).
					Msg("extension event handler failed")
			}
		}
	}
}

// Replay streams every stored event matching ext's manifest through its
// OnEvent handler, in (block_height, index) order, so an extension first
// registered against already-ingested history starts from a consistent
// view instead of only seeing blocks processed after it joined the
// registry. A single event's error is logged and isolated; it never
// aborts the remaining replay.
func (r *Registry) Replay(ctx context.Context, ext Extension) error {
	m := ext.Manifest()
	if len(m.SupportedEvents) == 0 {
		return nil
	}

	historical, err := r.store.EventsForKeys(ctx, m.SupportedEvents)
	if err != nil {
		return fmt.Errorf("load replay events: %w", err)
	}

	r.logger.Info().Str("extension", m.ID).Int("events", len(historical)).Msg("replaying historical events for newly migrated extension")

	for _, h := range historical {
		if err := ext.OnEvent(ctx, h.Height, h.Event); err != nil {
			r.logger.Error().
				Err(err).
				Str("extension", m.ID).
				Str("event", h.Event.Module+"."+h.Event.Name).
				Int64("height", h.Height).
				Msg("extension replay event handler failed")
		}
	}
	return nil
}

// Extensions returns the registered extensions, for diagnostics endpoints.
func (r *Registry) Extensions() []Manifest {
	manifests := make([]Manifest, 0, len(r.extensions))
	for _, ext := range r.extensions {
		manifests = append(manifests, ext.Manifest())
	}
	return manifests
}
