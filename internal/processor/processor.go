// Package processor is the core engine of the indexer: it takes one
// decoded block, commits it to Postgres in a single transaction, dispatches
// it to the plugin registry, and fans it out to external subscribers.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/fanout"
	"github.com/darkfriend77/polka-xplo-sub000/internal/plugins"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

var (
	blocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_blocks_processed_total",
		Help: "Total number of blocks committed, by status",
	}, []string{"status"})

	extrinsicsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_extrinsics_processed_total",
		Help: "Total number of extrinsics committed",
	})

	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_events_processed_total",
		Help: "Total number of events committed",
	})

	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_block_processing_duration_seconds",
		Help:    "Time taken to commit one block",
		Buckets: prometheus.DefBuckets,
	})

	processingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_processing_errors_total",
		Help: "Total number of processing errors, by stage",
	}, []string{"stage"})
)

// RawBlock is everything the pipeline has decoded for one height before
// it reaches the processor.
type RawBlock struct {
	Block      store.Block
	Extrinsics []decoder.Extrinsic
	Events     []decoder.Event
}

// BlockProcessor commits a decoded block and drives the plugin/fanout side
// effects that depend on it.
type BlockProcessor struct {
	logger   zerolog.Logger
	store    *store.Store
	registry *plugins.Registry
	fanout   *fanout.Publisher // nil disables fanout entirely
}

// New wires a BlockProcessor. fanout may be nil; a nil fanout is treated
// as "no external subscribers configured" rather than an error.
func New(logger zerolog.Logger, st *store.Store, registry *plugins.Registry, fanoutPub *fanout.Publisher) *BlockProcessor {
	return &BlockProcessor{
		logger:   logger.With().Str("component", "processor").Logger(),
		store:    st,
		registry: registry,
		fanout:   fanoutPub,
	}
}

// ProcessBlock commits raw within a single transaction, then dispatches to
// plugins and publishes to the fanout stream. A plugin error never aborts
// the commit: the block's own persistence already succeeded by the time
// plugins run.
func (p *BlockProcessor) ProcessBlock(ctx context.Context, raw RawBlock) error {
	start := time.Now()
	defer func() {
		processingDuration.Observe(time.Since(start).Seconds())
	}()

	p.logger.Debug().Int64("height", raw.Block.Height).Msg("processing block")

	if err := p.commit(ctx, raw); err != nil {
		processingErrors.WithLabelValues("commit").Inc()
		return fmt.Errorf("commit block %d: %w", raw.Block.Height, err)
	}

	blocksProcessed.WithLabelValues(string(raw.Block.Status)).Inc()
	extrinsicsProcessed.Add(float64(len(raw.Extrinsics)))
	eventsProcessed.Add(float64(len(raw.Events)))

	if p.registry != nil {
		p.registry.Dispatch(ctx, raw.Block.Height, raw.Extrinsics, raw.Events)
	}

	if p.fanout != nil {
		if err := p.fanout.PublishBlock(ctx, raw.Block.Height, raw.Extrinsics, raw.Events); err != nil {
			// best-effort: a subscriber outage never blocks ingestion
			processingErrors.WithLabelValues("fanout").Inc()
			p.logger.Warn().Err(err).Int64("height", raw.Block.Height).Msg("fanout publish failed")
		}
	}

	p.logger.Info().
		Int64("height", raw.Block.Height).
		Str("status", string(raw.Block.Status)).
		Int("extrinsics", len(raw.Extrinsics)).
		Int("events", len(raw.Events)).
		Msg("block committed")

	return nil
}

func (p *BlockProcessor) commit(ctx context.Context, raw RawBlock) error {
	tx, err := p.store.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := store.UpsertBlock(ctx, tx, raw.Block, len(raw.Extrinsics), len(raw.Events)); err != nil {
		return err
	}
	if err := store.ReplaceExtrinsics(ctx, tx, raw.Block.Height, raw.Extrinsics); err != nil {
		return err
	}
	if err := store.ReplaceEvents(ctx, tx, raw.Block.Height, raw.Events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
