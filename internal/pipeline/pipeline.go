// Package pipeline is the ingestion coordinator: backfill, gap repair, and
// the live dual-stream (finalized + best) subscription, built around the
// teacher's syncer backfill/realtime mode split.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/processor"
	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// State is one of the pipeline's lifecycle states.
type State string

const (
	StateInitializing State = "initializing"
	StateSyncing      State = "syncing"
	StateLive         State = "live"
	StatePaused       State = "paused"
)

var (
	pipelineHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_pipeline_height",
		Help: "Last height committed by the pipeline",
	})

	chainTipGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_chain_tip_height",
		Help: "Latest finalized height observed on chain",
	})

	blocksBehindGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_blocks_behind",
		Help: "Number of blocks behind the chain's finalized tip",
	})

	pipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_pipeline_errors_total",
		Help: "Total number of pipeline errors, by stage",
	}, []string{"error_type"})

	gapsRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_gaps_repaired_total",
		Help: "Total number of missing heights successfully repaired",
	})

	gapsPersistent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_gaps_persistent_total",
		Help: "Total number of missing heights that could not be repaired",
	})
)

// Config configures batch sizes, concurrency, and retry budgets.
type Config struct {
	BatchSize            int64         // BATCH_SIZE, default 100
	BackfillConcurrency  int           // BACKFILL_CONCURRENCY, default 10
	GapRepairLimit       int           // default 500
	GapRepairConcurrency int           // default 5
	FetchRetryAttempts   int           // default 3
	ReconnectMinBackoff  time.Duration // default 1s
	ReconnectMaxBackoff  time.Duration // default 60s
}

// DefaultConfig returns the documented default tuning values.
func DefaultConfig() Config {
	return Config{
		BatchSize:            100,
		BackfillConcurrency:  10,
		GapRepairLimit:       500,
		GapRepairConcurrency: 5,
		FetchRetryAttempts:   3,
		ReconnectMinBackoff:  1 * time.Second,
		ReconnectMaxBackoff:  60 * time.Second,
	}
}

// Pipeline drives the full ingestion lifecycle against one chain.
type Pipeline struct {
	logger    zerolog.Logger
	pool      *rpcpool.Pool
	cache     *metadata.Cache
	store     *store.Store
	processor *processor.BlockProcessor
	cfg       Config

	finalizedWS string // WS endpoint for the finalized-block chainHead follower
	bestWS      string // WS endpoint for the best-block chainHead follower

	mu    sync.RWMutex
	state State
}

// New wires a Pipeline. finalizedWS/bestWS may point at the same endpoint;
// they are dialed independently so each stream's reconnect loop stays
// isolated from the other's.
func New(logger zerolog.Logger, pool *rpcpool.Pool, cache *metadata.Cache, st *store.Store, proc *processor.BlockProcessor, finalizedWS, bestWS string, cfg Config) *Pipeline {
	return &Pipeline{
		logger:      logger.With().Str("component", "pipeline").Logger(),
		pool:        pool,
		cache:       cache,
		store:       st,
		processor:   proc,
		cfg:         cfg,
		finalizedWS: finalizedWS,
		bestWS:      bestWS,
		state:       StateInitializing,
	}
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.logger.Info().Str("state", string(s)).Msg("pipeline state transition")
}

// Pause sets the reported state to paused; Resume sets it back to syncing.
// Both only change what State() and the health check report; neither stops
// nor restarts the work Run is doing.
func (p *Pipeline) Pause()  { p.setState(StatePaused) }
func (p *Pipeline) Resume() { p.setState(StateSyncing) }

// Run executes the full lifecycle — backfill, gap verification, then live
// dual-stream subscription — until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateInitializing)

	st, err := p.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: load indexer state: %w", err)
	}

	tip, err := p.fetchFinalizedTip(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: fetch chain tip: %w", err)
	}
	chainTipGauge.Set(float64(tip))

	p.setState(StateSyncing)

	if tip > st.LastFinalized {
		if err := p.runBackfill(ctx, st.LastFinalized+1, tip); err != nil {
			return fmt.Errorf("pipeline: backfill: %w", err)
		}
	}

	if err := p.runGapVerification(ctx, st.LastFinalized+1, tip); err != nil {
		p.logger.Warn().Err(err).Msg("gap verification encountered an error")
	}

	p.setState(StateLive)
	return p.runLive(ctx)
}

// fetchFinalizedTip resolves the chain's current finalized height via
// chain_getFinalizedHead + chain_getHeader.
func (p *Pipeline) fetchFinalizedTip(ctx context.Context) (int64, error) {
	hash, err := rpcpool.Call[string](ctx, p.pool, "chain_getFinalizedHead", []any{})
	if err != nil {
		return 0, fmt.Errorf("chain_getFinalizedHead: %w", err)
	}

	header, err := rpcpool.Call[blockHeader](ctx, p.pool, "chain_getHeader", []any{hash})
	if err != nil {
		return 0, fmt.Errorf("chain_getHeader: %w", err)
	}

	return header.number()
}

func jitter(attempt int) time.Duration {
	base := time.Duration(attempt) * 200 * time.Millisecond
	return base + time.Duration(rand.Intn(100))*time.Millisecond
}
