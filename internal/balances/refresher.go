// Package balances periodically refreshes the free/reserved balance of
// every account the indexer has seen, independent of the block ingestion
// pipeline, via a ticker-driven poll loop.
package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

var (
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_balance_refresh_duration_seconds",
		Help:    "Time taken to refresh one polling cycle of account balances",
		Buckets: prometheus.DefBuckets,
	})

	refreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_balance_refresh_errors_total",
		Help: "Total number of account balance refresh errors",
	}, []string{"error_type"})

	accountsRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_accounts_refreshed_total",
		Help: "Total number of account balances successfully refreshed",
	})
)

// Refresher polls System.Account storage for every recently active
// account on a fixed interval.
type Refresher struct {
	logger       zerolog.Logger
	pool         *rpcpool.Pool
	store        *store.Store
	interval     time.Duration
	lookbackSpan int64
	isHealthy    bool
}

// Config configures the refresher's poll interval and the active-account
// lookback window.
type Config struct {
	Interval     time.Duration // how often to poll, e.g. 30s
	LookbackSpan int64         // accounts active within this many blocks of the tip are polled
}

// New builds a Refresher.
func New(logger zerolog.Logger, pool *rpcpool.Pool, st *store.Store, cfg Config) *Refresher {
	return &Refresher{
		logger:       logger.With().Str("component", "balances").Logger(),
		pool:         pool,
		store:        st,
		interval:     cfg.Interval,
		lookbackSpan: cfg.LookbackSpan,
		isHealthy:    true,
	}
}

// Run polls on Interval until ctx is canceled, refreshing every account
// active within LookbackSpan blocks of the indexer's last-known height.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("starting account balance refresher")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.refreshOnce(ctx); err != nil {
				refreshErrors.WithLabelValues("refresh_cycle").Inc()
				r.logger.Error().Err(err).Msg("balance refresh cycle failed")
				r.isHealthy = false
				continue
			}
			r.isHealthy = true
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) error {
	start := time.Now()
	defer func() { refreshDuration.Observe(time.Since(start).Seconds()) }()

	state, err := r.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load indexer state: %w", err)
	}

	since := state.LastFinalized - r.lookbackSpan
	if since < 0 {
		since = 0
	}

	accounts, err := r.store.ActiveAccounts(ctx, since)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}

	for _, accountID := range accounts {
		if err := r.refreshOne(ctx, accountID); err != nil {
			refreshErrors.WithLabelValues("fetch_account").Inc()
			r.logger.Warn().Err(err).Str("account", accountID).Msg("failed to refresh account balance")
			continue
		}
		accountsRefreshed.Inc()
	}

	return nil
}

func (r *Refresher) refreshOne(ctx context.Context, accountIDHex string) error {
	accountID, err := scale.HexToBytes(accountIDHex)
	if err != nil {
		return fmt.Errorf("decode account id: %w", err)
	}

	hashedKey := scale.Blake2_128Concat(accountID)
	key := scale.StorageMapKey("System", "Account", hashedKey)
	keyHex := scale.BytesToHex(key)

	var raw string
	raw, err = rpcpool.Call[string](ctx, r.pool, "state_getStorage", []any{keyHex})
	if err != nil {
		return fmt.Errorf("state_getStorage: %w", err)
	}
	if raw == "" {
		return nil // account has no System.Account entry yet (e.g. never received funds)
	}

	data, err := scale.HexToBytes(raw)
	if err != nil {
		return fmt.Errorf("decode storage value: %w", err)
	}

	info, err := decodeAccountInfo(data)
	if err != nil {
		return fmt.Errorf("decode AccountInfo: %w", err)
	}

	return r.store.UpsertAccountBalance(ctx, store.AccountBalance{
		AccountID: accountIDHex,
		Free:      info.Free.String(),
		Reserved:  info.Reserved.String(),
		Frozen:    info.Frozen.String(),
		Flags:     info.Flags.String(),
	})
}

// Healthy reports whether the last refresh cycle completed successfully.
func (r *Refresher) Healthy() bool {
	return r.isHealthy
}
