// Main indexer service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darkfriend77/polka-xplo-sub000/internal/balances"
	"github.com/darkfriend77/polka-xplo-sub000/internal/bootstrap"
	"github.com/darkfriend77/polka-xplo-sub000/internal/fanout"
	"github.com/darkfriend77/polka-xplo-sub000/internal/metadata"
	"github.com/darkfriend77/polka-xplo-sub000/internal/pipeline"
	"github.com/darkfriend77/polka-xplo-sub000/internal/plugins"
	"github.com/darkfriend77/polka-xplo-sub000/internal/processor"
	"github.com/darkfriend77/polka-xplo-sub000/internal/querycache"
	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
	"github.com/darkfriend77/polka-xplo-sub000/pkg/config"
)

const serviceName = "polka-xplo-sub000"

func main() {
	logger := bootstrap.InitLogger(serviceName)
	logger.Info().Msg("starting substrate indexer")

	cfg := bootstrap.InitConfig(logger, "config.toml")
	bootstrap.UpdateLogLevel(cfg, logger)

	chainConfigs, err := config.LoadConfig("config/chains.json")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load chains.json")
	}

	chainName := cfg.String("chain.name")
	selectedChain, err := chainConfigs.GetChain(chainName)
	if err != nil {
		logger.Fatal().Err(err).Str("chain", chainName).Msg("chain not found in chains.json")
	}
	logger.Info().
		Str("chain", selectedChain.Name).
		Str("chain_id", selectedChain.ChainID).
		Strs("rpc_urls", selectedChain.RPCUrls).
		Strs("ws_urls", selectedChain.WSUrls).
		Uint64("start_block", selectedChain.StartBlock).
		Msg("loaded chain configuration")

	transport := rpcpool.NewHTTPTransport(cfg.Duration("rpc.timeout"))
	pool, err := rpcpool.New(selectedChain.Endpoints(), transport, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create rpc pool")
	}
	defer pool.Close()
	logger.Info().Int("endpoints", len(selectedChain.Endpoints())).Msg("initialized rpc pool")

	metadataCache, err := metadata.NewCache(pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create metadata cache")
	}

	st, err := store.New(context.Background(), cfg.String("db.connection_string"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate store schema")
	}

	registry, err := plugins.NewRegistry(context.Background(), st, *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build plugin registry")
	}
	logger.Info().Int("extensions", len(registry.Extensions())).Msg("plugin registry ready")

	var fanoutPub *fanout.Publisher
	if natsURL := cfg.String("nats.url"); natsURL != "" {
		fanoutPub, err = fanout.NewPublisher(
			natsURL,
			cfg.Duration("nats.max_age"),
			cfg.String("nats.subject_prefix"),
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create fanout publisher")
		}
		defer fanoutPub.Close()
		logger.Info().Str("url", natsURL).Msg("initialized fanout publisher")
	} else {
		logger.Warn().Msg("nats.url not configured, event fanout disabled")
	}

	proc := processor.New(*logger, st, registry, fanoutPub)

	refresher := balances.New(*logger, pool, st, balances.Config{
		Interval:     cfg.Duration("balances.interval"),
		LookbackSpan: cfg.Int64("balances.lookback_span"),
	})
	go refresher.Run(context.Background())
	logger.Info().
		Dur("interval", cfg.Duration("balances.interval")).
		Int64("lookback_span", cfg.Int64("balances.lookback_span")).
		Msg("started account balance refresher")

	propsCache := querycache.NewChainPropertiesCache(pool, *logger)
	go propsCache.Run(context.Background(), 1*time.Minute)

	if len(selectedChain.WSUrls) == 0 {
		logger.Fatal().Str("chain", selectedChain.Name).Msg("chain has no wsUrls configured, required for the live pipeline's chainHead subscriptions")
	}
	finalizedWS := selectedChain.WSUrls[0]
	bestWS := selectedChain.WSUrls[0]
	if len(selectedChain.WSUrls) > 1 {
		bestWS = selectedChain.WSUrls[1]
	}

	pipelineCfg := pipeline.DefaultConfig()
	if v := cfg.Int64("indexer.batch_size"); v > 0 {
		pipelineCfg.BatchSize = v
	}
	if v := cfg.Int("indexer.backfill_concurrency"); v > 0 {
		pipelineCfg.BackfillConcurrency = v
	}

	pl := pipeline.New(*logger, pool, metadataCache, st, proc, finalizedWS, bestWS, pipelineCfg)
	logger.Info().
		Int64("batch_size", pipelineCfg.BatchSize).
		Int("backfill_concurrency", pipelineCfg.BackfillConcurrency).
		Str("finalized_ws", finalizedWS).
		Str("best_ws", bestWS).
		Msg("initialized pipeline")

	metricsAddr := cfg.String("metrics.address")
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info().Str("address", metricsAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	healthAddr := cfg.String("health.address")
	healthServer := &http.Server{
		Addr:    healthAddr,
		Handler: http.HandlerFunc(healthCheckHandler(pl, refresher, fanoutPub)),
	}
	go func() {
		logger.Info().Str("address", healthAddr).Msg("starting health check server")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- pl.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		if err != nil {
			logger.Error().Err(err).Msg("pipeline error")
		}
	}

	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

// healthCheckHandler reports unhealthy if either the pipeline has paused
// itself, the balance refresher's last cycle failed, or the fanout
// publisher's underlying NATS connection is down.
func healthCheckHandler(pl *pipeline.Pipeline, refresher *balances.Refresher, pub *fanout.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := pl.State() != pipeline.StatePaused && refresher.Healthy()
		if pub != nil {
			healthy = healthy && pub.Healthy()
		}

		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy\nstate: %s\n", pl.State())
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\nstate: %s\n", pl.State())
	}
}
