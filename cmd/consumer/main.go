// Consumer service - reads decoded extrinsic/event activity from the
// fanout NATS JetStream and writes it into the activity_feed table, a
// reference implementation of an external system that only ever reads
// the fanout stream and never touches the pipeline's own tables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/bootstrap"
)

var (
	itemsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_consumer_items_consumed_total",
		Help: "Total number of fanout items consumed from NATS, by kind.",
	}, []string{"kind"})

	itemsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_consumer_items_stored_total",
		Help: "Total number of fanout items stored in activity_feed, by kind.",
	}, []string{"kind"})

	consumeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_consumer_errors_total",
		Help: "Total number of consume errors, by error type.",
	}, []string{"error_type"})
)

const serviceName = "polka-xplo-activity-consumer"

func main() {
	logger := bootstrap.InitLogger(serviceName)
	logger.Info().Msg("starting activity feed consumer")

	cfg := bootstrap.InitConfig(logger, "config.toml")
	bootstrap.UpdateLogLevel(cfg, logger)

	pool, err := pgxpool.New(context.Background(), cfg.String("db.connection_string"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping database")
	}
	logger.Info().Msg("connected to activity_feed database")

	nc, err := nats.Connect(cfg.String("nats.url"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer nc.Close()
	logger.Info().Str("url", cfg.String("nats.url")).Msg("connected to nats")

	js, err := jetstream.New(nc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jetstream context")
	}

	streamName := cfg.String("nats.stream_name")
	consumerName := cfg.String("nats.consumer_name")

	consumer, err := js.CreateOrUpdateConsumer(context.Background(), streamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
		FilterSubject: cfg.String("nats.subject_prefix") + ".>",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create consumer")
	}
	logger.Info().Str("stream", streamName).Str("consumer", consumerName).Msg("created consumer")

	metricsAddr := cfg.String("metrics.address")
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info().Str("address", metricsAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	consCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := processMessage(ctx, pool, msg, *logger); err != nil {
			consumeErrors.WithLabelValues("process_message").Inc()
			logger.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start consuming")
	}
	defer consCtx.Stop()

	logger.Info().Msg("consumer started, waiting for messages")

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

// processMessage parses one fanout message and writes it to activity_feed.
// Subject shape: {prefix}.{extrinsic|event}.{Module}.{Name}.
func processMessage(ctx context.Context, pool *pgxpool.Pool, msg jetstream.Msg, logger zerolog.Logger) error {
	kind, module, name, err := parseSubject(msg.Subject())
	if err != nil {
		return fmt.Errorf("parse subject %q: %w", msg.Subject(), err)
	}
	itemsConsumed.WithLabelValues(kind).Inc()

	var envelope struct {
		Height int64           `json:"height"`
		Item   json.RawMessage `json:"extrinsic"`
		Event  json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("unmarshal fanout message: %w", err)
	}

	payload := envelope.Item
	if kind == "event" {
		payload = envelope.Event
	}

	logger.Debug().Str("kind", kind).Str("module", module).Str("name", name).Int64("height", envelope.Height).Msg("processing activity item")

	_, err = pool.Exec(ctx, `
		INSERT INTO activity_feed (block_height, kind, module, name, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, envelope.Height, kind, module, name, payload)
	if err != nil {
		return fmt.Errorf("insert activity_feed row: %w", err)
	}

	itemsStored.WithLabelValues(kind).Inc()
	return nil
}

// parseSubject splits "{prefix}.{kind}.{Module}.{Name}" into its parts.
func parseSubject(subject string) (kind, module, name string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) < 4 {
		return "", "", "", fmt.Errorf("expected at least 4 subject segments, got %d", len(parts))
	}
	n := len(parts)
	return parts[n-3], parts[n-2], parts[n-1], nil
}
