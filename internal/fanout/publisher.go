// Package fanout publishes decoded extrinsics and events to NATS
// JetStream for external subscribers.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
)

const (
	streamName           = "CHAIN_ACTIVITY"
	streamSubjectPattern = "CHAIN_ACTIVITY.>"
	streamCreateTimeout  = 10 * time.Second
)

// Publisher publishes a best-effort stream of extrinsics and events to
// NATS JetStream, deduplicated by block height and item index.
type Publisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger *zerolog.Logger
	prefix string
}

// NewPublisher connects to NATS and ensures the fanout stream exists.
func NewPublisher(natsURL string, persistDuration time.Duration, subjectPrefix string, logger *zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("polka-xplo-indexer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fanout: connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("fanout: create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	duplicateWindow := 20 * time.Minute
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPattern},
		MaxAge:     persistDuration,
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("fanout: create stream: %w", err)
	}

	logger.Info().
		Str("stream", streamName).
		Str("subjects", streamSubjectPattern).
		Dur("max_age", persistDuration).
		Msg("fanout publisher initialized")

	return &Publisher{js: js, nc: nc, logger: logger, prefix: subjectPrefix}, nil
}

// extrinsicMessage and eventMessage are the wire payloads published for
// each item; they carry the block height since the subject alone doesn't.
type extrinsicMessage struct {
	Height int64             `json:"height"`
	Item   decoder.Extrinsic `json:"extrinsic"`
}

type eventMessage struct {
	Height int64         `json:"height"`
	Item   decoder.Event `json:"event"`
}

// PublishBlock publishes every extrinsic and event in a block. A failure
// partway through still returns an error so the caller can log it, but
// this is always treated as best-effort and never blocks ingestion.
func (p *Publisher) PublishBlock(ctx context.Context, height int64, extrinsics []decoder.Extrinsic, events []decoder.Event) error {
	for _, ext := range extrinsics {
		subject := fmt.Sprintf("%s.extrinsic.%s.%s", p.prefix, ext.Module, ext.Call)
		data, err := json.Marshal(extrinsicMessage{Height: height, Item: ext})
		if err != nil {
			return fmt.Errorf("fanout: marshal extrinsic: %w", err)
		}
		msgID := fmt.Sprintf("ext-%d-%d", height, ext.Index)
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
			return fmt.Errorf("fanout: publish extrinsic %d/%d: %w", height, ext.Index, err)
		}
	}

	for _, ev := range events {
		subject := fmt.Sprintf("%s.event.%s.%s", p.prefix, ev.Module, ev.Name)
		data, err := json.Marshal(eventMessage{Height: height, Item: ev})
		if err != nil {
			return fmt.Errorf("fanout: marshal event: %w", err)
		}
		msgID := fmt.Sprintf("evt-%d-%d", height, ev.Index)
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
			return fmt.Errorf("fanout: publish event %d/%d: %w", height, ev.Index, err)
		}
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info().Msg("fanout publisher closed")
	}
}

// Healthy reports whether the NATS connection is currently up.
func (p *Publisher) Healthy() bool {
	return p.nc != nil && p.nc.IsConnected()
}
