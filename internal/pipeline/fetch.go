package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/darkfriend77/polka-xplo-sub000/internal/decoder"
	"github.com/darkfriend77/polka-xplo-sub000/internal/processor"
	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// blockHeader mirrors chain_getHeader/chain_getBlock's header shape; number
// is hex-encoded on the wire ("0x1a2b"), decoded on demand via number().
type blockHeader struct {
	ParentHash     string `json:"parentHash"`
	Number         string `json:"number"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
	Digest         struct {
		Logs []string `json:"logs"`
	} `json:"digest"`
}

func (h blockHeader) number() (int64, error) {
	s := strings.TrimPrefix(h.Number, "0x")
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse header number %q: %w", h.Number, err)
	}
	return v, nil
}

// signedBlock mirrors chain_getBlock's response shape.
type signedBlock struct {
	Block struct {
		Header     blockHeader `json:"header"`
		Extrinsics []string    `json:"extrinsics"`
	} `json:"block"`
}

// fetchBlock resolves a block hash by height, fetches its header and
// extrinsics, resolves metadata, and decodes the full extrinsic/event set.
func (p *Pipeline) fetchBlock(ctx context.Context, height int64, status store.BlockStatus) (processor.RawBlock, error) {
	hash, err := rpcpool.Call[string](ctx, p.pool, "chain_getBlockHash", []any{height})
	if err != nil {
		return processor.RawBlock{}, fmt.Errorf("chain_getBlockHash(%d): %w", height, err)
	}
	if hash == "" {
		return processor.RawBlock{}, fmt.Errorf("no block hash at height %d", height)
	}

	return p.fetchBlockByHash(ctx, height, hash, status)
}

func (p *Pipeline) fetchBlockByHash(ctx context.Context, height int64, hash string, status store.BlockStatus) (processor.RawBlock, error) {
	block, err := rpcpool.Call[signedBlock](ctx, p.pool, "chain_getBlock", []any{hash})
	if err != nil {
		return processor.RawBlock{}, fmt.Errorf("chain_getBlock(%s): %w", hash, err)
	}

	lookup, specVersion, err := p.cache.EnsureMetadata(ctx, hash)
	if err != nil {
		return processor.RawBlock{}, fmt.Errorf("ensure metadata: %w", err)
	}

	if logs, err := decoder.DecodeDigestLogs(block.Block.Header.Digest.Logs); err != nil {
		p.logger.Debug().Err(err).Str("hash", hash).Msg("digest log decode failed")
	} else {
		for _, l := range logs {
			if l.Type == decoder.DigestPreRuntime && l.Engine != nil {
				p.logger.Debug().Str("engine", *l.Engine).Int64("height", height).Msg("pre-runtime digest observed")
			}
		}
	}

	extrinsics := make([]decoder.Extrinsic, 0, len(block.Block.Extrinsics))
	for i, hexStr := range block.Block.Extrinsics {
		extrinsics = append(extrinsics, decoder.DecodeExtrinsic(i, hexStr, lookup, &p.logger))
	}

	events, err := decoder.FetchEvents(ctx, p.pool, hash, lookup)
	if err != nil {
		return processor.RawBlock{}, fmt.Errorf("fetch events: %w", err)
	}
	decoder.EnrichExtrinsics(extrinsics, events, &p.logger)

	var timestampMillis *int64
	for _, ext := range extrinsics {
		if ext.TimestampMillis != nil {
			timestampMillis = ext.TimestampMillis
			break
		}
	}

	blk := store.Block{
		Height:          height,
		Hash:            hash,
		ParentHash:      block.Block.Header.ParentHash,
		StateRoot:       block.Block.Header.StateRoot,
		ExtrinsicsRoot:  block.Block.Header.ExtrinsicsRoot,
		SpecVersion:     specVersion,
		TimestampMillis: timestampMillis,
		Status:          status,
	}

	return processor.RawBlock{Block: blk, Extrinsics: extrinsics, Events: events}, nil
}

// fetchWithRetry retries a per-block fetch up to FetchRetryAttempts times,
// with randomized 200ms·attempt + jitter between tries.
func (p *Pipeline) fetchWithRetry(ctx context.Context, height int64, status store.BlockStatus) (processor.RawBlock, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.FetchRetryAttempts; attempt++ {
		raw, err := p.fetchBlock(ctx, height, status)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt < p.cfg.FetchRetryAttempts {
			select {
			case <-ctx.Done():
				return processor.RawBlock{}, ctx.Err()
			case <-time.After(jitter(attempt)):
			}
		}
	}
	return processor.RawBlock{}, fmt.Errorf("height %d: exhausted %d attempts: %w", height, p.cfg.FetchRetryAttempts, lastErr)
}
