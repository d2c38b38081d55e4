package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/store"
)

// runLive subscribes to the finalized and best-block streams, each with
// its own independent reconnect loop, until ctx is canceled.
func (p *Pipeline) runLive(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.runStream(ctx, "finalized", p.finalizedWS, p.handleFinalized)
	}()

	go func() {
		defer wg.Done()
		p.runStream(ctx, "best", p.bestWS, p.handleBest)
	}()

	wg.Wait()
	return ctx.Err()
}

// runStream owns one stream's capped-exponential-backoff reconnect loop.
// A successful event resets the backoff counter.
func (p *Pipeline) runStream(ctx context.Context, name, wsURL string, handle func(context.Context, rpcpool.ChainHeadEvent)) {
	backoff := p.cfg.ReconnectMinBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		follower := rpcpool.NewChainHeadFollower(wsURL, &p.logger)
		events, err := follower.Follow(ctx)
		if err != nil {
			pipelineErrors.WithLabelValues(name + "_subscribe").Inc()
			p.logger.Warn().Err(err).Str("stream", name).Dur("backoff", backoff).Msg("subscription failed, retrying")
			if !p.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, p.cfg.ReconnectMaxBackoff)
			continue
		}

		sawEvent := false
		for ev := range events {
			sawEvent = true
			handle(ctx, ev)
		}

		if ctx.Err() != nil {
			return
		}

		if sawEvent {
			backoff = p.cfg.ReconnectMinBackoff
		}
		p.logger.Warn().Str("stream", name).Dur("backoff", backoff).Msg("subscription closed, reconnecting")
		if !p.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, p.cfg.ReconnectMaxBackoff)
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (p *Pipeline) handleFinalized(ctx context.Context, ev rpcpool.ChainHeadEvent) {
	if ev.Event != "finalized" {
		return
	}
	for _, hash := range ev.Finalized {
		height, err := p.heightForHash(ctx, hash)
		if err != nil {
			pipelineErrors.WithLabelValues("resolve_finalized_height").Inc()
			p.logger.Warn().Err(err).Str("hash", hash).Msg("could not resolve height for finalized hash")
			continue
		}

		raw, err := p.fetchBlockByHash(ctx, height, hash, store.StatusFinalized)
		if err != nil {
			pipelineErrors.WithLabelValues("fetch_finalized").Inc()
			p.logger.Warn().Err(err).Int64("height", height).Msg("finalized block fetch failed, left as gap")
			continue
		}

		if err := p.processor.ProcessBlock(ctx, raw); err != nil {
			pipelineErrors.WithLabelValues("commit_finalized").Inc()
			p.logger.Error().Err(err).Int64("height", height).Msg("finalized block commit failed")
			continue
		}

		st, err := p.store.LoadState(ctx)
		if err == nil && height > st.LastFinalized {
			_ = p.store.SaveState(ctx, store.IndexerState{LastFinalized: height, LastBest: st.LastBest})
		}
		pipelineHeight.Set(float64(height))
	}
}

func (p *Pipeline) handleBest(ctx context.Context, ev rpcpool.ChainHeadEvent) {
	if ev.Event != "newBlock" && ev.Event != "bestBlockChanged" {
		return
	}
	hash := ev.BestHash
	if hash == "" {
		hash = ev.BlockHash
	}
	if hash == "" {
		return
	}

	height, err := p.heightForHash(ctx, hash)
	if err != nil {
		pipelineErrors.WithLabelValues("resolve_best_height").Inc()
		p.logger.Warn().Err(err).Str("hash", hash).Msg("could not resolve height for best hash")
		return
	}

	if err := p.handleForkIfNeeded(ctx, height, hash); err != nil {
		pipelineErrors.WithLabelValues("fork_prune").Inc()
		p.logger.Error().Err(err).Int64("height", height).Msg("fork pruning failed")
		return
	}

	raw, err := p.fetchBlockByHash(ctx, height, hash, store.StatusBest)
	if err != nil {
		pipelineErrors.WithLabelValues("fetch_best").Inc()
		p.logger.Warn().Err(err).Int64("height", height).Msg("best block fetch failed, left as gap")
		return
	}

	if err := p.processor.ProcessBlock(ctx, raw); err != nil {
		pipelineErrors.WithLabelValues("commit_best").Inc()
		p.logger.Error().Err(err).Int64("height", height).Msg("best block commit failed")
	}
}

// heightForHash resolves a block's height via chain_getHeader, since
// chainHead events carry only hashes.
func (p *Pipeline) heightForHash(ctx context.Context, hash string) (int64, error) {
	header, err := rpcpool.Call[blockHeader](ctx, p.pool, "chain_getHeader", []any{hash})
	if err != nil {
		return 0, err
	}
	return header.number()
}
