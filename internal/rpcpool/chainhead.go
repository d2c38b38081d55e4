package rpcpool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChainHeadEvent is one notification delivered by a chainHead_v1_follow
// subscription: a new best/finalized block, or a pruned fork branch.
type ChainHeadEvent struct {
	Event       string   `json:"event"` // "newBlock", "bestBlockChanged", "finalized"
	BlockHash   string   `json:"blockHash,omitempty"`
	ParentHash  string   `json:"parentBlockHash,omitempty"`
	BestHash    string   `json:"bestBlockHash,omitempty"`
	Finalized   []string `json:"finalizedBlockHashes,omitempty"`
	PrunedForks []string `json:"prunedBlockHashes,omitempty"`
}

// ChainHeadFollower maintains a single WebSocket subscription to
// chainHead_v1_follow against one endpoint; reconnecting is left to the
// caller (see Follow).
// The RPC pool's HTTP transport handles request/response calls; this
// complements it for the one genuinely stream-shaped API the live pipeline
// needs, per the transport split described in spec §4.6.
type ChainHeadFollower struct {
	wsURL  string
	logger *zerolog.Logger
}

// NewChainHeadFollower builds a follower against a single WebSocket
// endpoint URL. Unlike the load-balanced Pool, a streaming subscription is
// pinned to one endpoint for its lifetime; reconnects may pick a different
// endpoint from the caller's candidate list.
func NewChainHeadFollower(wsURL string, logger *zerolog.Logger) *ChainHeadFollower {
	return &ChainHeadFollower{wsURL: wsURL, logger: logger}
}

// Follow connects and streams ChainHeadEvents onto the returned channel
// until ctx is canceled. On any read/write error it closes the channel;
// the caller (internal/pipeline) owns the capped-backoff reconnect loop
// described in spec §4.6, calling Follow again with a fresh context.
func (f *ChainHeadFollower) Follow(ctx context.Context) (<-chan ChainHeadEvent, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: dial chainHead endpoint %s: %w", f.wsURL, err)
	}

	sub := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "chainHead_v1_follow", Params: []any{true}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpcpool: subscribe chainHead_v1_follow: %w", err)
	}

	events := make(chan ChainHeadEvent, 64)

	go func() {
		defer close(events)
		defer conn.Close()

		go func() {
			<-ctx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()

		for {
			var raw json.RawMessage
			if err := conn.ReadJSON(&raw); err != nil {
				if ctx.Err() == nil {
					f.logger.Warn().Err(err).Str("endpoint", f.wsURL).Msg("chainHead subscription read failed")
				}
				return
			}

			var notification struct {
				Params struct {
					Result ChainHeadEvent `json:"result"`
				} `json:"params"`
			}
			if err := json.Unmarshal(raw, &notification); err != nil {
				f.logger.Warn().Err(err).Msg("chainHead: malformed notification")
				continue
			}

			select {
			case events <- notification.Params.Result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
