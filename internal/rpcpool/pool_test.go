package rpcpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTransport lets tests control per-endpoint latency and failure
// behavior without a real network call.
type fakeTransport struct {
	mu      sync.Mutex
	latency map[string]time.Duration
	fail    map[string]bool
	callLog []string
}

func (f *fakeTransport) Call(ctx context.Context, endpoint, method string, params any, out any) error {
	f.mu.Lock()
	f.callLog = append(f.callLog, endpoint)
	lat := f.latency[endpoint]
	shouldFail := f.fail[endpoint]
	f.mu.Unlock()

	if shouldFail {
		return errTestFailure
	}
	time.Sleep(0) // keep deterministic; latency is injected via recordSuccess, not real sleep
	_ = lat
	return nil
}

func (f *fakeTransport) Close() error { return nil }

var errTestFailure = &rpcError{Code: -1, Message: "injected failure"}

func discardLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestWarmupIsRoundRobinBelowSampleThreshold(t *testing.T) {
	urls := []string{"a", "b", "c"}
	transport := &fakeTransport{latency: map[string]time.Duration{}, fail: map[string]bool{}}
	pool, err := New(urls, transport, discardLogger())
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 18*3; i++ { // stay under the 20-sample warm-up threshold per endpoint
		_, err := Call[struct{}](context.Background(), pool, "noop", nil)
		require.NoError(t, err)
	}

	for _, ep := range pool.endpoints {
		seen[ep.url] = int(ep.successCount)
	}
	// round robin over 3 endpoints for 54 calls should split exactly evenly
	for _, count := range seen {
		require.Equal(t, 18, count)
	}
}

func TestWeightedSelectionFavorsLowerLatencyEndpoint(t *testing.T) {
	urls := []string{"fast", "slow"}
	transport := &fakeTransport{latency: map[string]time.Duration{}, fail: map[string]bool{}}
	pool, err := New(urls, transport, discardLogger())
	require.NoError(t, err)

	// seed past warm-up with synthetic latencies: fast averages 1ms, slow 2ms
	for _, ep := range pool.endpoints {
		var lat time.Duration
		if ep.url == "fast" {
			lat = time.Millisecond
		} else {
			lat = 2 * time.Millisecond
		}
		for i := 0; i < warmupSamples+5; i++ {
			pool.recordSuccess(ep, lat)
		}
	}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		ep := pool.selectFrom(pool.endpoints)
		counts[ep.url]++
	}

	// inverse-latency weights: fast should get roughly 2x slow's share
	require.Greater(t, counts["fast"], counts["slow"])
}

func TestSuspensionAfterThirdConsecutiveFailure(t *testing.T) {
	urls := []string{"only"}
	transport := &fakeTransport{fail: map[string]bool{"only": true}}
	pool, err := New(urls, transport, discardLogger())
	require.NoError(t, err)

	ep := pool.endpoints[0]
	for i := 0; i < 3; i++ {
		pool.recordFailure(ep)
	}
	require.True(t, ep.suspendedUntil.After(time.Now()))

	backoff := time.Until(ep.suspendedUntil)
	require.GreaterOrEqual(t, backoff, 4*time.Second)
	require.LessOrEqual(t, backoff, 6*time.Second)
}

func TestAllEndpointsFailedReturnsSentinel(t *testing.T) {
	urls := []string{"a", "b"}
	transport := &fakeTransport{fail: map[string]bool{"a": true, "b": true}}
	pool, err := New(urls, transport, discardLogger())
	require.NoError(t, err)

	_, err = Call[struct{}](context.Background(), pool, "noop", nil)
	require.ErrorIs(t, err, ErrAllEndpointsFailed)
}
