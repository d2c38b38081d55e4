// Package rpcpool implements a latency-weighted JSON-RPC client pool with
// per-endpoint health tracking, suspension backoff, and automatic failover
// across an arbitrary-sized pool of Substrate RPC endpoints.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	endpointSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcpool_endpoint_selections_total",
		Help: "Number of times an endpoint was selected for a call.",
	}, []string{"endpoint"})

	callErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcpool_call_errors_total",
		Help: "Number of failed RPC calls by endpoint.",
	}, []string{"endpoint"})

	callLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpcpool_call_latency_seconds",
		Help:    "Observed latency of successful RPC calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	suspendedEndpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rpcpool_suspended_endpoints",
		Help: "Current number of suspended endpoints in the pool.",
	})

	allEndpointsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpcpool_all_endpoints_failed_total",
		Help: "Number of calls that exhausted every endpoint.",
	})
)

// ErrAllEndpointsFailed is returned by Call when every endpoint in the pool
// was tried and failed for a single logical call.
var ErrAllEndpointsFailed = errors.New("rpcpool: all endpoints failed")

// warmupSamples is the sample count below which an endpoint is still
// considered "warming up" and selection falls back to round-robin.
const warmupSamples = 20

// ringCapacity bounds the latency sample ring buffer per endpoint.
const ringCapacity = 500

// Transport performs one JSON-RPC request/response round trip against a
// single endpoint URL. http.go's httpTransport implements it; the chainHead
// subscription goes through ChainHeadFollower, which is not a Transport.
type Transport interface {
	Call(ctx context.Context, endpoint string, method string, params any, out any) error
	Close() error
}

// Pool dispatches JSON-RPC calls across a set of endpoints, picking one per
// call by the warm-up/weighted-random algorithm and retrying on a different
// endpoint on failure.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpointState
	transport Transport
	logger    *zerolog.Logger
	rng       *rand.Rand
	rrCursor  int
}

type endpointState struct {
	url                 string
	mu                  sync.Mutex
	consecutiveFailures int
	suspendedUntil      time.Time
	successCount        uint64
	failureCount        uint64
	latencies           []time.Duration // ring buffer, fixed capacity
	ringPos             int
	ringFull            bool
}

func newEndpointState(url string) *endpointState {
	return &endpointState{url: url, latencies: make([]time.Duration, ringCapacity)}
}

// New builds a Pool over the given endpoint URLs using transport to perform
// calls. urls must be non-empty.
func New(urls []string, transport Transport, logger *zerolog.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("rpcpool: at least one endpoint is required")
	}
	states := make([]*endpointState, 0, len(urls))
	for _, u := range urls {
		states = append(states, newEndpointState(u))
	}
	return &Pool{
		endpoints: states,
		transport: transport,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Call dispatches method/params to one endpoint, decoding the JSON-RPC
// result into a value of type T. On failure it retries a different endpoint
// up to len(endpoints) total attempts before returning ErrAllEndpointsFailed.
func Call[T any](ctx context.Context, p *Pool, method string, params any) (T, error) {
	var zero T
	tried := make(map[string]bool, len(p.endpoints))

	for attempt := 0; attempt < len(p.endpoints); attempt++ {
		ep := p.pick(tried)
		if ep == nil {
			break
		}
		tried[ep.url] = true

		start := time.Now()
		var out T
		err := p.transport.Call(ctx, ep.url, method, params, &out)
		latency := time.Since(start)

		if err != nil {
			p.recordFailure(ep)
			callErrors.WithLabelValues(ep.url).Inc()
			p.logger.Warn().
				Err(err).
				Str("endpoint", ep.url).
				Str("method", method).
				Msg("rpc call failed, will try next endpoint")
			continue
		}

		p.recordSuccess(ep, latency)
		callLatency.WithLabelValues(ep.url).Observe(latency.Seconds())
		return out, nil
	}

	allEndpointsFailed.Inc()
	return zero, ErrAllEndpointsFailed
}

// pick selects the next endpoint to try, skipping any already attempted
// during this logical call.
func (p *Pool) pick(tried map[string]bool) *endpointState {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var healthy []*endpointState
	for _, ep := range p.endpoints {
		if tried[ep.url] {
			continue
		}
		ep.mu.Lock()
		suspended := ep.suspendedUntil.After(now)
		ep.mu.Unlock()
		if !suspended {
			healthy = append(healthy, ep)
		}
	}

	if len(healthy) == 0 {
		// every untried endpoint is suspended: revive the one whose
		// suspension ends soonest rather than fail the call outright.
		var earliest *endpointState
		for _, ep := range p.endpoints {
			if tried[ep.url] {
				continue
			}
			if earliest == nil || ep.suspendedUntil.Before(earliest.suspendedUntil) {
				earliest = ep
			}
		}
		if earliest != nil {
			endpointSelections.WithLabelValues(earliest.url).Inc()
		}
		return earliest
	}

	selected := p.selectFrom(healthy)
	if selected != nil {
		endpointSelections.WithLabelValues(selected.url).Inc()
	}
	return selected
}

// selectFrom runs the warm-up/weighted-random selection algorithm over a
// pre-filtered set of healthy endpoints.
func (p *Pool) selectFrom(healthy []*endpointState) *endpointState {
	warmingUp := false
	for _, ep := range healthy {
		if ep.sampleCount() < warmupSamples {
			warmingUp = true
			break
		}
	}

	if warmingUp {
		p.rrCursor = (p.rrCursor + 1) % len(healthy)
		return healthy[p.rrCursor%len(healthy)]
	}

	weights := make([]float64, len(healthy))
	var total float64
	for i, ep := range healthy {
		avg := ep.averageLatency()
		floor := 100 * time.Microsecond // 0.1ms
		if avg < floor {
			avg = floor
		}
		w := 1.0 / avg.Seconds()
		weights[i] = w
		total += w
	}

	r := p.rng.Float64() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return healthy[i]
		}
	}
	return healthy[len(healthy)-1]
}

func (p *Pool) recordSuccess(ep *endpointState, latency time.Duration) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.consecutiveFailures = 0
	ep.suspendedUntil = time.Time{}
	ep.successCount++
	ep.latencies[ep.ringPos] = latency
	ep.ringPos = (ep.ringPos + 1) % ringCapacity
	if ep.ringPos == 0 {
		ep.ringFull = true
	}
}

func (p *Pool) recordFailure(ep *endpointState) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.failureCount++
	ep.consecutiveFailures++

	if ep.consecutiveFailures >= 3 {
		backoff := time.Duration(5*math.Pow(2, float64(ep.consecutiveFailures-3))) * time.Second
		if backoff > 120*time.Second {
			backoff = 120 * time.Second
		}
		ep.suspendedUntil = time.Now().Add(backoff)
	}
}

func (s *endpointState) sampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ringFull {
		return ringCapacity
	}
	return s.ringPos
}

func (s *endpointState) averageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ringPos
	if s.ringFull {
		n = ringCapacity
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += s.latencies[i]
	}
	return sum / time.Duration(n)
}

// Close releases the underlying transport.
func (p *Pool) Close() error {
	return p.transport.Close()
}
