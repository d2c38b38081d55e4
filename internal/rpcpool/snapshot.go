package rpcpool

import (
	"sort"
	"time"
)

// EndpointHealth is a point-in-time view of one endpoint's health, routing
// weight, and latency distribution, exposed for operators and persisted to
// the bbolt health store across restarts.
type EndpointHealth struct {
	URL                 string    `json:"url"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SuspendedUntil      time.Time `json:"suspended_until"`
	SuccessCount        uint64    `json:"success_count"`
	FailureCount        uint64    `json:"failure_count"`
	SampleCount         int       `json:"sample_count"`
	AvgLatencyMs        float64   `json:"avg_latency_ms"`
	P50LatencyMs        float64   `json:"p50_latency_ms"`
	P95LatencyMs        float64   `json:"p95_latency_ms"`
	MaxLatencyMs        float64   `json:"max_latency_ms"`
	RoutingWeight       float64   `json:"routing_weight"`
}

// Snapshot returns the current health, routing weight, and latency
// percentiles for every endpoint in the pool.
func (p *Pool) Snapshot() []EndpointHealth {
	p.mu.Lock()
	endpoints := make([]*endpointState, len(p.endpoints))
	copy(endpoints, p.endpoints)
	p.mu.Unlock()

	out := make([]EndpointHealth, 0, len(endpoints))
	weights := make([]float64, len(endpoints))
	var total float64
	now := time.Now()

	for i, ep := range endpoints {
		ep.mu.Lock()
		samples := ep.snapshotLatencies()
		h := EndpointHealth{
			URL:                 ep.url,
			ConsecutiveFailures: ep.consecutiveFailures,
			SuspendedUntil:      ep.suspendedUntil,
			SuccessCount:        ep.successCount,
			FailureCount:        ep.failureCount,
			SampleCount:         len(samples),
		}
		ep.mu.Unlock()

		if len(samples) > 0 {
			h.AvgLatencyMs = avgMs(samples)
			h.P50LatencyMs = percentileMs(samples, 0.50)
			h.P95LatencyMs = percentileMs(samples, 0.95)
			h.MaxLatencyMs = percentileMs(samples, 1.0)
		}

		suspended := h.SuspendedUntil.After(now)
		if !suspended && h.AvgLatencyMs > 0 {
			floor := 0.1 // ms
			avg := h.AvgLatencyMs
			if avg < floor {
				avg = floor
			}
			weights[i] = 1.0 / avg
			total += weights[i]
		}
		out = append(out, h)
	}

	if total > 0 {
		for i := range out {
			out[i].RoutingWeight = weights[i] / total
		}
	}
	return out
}

// snapshotLatencies returns a copy of the currently filled latency samples.
// Caller must hold s.mu.
func (s *endpointState) snapshotLatencies() []time.Duration {
	n := s.ringPos
	if s.ringFull {
		n = ringCapacity
	}
	out := make([]time.Duration, n)
	copy(out, s.latencies[:n])
	return out
}

func avgMs(samples []time.Duration) float64 {
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return float64(sum.Microseconds()) / 1000.0 / float64(len(samples))
}

func percentileMs(samples []time.Duration, p float64) float64 {
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Microseconds()) / 1000.0
}
