package rpcpool

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// healthBucket is the bbolt bucket name for persisted endpoint health
// snapshots.
const healthBucket = "rpcpool_health"

// HealthStore persists per-endpoint health snapshots to a local bbolt file
// so a restarted pool can get back the failure counters and suspensions it
// had (see Seed); latency history is not restored, so warm-up starts from
// zero. Sync progress itself lives in Postgres's indexer_state table, not
// here.
type HealthStore struct {
	db *bbolt.DB
}

// OpenHealthStore opens (creating if absent) the bbolt file at path.
func OpenHealthStore(path string) (*HealthStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("rpcpool: open health store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(healthBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("rpcpool: create health bucket: %w", err)
	}

	return &HealthStore{db: db}, nil
}

// Save persists the current health snapshot for every endpoint, keyed by
// endpoint URL.
func (s *HealthStore) Save(snapshot []EndpointHealth) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(healthBucket))
		for _, h := range snapshot {
			data, err := json.Marshal(h)
			if err != nil {
				return fmt.Errorf("rpcpool: marshal health for %s: %w", h.URL, err)
			}
			if err := b.Put([]byte(h.URL), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the last persisted health snapshot for an endpoint, if any.
func (s *HealthStore) Load(url string) (*EndpointHealth, bool) {
	var h EndpointHealth
	var found bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(healthBucket))
		data := b.Get([]byte(url))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &h); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return &h, found
}

// Seed primes a freshly constructed Pool's endpoints from persisted health,
// so failure counters and suspensions survive a restart. Latency samples
// themselves are not restored (the ring buffer is rebuilt from fresh
// traffic); only the failure/suspension state that protects against an
// endpoint known-bad at shutdown.
func (s *HealthStore) Seed(p *Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		prior, ok := s.Load(ep.url)
		if !ok {
			continue
		}
		ep.mu.Lock()
		ep.consecutiveFailures = prior.ConsecutiveFailures
		ep.suspendedUntil = prior.SuspendedUntil
		ep.successCount = prior.SuccessCount
		ep.failureCount = prior.FailureCount
		ep.mu.Unlock()
	}
}

// Close closes the underlying bbolt file.
func (s *HealthStore) Close() error {
	return s.db.Close()
}
