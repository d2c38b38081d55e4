package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterScalesWithAttemptAndStaysBounded(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		d := jitter(attempt)
		lower := time.Duration(attempt) * 200 * time.Millisecond
		upper := lower + 100*time.Millisecond
		assert.GreaterOrEqualf(t, d, lower, "attempt %d", attempt)
		assert.LessOrEqualf(t, d, upper, "attempt %d", attempt)
	}
}

func TestNextBackoffDoublesUntilCapped(t *testing.T) {
	max := 60 * time.Second
	cur := 1 * time.Second

	cur = nextBackoff(cur, max)
	assert.Equal(t, 2*time.Second, cur)

	cur = nextBackoff(cur, max)
	assert.Equal(t, 4*time.Second, cur)

	cur = 40 * time.Second
	cur = nextBackoff(cur, max)
	assert.Equal(t, max, cur)
}

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.EqualValues(t, 100, cfg.BatchSize)
	assert.Equal(t, 10, cfg.BackfillConcurrency)
	assert.Equal(t, 500, cfg.GapRepairLimit)
	assert.Equal(t, 5, cfg.GapRepairConcurrency)
	assert.Equal(t, 3, cfg.FetchRetryAttempts)
	assert.Equal(t, 1*time.Second, cfg.ReconnectMinBackoff)
	assert.Equal(t, 60*time.Second, cfg.ReconnectMaxBackoff)
}

func TestBlockHeaderNumberParsesHex(t *testing.T) {
	h := blockHeader{Number: "0x1a2b"}
	n, err := h.number()
	assert.NoError(t, err)
	assert.EqualValues(t, 0x1a2b, n)
}

func TestBlockHeaderNumberRejectsMalformedHex(t *testing.T) {
	h := blockHeader{Number: "not-hex"}
	_, err := h.number()
	assert.Error(t, err)
}
