package querycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFetchesOnceWithinTTL(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}
	c := New("test", time.Hour, time.Minute, fetch, zerolog.Nop())

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetRefetchesAfterTTLExpires(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}
	c := New("test", time.Millisecond, 0, fetch, zerolog.Nop())

	_, err := c.Get(context.Background(), "k")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetServesStaleValueOnTransientFetchError(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 7, nil
		}
		return 0, errors.New("upstream unavailable")
	}
	c := New("test", time.Millisecond, 0, fetch, zerolog.Nop())

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	time.Sleep(5 * time.Millisecond)

	v, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v, "stale value should be served when the refetch fails")
}

func TestGetPropagatesErrorOnFirstFetchFailure(t *testing.T) {
	fetch := func(ctx context.Context, key string) (int, error) {
		return 0, errors.New("no endpoints")
	}
	c := New("test", time.Hour, 0, fetch, zerolog.Nop())

	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRunRefreshesEntriesNearingExpiry(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}
	c := New("test", 20*time.Millisecond, 15*time.Millisecond, fetch, zerolog.Nop())

	_, err := c.Get(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c.Run(ctx, 5*time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}
