package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCoalescesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewCache(time.Hour, func(_ context.Context, k string) (string, error) {
		calls.Add(1)
		<-release
		return "summary of " + k, nil
	})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "https://mp.example/a")
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "summary of https://mp.example/a", r)
	}
}

func TestGetExpires(t *testing.T) {
	var calls int
	c := NewCache(time.Minute, func(context.Context, string) (int, error) {
		calls++
		return calls, nil
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	now = now.Add(30 * time.Second)
	v, _ = c.Get(context.Background(), "k")
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	v, _ = c.Get(context.Background(), "k")
	assert.Equal(t, 2, v)
}

func TestGetDoesNotCacheErrors(t *testing.T) {
	var calls int
	c := NewCache(0, func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("vendor down")
		}
		return "ok", nil
	})

	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, c.Len())

	c.Forget("k")
	assert.Equal(t, 0, c.Len())
}

func TestWaiterHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	c := NewCache(time.Hour, func(context.Context, string) (string, error) {
		close(started)
		<-release
		return "late", nil
	})

	go c.Get(context.Background(), "k")
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirstCallerCancelDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewCache(time.Hour, func(ctx context.Context, k string) (string, error) {
		close(started)
		select {
		case <-release:
			return "summary of " + k, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first, "k")
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := c.Get(context.Background(), "k")
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "summary of k", <-second)
	assert.Equal(t, 1, c.Len())
}
