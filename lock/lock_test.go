package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]func(t *testing.T) Provider {
	return map[string]func(t *testing.T) Provider{
		"memory": func(t *testing.T) Provider {
			return NewMemoryProvider()
		},
		"redis": func(t *testing.T) Provider {
			srv := miniredis.RunT(t)
			client := rd.NewClient(&rd.Options{Addr: srv.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisProvider(client, "test")
		},
	}
}

func TestProviders(t *testing.T) {
	for name, newProvider := range providers(t) {
		for scenario, fn := range map[string]func(t *testing.T, p Provider){
			"acquire is exclusive":         testAcquireExclusive,
			"release checks owner":         testReleaseChecksOwner,
			"refresh checks owner":         testRefreshChecksOwner,
			"sweep removes stale only":     testSweepStale,
			"with lock excludes":           testWithLockExcludes,
			"with lock releases on panic":  testWithLockReleasesOnPanic,
			"with lock gives up on policy": testWithLockGivesUp,
		} {
			t.Run(name+"/"+scenario, func(t *testing.T) {
				fn(t, newProvider(t))
			})
		}
	}
}

func testAcquireExclusive(t *testing.T, p Provider) {
	ctx := context.Background()
	ok, err := p.TryAcquire(ctx, "k", "a", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.TryAcquire(ctx, "k", "b", time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.TryAcquire(ctx, "other", "b", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func testReleaseChecksOwner(t *testing.T, p Provider) {
	ctx := context.Background()
	ok, err := p.TryAcquire(ctx, "k", "a", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, p.Release(ctx, "k", "b"))
	ok, err = p.TryAcquire(ctx, "k", "b", time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Release(ctx, "k", "a"))
	ok, err = p.TryAcquire(ctx, "k", "b", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func testRefreshChecksOwner(t *testing.T, p Provider) {
	ctx := context.Background()
	_, err := p.TryAcquire(ctx, "k", "a", time.Now())
	require.NoError(t, err)

	ok, err := p.Refresh(ctx, "k", "a", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.Refresh(ctx, "k", "b", time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.Refresh(ctx, "missing", "a", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func testSweepStale(t *testing.T, p Provider) {
	ctx := context.Background()
	now := time.Now()
	_, err := p.TryAcquire(ctx, "stale", "a", now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = p.TryAcquire(ctx, "fresh", "b", now.Add(-2*time.Minute))
	require.NoError(t, err)
	ok, err := p.Refresh(ctx, "fresh", "b", now)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := p.Sweep(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	ok, err = p.TryAcquire(ctx, "stale", "c", now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = p.TryAcquire(ctx, "fresh", "c", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func waitPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 400)
}

func testWithLockExcludes(t *testing.T, p Provider) {
	lockers := []*Locker{NewLocker(p, time.Minute, nil), NewLocker(p, time.Minute, nil)}
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l *Locker) {
			defer wg.Done()
			err := l.WithLock(context.Background(), Key(NODE_LOCK_PREFIX, "s-1", "A"), waitPolicy(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}(lockers[i%2])
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
}

func testWithLockReleasesOnPanic(t *testing.T, p Provider) {
	l := NewLocker(p, time.Minute, nil)
	require.Panics(t, func() {
		_ = l.WithLock(context.Background(), "k", nil, func(ctx context.Context) error {
			panic("boom")
		})
	})
	ok, err := p.TryAcquire(context.Background(), "k", "other", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func testWithLockGivesUp(t *testing.T, p Provider) {
	ok, err := p.TryAcquire(context.Background(), "k", "holder", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	l := NewLocker(p, time.Minute, nil)
	called := false
	err = l.WithLock(context.Background(), "k", backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.False(t, called)
	var coordErr *CoordinationError
	require.True(t, errors.As(err, &coordErr))
	require.Equal(t, "k", coordErr.Key)
	require.ErrorIs(t, err, ErrLockHeld)
}

func TestLockKey(t *testing.T) {
	require.Equal(t, "flow-node-order-1-approve", Key(NODE_LOCK_PREFIX, "order-1", "approve"))
	require.Equal(t, "flow-event-order-1-e1", Key(EVENT_LOCK_PREFIX, "order-1", "e1"))
}

func TestSweeperRemovesStaleLeases(t *testing.T) {
	p := NewMemoryProvider()
	_, err := p.TryAcquire(context.Background(), "k", "a", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	s := NewSweeper(p, time.Minute, 10*time.Millisecond, &wg)
	s.Start()
	require.Eventually(t, func() bool {
		ok, _ := p.TryAcquire(context.Background(), "k", "b", time.Now())
		return ok
	}, time.Second, 10*time.Millisecond)
	s.Stop()
	wg.Wait()
}
