package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/metrics"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock held by another owner")

// CoordinationError reports a lease that could not be taken.
type CoordinationError struct {
	Key string
	Err error
}

func (e *CoordinationError) Error() string {
	return fmt.Sprintf("coordination error on %s: %v", e.Key, e.Err)
}

func (e *CoordinationError) Unwrap() error {
	return e.Err
}

// Locker scopes work to a held lease. It has no retry policy of its own: callers hand in the
// back-off that governs the wait.
type Locker struct {
	provider Provider
	id       string
	ttl      time.Duration
	metrics  metrics.Metrics
}

func NewLocker(provider Provider, ttl time.Duration, m metrics.Metrics) *Locker {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Locker{
		provider: provider,
		id:       uuid.NewString(),
		ttl:      ttl,
		metrics:  m,
	}
}

func (l *Locker) ID() string {
	return l.id
}

// WithLock acquires key, runs fn while refreshing the lease and releases it on every exit path.
// The context passed to fn is cancelled if the lease is lost.
func (l *Locker) WithLock(ctx context.Context, key string, policy backoff.BackOff, fn func(ctx context.Context) error) error {
	owner := l.id + ":" + uuid.NewString()
	start := time.Now()
	acquire := func() error {
		ok, err := l.provider.TryAcquire(ctx, key, owner, time.Now())
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	}
	if policy == nil {
		policy = &backoff.StopBackOff{}
	}
	if err := backoff.Retry(acquire, backoff.WithContext(policy, ctx)); err != nil {
		return &CoordinationError{Key: key, Err: err}
	}
	l.metrics.ObserveLockWait(time.Since(start).Seconds())

	lockCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer func() {
		close(done)
		cancel()
		if err := l.provider.Release(context.Background(), key, owner); err != nil {
			logger.Error("error releasing lease", zap.String("key", key), zap.Error(err))
		}
	}()
	go l.refresh(lockCtx, cancel, key, owner, done)

	return fn(lockCtx)
}

func (l *Locker) refresh(ctx context.Context, cancel context.CancelFunc, key string, owner string, done chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.provider.Refresh(context.Background(), key, owner, time.Now())
			if err != nil {
				logger.Warn("error refreshing lease", zap.String("key", key), zap.Error(err))
				continue
			}
			if !ok {
				logger.Warn("lease lost", zap.String("key", key))
				cancel()
				return
			}
		}
	}
}
