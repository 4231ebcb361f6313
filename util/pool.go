package util

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohitkumar/flowengine/logger"
	"go.uber.org/zap"
)

// Pool is a fixed set of workers draining one shared bounded queue.
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	processor func(context.Context, T) error
	workChan  chan T
	wg        sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted int64
	processed int64
	failed    int64
	dropped   int64
}

type PoolStats struct {
	Workers    int
	QueueSize  int
	QueueDepth int
	Submitted  int64
	Processed  int64
	Failed     int64
	Dropped    int64
}

func NewPool[T any](name string, workers, queueSize int, processor func(context.Context, T) error) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Pool[T]{
		name:      name,
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
}

// Submit never blocks. A full queue is reported as ErrQueueFull and the item is not accepted.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.workChan <- work:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		return ErrQueueFull
	}
}

func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return fmt.Errorf("pool %s already started", p.name)
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.started = true
	logger.Info("worker pool started", zap.String("pool", p.name), zap.Int("workers", p.workers), zap.Int("queueSize", p.queueSize))
	return nil
}

// Stop closes the queue, lets workers drain it and waits up to timeout.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.workChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		logger.Info("worker pool stopped", zap.String("pool", p.name))
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.process(ctx, id, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, id int, work T) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.failed, 1)
			logger.Error("worker recovered from panic", zap.String("pool", p.name), zap.Int("worker", id), zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := p.processor(ctx, work); err != nil {
		atomic.AddInt64(&p.failed, 1)
		logger.Error("error processing work item", zap.String("pool", p.name), zap.Int("worker", id), zap.Error(err))
		return
	}
	atomic.AddInt64(&p.processed, 1)
}

func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Dropped:    atomic.LoadInt64(&p.dropped),
	}
}
