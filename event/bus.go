package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/metrics"
	"github.com/mohitkumar/flowengine/util"
	"go.uber.org/zap"
)

const MAX_WORKERS = 10
const DEFAULT_QUEUE_SIZE = 1000

type Handler func(ctx context.Context, ev Event) error

// Bus delivers events to subscribers on worker pools, one bounded pool per event class.
// Publish never blocks.
type Bus struct {
	pools    map[Class]*util.Pool[Event]
	mu       sync.RWMutex
	handlers map[Type][]Handler
	metrics  metrics.Metrics
}

func NewBus(conf config.BusConfig, m metrics.Metrics) *Bus {
	if m == nil {
		m = metrics.Noop{}
	}
	workers := conf.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > MAX_WORKERS {
		workers = MAX_WORKERS
	}
	queueSize := conf.QueueSize
	if queueSize <= 0 {
		queueSize = DEFAULT_QUEUE_SIZE
	}
	b := &Bus{
		handlers: make(map[Type][]Handler),
		metrics:  m,
	}
	b.pools = map[Class]*util.Pool[Event]{
		CLASS_INTERNAL: util.NewPool("bus-internal", workers, queueSize, b.dispatch),
		CLASS_EXTERNAL: util.NewPool("bus-external", workers, queueSize, b.dispatch),
	}
	return b
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) Publish(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	class := ev.Class()
	err := b.pools[class].Submit(ev)
	if errors.Is(err, util.ErrQueueFull) {
		b.metrics.IncBusRejected(string(class))
		logger.Warn("event rejected, queue full", zap.String("class", string(class)), zap.String("type", string(ev.Type)),
			zap.String("stream", ev.StreamID), zap.String("node", ev.NodeID))
		return &CapacityError{Class: class}
	}
	return err
}

func (b *Bus) dispatch(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := b.handlers[ev.Type]
	b.mu.RUnlock()
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			logger.Error("event handler failed", zap.String("type", string(ev.Type)), zap.String("node", ev.NodeID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) Start(ctx context.Context) error {
	for _, p := range b.pools {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) Stop(timeout time.Duration) error {
	var errs []error
	for _, p := range b.pools {
		errs = append(errs, p.Stop(timeout))
	}
	return errors.Join(errs...)
}

func (b *Bus) Stats() map[Class]util.PoolStats {
	out := make(map[Class]util.PoolStats, len(b.pools))
	for class, p := range b.pools {
		out[class] = p.Stats()
	}
	return out
}
