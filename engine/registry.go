package engine

import (
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/metrics"
	c "github.com/patrickmn/go-cache"
)

// Registry holds the live publisher of every stream this process has dispatched. It is never
// persisted: a restarted process rebuilds publishers lazily.
type Registry struct {
	store   *c.Cache
	locks   sync.Map
	metrics metrics.Metrics
}

func NewRegistry(m metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.Noop{}
	}
	r := &Registry{
		store:   c.New(c.NoExpiration, 10*time.Minute),
		metrics: m,
	}
	r.store.OnEvicted(func(streamID string, v interface{}) {
		v.(*Publisher).retire()
	})
	return r
}

// streamLock serializes creation and removal per stream, other streams are not held up.
func (r *Registry) streamLock(streamID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(streamID, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

func (r *Registry) Get(streamID string) (*Publisher, bool) {
	if v, ok := r.store.Get(streamID); ok {
		return v.(*Publisher), true
	}
	return nil, false
}

// GetOrCreate returns the publisher of streamID, calling create at most once per stream even
// when many callers race on the first lookup. A failed create leaves nothing behind.
func (r *Registry) GetOrCreate(streamID string, create func() (*Publisher, error)) (*Publisher, error) {
	if p, ok := r.Get(streamID); ok {
		return p, nil
	}
	mu := r.streamLock(streamID)
	mu.Lock()
	defer mu.Unlock()
	if p, ok := r.Get(streamID); ok {
		return p, nil
	}
	p, err := create()
	if err != nil {
		return nil, err
	}
	r.store.Set(streamID, p, c.NoExpiration)
	r.metrics.SetPublishers(r.store.ItemCount())
	return p, nil
}

// Acquire is GetOrCreate with a use held on the publisher. Its executors stay open until the
// use is released, even if the stream is removed meanwhile.
func (r *Registry) Acquire(streamID string, create func() (*Publisher, error)) (*Publisher, error) {
	for {
		p, err := r.GetOrCreate(streamID, create)
		if err != nil {
			return nil, err
		}
		if p.acquire() {
			return p, nil
		}
	}
}

func (r *Registry) Remove(streamID string) {
	mu := r.streamLock(streamID)
	mu.Lock()
	defer mu.Unlock()
	r.store.Delete(streamID)
	r.metrics.SetPublishers(r.store.ItemCount())
}

func (r *Registry) Clear() {
	for streamID := range r.store.Items() {
		r.Remove(streamID)
	}
	r.metrics.SetPublishers(r.store.ItemCount())
}

func (r *Registry) Size() int {
	return r.store.ItemCount()
}
