package lock

import (
	"context"
	"sync"
	"time"
)

var _ Provider = new(MemoryProvider)

// MemoryProvider keeps leases for a single process.
type MemoryProvider struct {
	mu      sync.Mutex
	records map[string]record
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{records: make(map[string]record)}
}

func (p *MemoryProvider) TryAcquire(ctx context.Context, key string, owner string, now time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.records[key]; ok {
		return false, nil
	}
	p.records[key] = record{Owner: owner, RefreshedAt: now.UnixMilli()}
	return true, nil
}

func (p *MemoryProvider) Refresh(ctx context.Context, key string, owner string, now time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[key]
	if !ok || rec.Owner != owner {
		return false, nil
	}
	rec.RefreshedAt = now.UnixMilli()
	p.records[key] = rec
	return true, nil
}

func (p *MemoryProvider) Release(ctx context.Context, key string, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[key]; ok && rec.Owner == owner {
		delete(p.records, key)
	}
	return nil
}

func (p *MemoryProvider) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for key, rec := range p.records {
		if rec.RefreshedAt < olderThan.UnixMilli() {
			delete(p.records, key)
			removed++
		}
	}
	return removed, nil
}
