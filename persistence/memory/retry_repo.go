package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
)

var _ persistence.RetryRepo = new(RetryRepo)

type RetryRepo struct {
	mu   sync.RWMutex
	rows map[string]model.FlowRetryRecord
}

func NewRetryRepo() *RetryRepo {
	return &RetryRepo{rows: make(map[string]model.FlowRetryRecord)}
}

func (r *RetryRepo) Save(ctx context.Context, record *model.FlowRetryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[record.EntityID] = *record
	return nil
}

func (r *RetryRepo) Find(ctx context.Context, entityID string) (*model.FlowRetryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[entityID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &rec, nil
}

func (r *RetryRepo) FindDue(ctx context.Context, before time.Time, limit int) ([]*model.FlowRetryRecord, error) {
	r.mu.RLock()
	var out []*model.FlowRetryRecord
	for _, rec := range r.rows {
		if !rec.NextRetryTime.After(before) {
			rec := rec
			out = append(out, &rec)
		}
	}
	r.mu.RUnlock()
	persistence.SortRetryRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RetryRepo) Delete(ctx context.Context, entityIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range entityIDs {
		delete(r.rows, id)
	}
	return nil
}
