package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
)

var _ persistence.TraceRepo = new(TraceRepo)

type TraceRepo struct {
	mu     sync.RWMutex
	rows   map[string][]byte
	encDec util.EncoderDecoder[model.FlowTrace]
}

func NewTraceRepo() *TraceRepo {
	return &TraceRepo{
		rows:   make(map[string][]byte),
		encDec: util.NewJsonEncoderDecoder[model.FlowTrace](),
	}
}

func (r *TraceRepo) Save(ctx context.Context, trace *model.FlowTrace) error {
	data, err := r.encDec.Encode(*trace)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[trace.ID] = data
	return nil
}

func (r *TraceRepo) Find(ctx context.Context, id string) (*model.FlowTrace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.rows[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return r.encDec.Decode(data)
}

func (r *TraceRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowTrace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.FlowTrace, 0, len(ids))
	for _, id := range ids {
		data, ok := r.rows[id]
		if !ok {
			continue
		}
		t, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TraceRepo) BatchCreate(ctx context.Context, traces []*model.FlowTrace) error {
	return r.write(traces, func(exists bool, id string) error {
		if exists {
			return persistence.StorageLayerError{Message: "trace " + id + " already exists"}
		}
		return nil
	})
}

func (r *TraceRepo) BatchUpdate(ctx context.Context, traces []*model.FlowTrace) error {
	return r.write(traces, func(exists bool, id string) error {
		if !exists {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func (r *TraceRepo) write(traces []*model.FlowTrace, check func(exists bool, id string) error) error {
	encoded := make([][]byte, 0, len(traces))
	for _, t := range traces {
		data, err := r.encDec.Encode(*t)
		if err != nil {
			return err
		}
		encoded = append(encoded, data)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range traces {
		_, exists := r.rows[t.ID]
		if err := check(exists, t.ID); err != nil {
			return err
		}
	}
	for i, t := range traces {
		r.rows[t.ID] = encoded[i]
	}
	return nil
}

func (r *TraceRepo) UpdateStatus(ctx context.Context, ids []string, status model.TraceStatus) error {
	now := time.Now().UTC()
	return r.mutate(ids, false, func(t *model.FlowTrace) {
		t.Status = status
		t.UpdatedAt = now
		if t.IsFinished() && t.EndTime.IsZero() {
			t.EndTime = now
		}
	})
}

func (r *TraceRepo) UpdateContextPool(ctx context.Context, traceIDs []string, contextIDs []string) error {
	now := time.Now().UTC()
	return r.mutate(traceIDs, true, func(t *model.FlowTrace) {
		t.ContextPool = append([]string{}, contextIDs...)
		t.UpdatedAt = now
	})
}

// mutate decodes, changes and re-encodes every listed trace, writing nothing if any step fails.
func (r *TraceRepo) mutate(ids []string, strict bool, change func(t *model.FlowTrace)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, ok := r.rows[id]
		if !ok {
			if strict {
				return persistence.ErrNotFound
			}
			continue
		}
		t, err := r.encDec.Decode(data)
		if err != nil {
			return err
		}
		change(t)
		if updated[id], err = r.encDec.Encode(*t); err != nil {
			return err
		}
	}
	for id, data := range updated {
		r.rows[id] = data
	}
	return nil
}

func (r *TraceRepo) FindRunningTraces(ctx context.Context) ([]*model.FlowTrace, error) {
	return r.FindByStatus(ctx, model.TRACE_RUNNING)
}

func (r *TraceRepo) FindByStatus(ctx context.Context, status model.TraceStatus) ([]*model.FlowTrace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.FlowTrace
	for _, data := range r.rows {
		t, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		if t.Status == status {
			out = append(out, t)
		}
	}
	persistence.SortTraces(out)
	return out, nil
}

func (r *TraceRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.rows, id)
	}
	return nil
}
