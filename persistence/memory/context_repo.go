package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
)

var _ persistence.ContextRepo = new(ContextRepo)

// ContextRepo keeps encoded contexts so callers never share memory with the store.
type ContextRepo struct {
	mu     sync.RWMutex
	rows   map[string][]byte
	encDec util.EncoderDecoder[model.FlowContext]
}

func NewContextRepo() *ContextRepo {
	return &ContextRepo{
		rows:   make(map[string][]byte),
		encDec: util.NewJsonEncoderDecoder[model.FlowContext](),
	}
}

func (r *ContextRepo) Save(ctx context.Context, flowCtx *model.FlowContext) error {
	data, err := r.encDec.Encode(*flowCtx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[flowCtx.ID] = data
	return nil
}

func (r *ContextRepo) Find(ctx context.Context, id string) (*model.FlowContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.rows[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return r.encDec.Decode(data)
}

func (r *ContextRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.FlowContext, 0, len(ids))
	for _, id := range ids {
		data, ok := r.rows[id]
		if !ok {
			continue
		}
		c, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ContextRepo) FindPending(ctx context.Context, streamID string, nodeID string) ([]*model.FlowContext, error) {
	return r.filter(func(c *model.FlowContext) bool {
		return c.StreamID == streamID && c.NodeID == nodeID && c.Status == model.CONTEXT_PENDING
	})
}

func (r *ContextRepo) FindByTraceIDs(ctx context.Context, traceIDs []string) ([]*model.FlowContext, error) {
	traces := toSet(traceIDs)
	return r.filter(func(c *model.FlowContext) bool {
		return traces[c.TraceID]
	})
}

func (r *ContextRepo) filter(keep func(c *model.FlowContext) bool) ([]*model.FlowContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.FlowContext
	for _, data := range r.rows {
		c, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	persistence.SortContexts(out)
	return out, nil
}

func (r *ContextRepo) BatchCreate(ctx context.Context, contexts []*model.FlowContext) error {
	encoded, err := r.encodeAll(contexts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contexts {
		if _, ok := r.rows[c.ID]; ok {
			return persistence.StorageLayerError{Message: "context " + c.ID + " already exists"}
		}
	}
	for i, c := range contexts {
		r.rows[c.ID] = encoded[i]
	}
	return nil
}

func (r *ContextRepo) BatchUpdate(ctx context.Context, contexts []*model.FlowContext) error {
	encoded, err := r.encodeAll(contexts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contexts {
		if _, ok := r.rows[c.ID]; !ok {
			return persistence.ErrNotFound
		}
	}
	for i, c := range contexts {
		r.rows[c.ID] = encoded[i]
	}
	return nil
}

func (r *ContextRepo) UpdateStatus(ctx context.Context, ids []string, status model.ContextStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	updated := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, ok := r.rows[id]
		if !ok {
			continue
		}
		c, err := r.encDec.Decode(data)
		if err != nil {
			return err
		}
		c.Status = status
		c.UpdatedAt = now
		if updated[id], err = r.encDec.Encode(*c); err != nil {
			return err
		}
	}
	for id, data := range updated {
		r.rows[id] = data
	}
	return nil
}

func (r *ContextRepo) DeleteByTraceIDs(ctx context.Context, traceIDs []string) error {
	traces := toSet(traceIDs)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, data := range r.rows {
		c, err := r.encDec.Decode(data)
		if err != nil {
			return err
		}
		if traces[c.TraceID] {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *ContextRepo) encodeAll(contexts []*model.FlowContext) ([][]byte, error) {
	out := make([][]byte, 0, len(contexts))
	for _, c := range contexts {
		data, err := r.encDec.Encode(*c)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
