package memory

import (
	"context"
	"sync"

	"github.com/mohitkumar/flowengine/persistence"
)

var _ persistence.DefinitionRepo = new(DefinitionRepo)

type DefinitionRepo struct {
	mu   sync.RWMutex
	rows map[string][]byte
}

func NewDefinitionRepo() *DefinitionRepo {
	return &DefinitionRepo{rows: make(map[string][]byte)}
}

func (r *DefinitionRepo) Save(ctx context.Context, streamID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[streamID] = append([]byte{}, payload...)
	return nil
}

func (r *DefinitionRepo) Get(ctx context.Context, streamID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payload, ok := r.rows[streamID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return append([]byte{}, payload...), nil
}

func (r *DefinitionRepo) Delete(ctx context.Context, streamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, streamID)
	return nil
}

func (r *DefinitionRepo) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rows), nil
}
