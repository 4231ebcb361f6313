package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/flowengine/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

var ErrNotFound = errors.New("not found")

// ContextRepo stores flow contexts. Batch calls apply all rows or none.
type ContextRepo interface {
	Save(ctx context.Context, flowCtx *model.FlowContext) error
	Find(ctx context.Context, id string) (*model.FlowContext, error)
	// FindByIDs skips ids that do not exist.
	FindByIDs(ctx context.Context, ids []string) ([]*model.FlowContext, error)
	// FindPending returns the pending contexts sitting at a node, oldest first.
	FindPending(ctx context.Context, streamID string, nodeID string) ([]*model.FlowContext, error)
	FindByTraceIDs(ctx context.Context, traceIDs []string) ([]*model.FlowContext, error)
	BatchCreate(ctx context.Context, contexts []*model.FlowContext) error
	BatchUpdate(ctx context.Context, contexts []*model.FlowContext) error
	UpdateStatus(ctx context.Context, ids []string, status model.ContextStatus) error
	DeleteByTraceIDs(ctx context.Context, traceIDs []string) error
}

type TraceRepo interface {
	Save(ctx context.Context, trace *model.FlowTrace) error
	Find(ctx context.Context, id string) (*model.FlowTrace, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.FlowTrace, error)
	BatchCreate(ctx context.Context, traces []*model.FlowTrace) error
	BatchUpdate(ctx context.Context, traces []*model.FlowTrace) error
	UpdateStatus(ctx context.Context, ids []string, status model.TraceStatus) error
	FindRunningTraces(ctx context.Context) ([]*model.FlowTrace, error)
	// FindByStatus returns the traces in status, oldest first.
	FindByStatus(ctx context.Context, status model.TraceStatus) ([]*model.FlowTrace, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	// UpdateContextPool replaces the context pool of every listed trace with contextIDs.
	UpdateContextPool(ctx context.Context, traceIDs []string, contextIDs []string) error
}

type RetryRepo interface {
	// Save inserts or replaces the record of its entity.
	Save(ctx context.Context, record *model.FlowRetryRecord) error
	Find(ctx context.Context, entityID string) (*model.FlowRetryRecord, error)
	// FindDue returns up to limit records with NextRetryTime <= before, earliest first.
	FindDue(ctx context.Context, before time.Time, limit int) ([]*model.FlowRetryRecord, error)
	Delete(ctx context.Context, entityIDs []string) error
}

// DefinitionRepo keeps raw definition payloads by stream id.
type DefinitionRepo interface {
	Save(ctx context.Context, streamID string, payload []byte) error
	Get(ctx context.Context, streamID string) ([]byte, error)
	Delete(ctx context.Context, streamID string) error
	List(ctx context.Context) ([]string, error)
}
