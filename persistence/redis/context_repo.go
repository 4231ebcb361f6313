package redis

import (
	"context"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
	rd "github.com/redis/go-redis/v9"
)

const CONTEXT_KEY string = "CTX"
const CONTEXT_PENDING_KEY string = "CTX_PENDING"
const TRACE_CONTEXT_KEY string = "TRACE_CTX"

var _ persistence.ContextRepo = new(redisContextRepo)

type redisContextRepo struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.FlowContext]
}

func NewRedisContextRepo(baseDao *baseDao, encoderDecoder util.EncoderDecoder[model.FlowContext]) *redisContextRepo {
	return &redisContextRepo{
		baseDao:        baseDao,
		encoderDecoder: encoderDecoder,
	}
}

func (r *redisContextRepo) pendingKey(streamID string, nodeID string) string {
	return r.getNamespaceKey(CONTEXT_PENDING_KEY, streamID, nodeID)
}

func (r *redisContextRepo) traceKey(traceID string) string {
	return r.getNamespaceKey(TRACE_CONTEXT_KEY, traceID)
}

// write queues the row and keeps the pending and per-trace indexes in line with its status.
func (r *redisContextRepo) write(ctx context.Context, pipe rd.Pipeliner, flowCtx *model.FlowContext) error {
	data, err := r.encoderDecoder.Encode(*flowCtx)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, r.getNamespaceKey(CONTEXT_KEY), flowCtx.ID, string(data))
	pipe.SAdd(ctx, r.traceKey(flowCtx.TraceID), flowCtx.ID)
	if flowCtx.Status == model.CONTEXT_PENDING {
		pipe.SAdd(ctx, r.pendingKey(flowCtx.StreamID, flowCtx.NodeID), flowCtx.ID)
	} else {
		pipe.SRem(ctx, r.pendingKey(flowCtx.StreamID, flowCtx.NodeID), flowCtx.ID)
	}
	return nil
}

func (r *redisContextRepo) Save(ctx context.Context, flowCtx *model.FlowContext) error {
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		return r.write(ctx, pipe, flowCtx)
	})
	return storageError(err)
}

func (r *redisContextRepo) Find(ctx context.Context, id string) (*model.FlowContext, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(CONTEXT_KEY), id).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisContextRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowContext, error) {
	return hmget(ctx, r.redisClient, r.getNamespaceKey(CONTEXT_KEY), ids, r.encoderDecoder)
}

func (r *redisContextRepo) FindPending(ctx context.Context, streamID string, nodeID string) ([]*model.FlowContext, error) {
	ids, err := r.redisClient.SMembers(ctx, r.pendingKey(streamID, nodeID)).Result()
	if err != nil {
		return nil, storageError(err)
	}
	contexts, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	pending := contexts[:0]
	for _, c := range contexts {
		if c.Status == model.CONTEXT_PENDING {
			pending = append(pending, c)
		}
	}
	persistence.SortContexts(pending)
	return pending, nil
}

func (r *redisContextRepo) traceContextIDs(ctx context.Context, traceIDs []string) ([]string, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(traceIDs))
	for _, id := range traceIDs {
		keys = append(keys, r.traceKey(id))
	}
	ids, err := r.redisClient.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return ids, nil
}

func (r *redisContextRepo) FindByTraceIDs(ctx context.Context, traceIDs []string) ([]*model.FlowContext, error) {
	ids, err := r.traceContextIDs(ctx, traceIDs)
	if err != nil {
		return nil, err
	}
	contexts, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	persistence.SortContexts(contexts)
	return contexts, nil
}

func (r *redisContextRepo) BatchCreate(ctx context.Context, contexts []*model.FlowContext) error {
	return r.batch(ctx, contexts, func(found int) error {
		if found != 0 {
			return persistence.StorageLayerError{Message: "context already exists"}
		}
		return nil
	})
}

func (r *redisContextRepo) BatchUpdate(ctx context.Context, contexts []*model.FlowContext) error {
	return r.batch(ctx, contexts, func(found int) error {
		if found != len(contexts) {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// batch checks how many of the rows already exist and writes them all in one transaction.
// The hash is watched so a concurrent writer aborts the transaction instead of interleaving.
func (r *redisContextRepo) batch(ctx context.Context, contexts []*model.FlowContext, check func(found int) error) error {
	if len(contexts) == 0 {
		return nil
	}
	key := r.getNamespaceKey(CONTEXT_KEY)
	ids := make([]string, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.ID)
	}
	err := r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		values, err := tx.HMGet(ctx, key, ids...).Result()
		if err != nil {
			return err
		}
		found := 0
		for _, v := range values {
			if v != nil {
				found++
			}
		}
		if err := check(found); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			for _, c := range contexts {
				if err := r.write(ctx, pipe, c); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}, key)
	return storageError(err)
}

func (r *redisContextRepo) UpdateStatus(ctx context.Context, ids []string, status model.ContextStatus) error {
	contexts, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(contexts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, c := range contexts {
			c.Status = status
			c.UpdatedAt = now
			if err := r.write(ctx, pipe, c); err != nil {
				return err
			}
		}
		return nil
	})
	return storageError(err)
}

func (r *redisContextRepo) DeleteByTraceIDs(ctx context.Context, traceIDs []string) error {
	contexts, err := r.FindByTraceIDs(ctx, traceIDs)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, c := range contexts {
			pipe.HDel(ctx, r.getNamespaceKey(CONTEXT_KEY), c.ID)
			pipe.SRem(ctx, r.pendingKey(c.StreamID, c.NodeID), c.ID)
		}
		for _, id := range traceIDs {
			pipe.Del(ctx, r.traceKey(id))
		}
		return nil
	})
	return storageError(err)
}
