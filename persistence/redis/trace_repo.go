package redis

import (
	"context"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
	rd "github.com/redis/go-redis/v9"
)

const TRACE_KEY string = "TRACE"
const TRACE_STATUS_KEY string = "TRACE_STATUS"

var _ persistence.TraceRepo = new(redisTraceRepo)

type redisTraceRepo struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.FlowTrace]
}

func NewRedisTraceRepo(baseDao *baseDao, encoderDecoder util.EncoderDecoder[model.FlowTrace]) *redisTraceRepo {
	return &redisTraceRepo{
		baseDao:        baseDao,
		encoderDecoder: encoderDecoder,
	}
}

func (r *redisTraceRepo) write(ctx context.Context, pipe rd.Pipeliner, trace *model.FlowTrace) error {
	data, err := r.encoderDecoder.Encode(*trace)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, r.getNamespaceKey(TRACE_KEY), trace.ID, string(data))
	for _, status := range model.TRACE_STATUSES {
		if status == trace.Status {
			pipe.SAdd(ctx, r.statusKey(status), trace.ID)
		} else {
			pipe.SRem(ctx, r.statusKey(status), trace.ID)
		}
	}
	return nil
}

func (r *redisTraceRepo) statusKey(status model.TraceStatus) string {
	return r.getNamespaceKey(TRACE_STATUS_KEY, string(status))
}

func (r *redisTraceRepo) writeAll(ctx context.Context, traces []*model.FlowTrace) error {
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, t := range traces {
			if err := r.write(ctx, pipe, t); err != nil {
				return err
			}
		}
		return nil
	})
	return storageError(err)
}

func (r *redisTraceRepo) Save(ctx context.Context, trace *model.FlowTrace) error {
	return r.writeAll(ctx, []*model.FlowTrace{trace})
}

func (r *redisTraceRepo) Find(ctx context.Context, id string) (*model.FlowTrace, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(TRACE_KEY), id).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisTraceRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowTrace, error) {
	return hmget(ctx, r.redisClient, r.getNamespaceKey(TRACE_KEY), ids, r.encoderDecoder)
}

func (r *redisTraceRepo) BatchCreate(ctx context.Context, traces []*model.FlowTrace) error {
	return r.batch(ctx, traces, func(found int) error {
		if found != 0 {
			return persistence.StorageLayerError{Message: "trace already exists"}
		}
		return nil
	})
}

func (r *redisTraceRepo) BatchUpdate(ctx context.Context, traces []*model.FlowTrace) error {
	return r.batch(ctx, traces, func(found int) error {
		if found != len(traces) {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func (r *redisTraceRepo) batch(ctx context.Context, traces []*model.FlowTrace, check func(found int) error) error {
	if len(traces) == 0 {
		return nil
	}
	key := r.getNamespaceKey(TRACE_KEY)
	ids := make([]string, 0, len(traces))
	for _, t := range traces {
		ids = append(ids, t.ID)
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
			for _, t := range traces {
				if err := r.write(ctx, pipe, t); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}, key)
	return storageError(err)
}

func (r *redisTraceRepo) UpdateStatus(ctx context.Context, ids []string, status model.TraceStatus) error {
	traces, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, t := range traces {
		t.Status = status
		t.UpdatedAt = now
		if t.IsFinished() && t.EndTime.IsZero() {
			t.EndTime = now
		}
	}
	return r.writeAll(ctx, traces)
}

func (r *redisTraceRepo) UpdateContextPool(ctx context.Context, traceIDs []string, contextIDs []string) error {
	traces, err := r.FindByIDs(ctx, traceIDs)
	if err != nil {
		return err
	}
	if len(traces) != len(traceIDs) {
		return persistence.ErrNotFound
	}
	now := time.Now().UTC()
	for _, t := range traces {
		t.ContextPool = append([]string{}, contextIDs...)
		t.UpdatedAt = now
	}
	return r.writeAll(ctx, traces)
}

func (r *redisTraceRepo) FindRunningTraces(ctx context.Context) ([]*model.FlowTrace, error) {
	return r.FindByStatus(ctx, model.TRACE_RUNNING)
}

func (r *redisTraceRepo) FindByStatus(ctx context.Context, status model.TraceStatus) ([]*model.FlowTrace, error) {
	ids, err := r.redisClient.SMembers(ctx, r.statusKey(status)).Result()
	if err != nil {
		return nil, storageError(err)
	}
	traces, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	matched := traces[:0]
	for _, t := range traces {
		if t.Status == status {
			matched = append(matched, t)
		}
	}
	persistence.SortTraces(matched)
	return matched, nil
}

func (r *redisTraceRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HDel(ctx, r.getNamespaceKey(TRACE_KEY), ids...)
		members := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			members = append(members, id)
		}
		for _, status := range model.TRACE_STATUSES {
			pipe.SRem(ctx, r.statusKey(status), members...)
		}
		return nil
	})
	return storageError(err)
}
