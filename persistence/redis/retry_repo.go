package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
	rd "github.com/redis/go-redis/v9"
)

const RETRY_KEY string = "RETRY"
const RETRY_DUE_KEY string = "RETRY_DUE"

var _ persistence.RetryRepo = new(redisRetryRepo)

// redisRetryRepo keeps records in a hash and schedules them in a sorted set scored by due time in microseconds.
type redisRetryRepo struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.FlowRetryRecord]
}

func NewRedisRetryRepo(baseDao *baseDao, encoderDecoder util.EncoderDecoder[model.FlowRetryRecord]) *redisRetryRepo {
	return &redisRetryRepo{
		baseDao:        baseDao,
		encoderDecoder: encoderDecoder,
	}
}

func (r *redisRetryRepo) Save(ctx context.Context, record *model.FlowRetryRecord) error {
	data, err := r.encoderDecoder.Encode(*record)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, r.getNamespaceKey(RETRY_KEY), record.EntityID, string(data))
		pipe.ZAdd(ctx, r.getNamespaceKey(RETRY_DUE_KEY), rd.Z{
			Score:  float64(record.NextRetryTime.UnixMicro()),
			Member: record.EntityID,
		})
		return nil
	})
	return storageError(err)
}

func (r *redisRetryRepo) Find(ctx context.Context, entityID string) (*model.FlowRetryRecord, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(RETRY_KEY), entityID).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisRetryRepo) FindDue(ctx context.Context, before time.Time, limit int) ([]*model.FlowRetryRecord, error) {
	opt := &rd.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMicro(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := r.redisClient.ZRangeByScore(ctx, r.getNamespaceKey(RETRY_DUE_KEY), opt).Result()
	if err != nil {
		return nil, storageError(err)
	}
	records, err := hmget(ctx, r.redisClient, r.getNamespaceKey(RETRY_KEY), ids, r.encoderDecoder)
	if err != nil {
		return nil, err
	}
	due := records[:0]
	for _, rec := range records {
		if !rec.NextRetryTime.After(before) {
			due = append(due, rec)
		}
	}
	persistence.SortRetryRecords(due)
	return due, nil
}

func (r *redisRetryRepo) Delete(ctx context.Context, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(entityIDs))
	for _, id := range entityIDs {
		members = append(members, id)
	}
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HDel(ctx, r.getNamespaceKey(RETRY_KEY), entityIDs...)
		pipe.ZRem(ctx, r.getNamespaceKey(RETRY_DUE_KEY), members...)
		return nil
	})
	return storageError(err)
}
