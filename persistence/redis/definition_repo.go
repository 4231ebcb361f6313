package redis

import (
	"context"
	"sort"

	"github.com/mohitkumar/flowengine/persistence"
)

const DEFINITION_KEY string = "DEF"

var _ persistence.DefinitionRepo = new(redisDefinitionRepo)

type redisDefinitionRepo struct {
	*baseDao
}

func NewRedisDefinitionRepo(baseDao *baseDao) *redisDefinitionRepo {
	return &redisDefinitionRepo{baseDao: baseDao}
}

func (r *redisDefinitionRepo) Save(ctx context.Context, streamID string, payload []byte) error {
	err := r.redisClient.HSet(ctx, r.getNamespaceKey(DEFINITION_KEY), streamID, string(payload)).Err()
	return storageError(err)
}

func (r *redisDefinitionRepo) Get(ctx context.Context, streamID string) ([]byte, error) {
	val, err := r.redisClient.HGet(ctx, r.getNamespaceKey(DEFINITION_KEY), streamID).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return []byte(val), nil
}

func (r *redisDefinitionRepo) Delete(ctx context.Context, streamID string) error {
	return storageError(r.redisClient.HDel(ctx, r.getNamespaceKey(DEFINITION_KEY), streamID).Err())
}

func (r *redisDefinitionRepo) List(ctx context.Context) ([]string, error) {
	ids, err := r.redisClient.HKeys(ctx, r.getNamespaceKey(DEFINITION_KEY)).Result()
	if err != nil {
		return nil, storageError(err)
	}
	sort.Strings(ids)
	return ids, nil
}
