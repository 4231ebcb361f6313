package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
	rd "github.com/redis/go-redis/v9"
)

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
}

func NewBaseDao(conf Config) *baseDao {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		PoolSize: conf.PoolSize,
	})
	return NewBaseDaoWithClient(redisClient, conf.Namespace)
}

func NewBaseDaoWithClient(client rd.UniversalClient, namespace string) *baseDao {
	return &baseDao{
		redisClient: client,
		namespace:   namespace,
	}
}

func (bs *baseDao) Client() rd.UniversalClient {
	return bs.redisClient
}

func (bs *baseDao) Close() error {
	return bs.redisClient.Close()
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rd.Nil) {
		return persistence.ErrNotFound
	}
	var sle persistence.StorageLayerError
	if errors.As(err, &sle) || errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	return persistence.StorageLayerError{Message: err.Error()}
}

// hmget loads the encoded rows of ids from a hash, skipping ids that are absent.
func hmget[T any](ctx context.Context, client rd.Cmdable, key string, ids []string, encDec util.EncoderDecoder[T]) ([]*T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := client.HMGet(ctx, key, ids...).Result()
	if err != nil {
		return nil, storageError(err)
	}
	out := make([]*T, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		item, err := encDec.Decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
