package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/flowengine/logger"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const LOCK_KEY string = "LOCKS"

var _ Provider = new(RedisProvider)

// RedisProvider keeps every lease of a namespace in one hash of key -> {owner, refreshedAt}.
type RedisProvider struct {
	client rd.UniversalClient
	hash   string
}

func NewRedisProvider(client rd.UniversalClient, namespace string) *RedisProvider {
	return &RedisProvider{
		client: client,
		hash:   fmt.Sprintf("%s:%s", namespace, LOCK_KEY),
	}
}

var refreshScript = rd.NewScript(`
local payload = redis.call("HGET", KEYS[1], ARGV[1])
if not payload then
  return 0
end
local rec = cjson.decode(payload)
if rec["owner"] ~= ARGV[2] then
  return 0
end
rec["refreshedAt"] = tonumber(ARGV[3])
redis.call("HSET", KEYS[1], ARGV[1], cjson.encode(rec))
return 1
`)

var releaseScript = rd.NewScript(`
local payload = redis.call("HGET", KEYS[1], ARGV[1])
if not payload then
  return 0
end
local rec = cjson.decode(payload)
if rec["owner"] ~= ARGV[2] then
  return 0
end
return redis.call("HDEL", KEYS[1], ARGV[1])
`)

// sweepScript deletes a record only if it is byte-identical to what the sweeper read.
var sweepScript = rd.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
  return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

func (p *RedisProvider) TryAcquire(ctx context.Context, key string, owner string, now time.Time) (bool, error) {
	data, err := json.Marshal(record{Owner: owner, RefreshedAt: now.UnixMilli()})
	if err != nil {
		return false, err
	}
	return p.client.HSetNX(ctx, p.hash, key, string(data)).Result()
}

func (p *RedisProvider) Refresh(ctx context.Context, key string, owner string, now time.Time) (bool, error) {
	n, err := refreshScript.Run(ctx, p.client, []string{p.hash}, key, owner, now.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *RedisProvider) Release(ctx context.Context, key string, owner string) error {
	return releaseScript.Run(ctx, p.client, []string{p.hash}, key, owner).Err()
}

func (p *RedisProvider) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	all, err := p.client.HGetAll(ctx, p.hash).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for key, payload := range all {
		var rec record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			logger.Warn("dropping unreadable lease record", zap.String("key", key), zap.Error(err))
		} else if rec.RefreshedAt >= olderThan.UnixMilli() {
			continue
		}
		n, err := sweepScript.Run(ctx, p.client, []string{p.hash}, key, payload).Int()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}
