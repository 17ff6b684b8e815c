package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

// casScript performs the version compare-and-set atomically. Each key is a
// hash with a "value" and a "version" field; -1 signals a conflict.
var casScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
local expected = tonumber(ARGV[1])
if current == false then
  if expected ~= 0 then
    return -1
  end
  redis.call('HSET', KEYS[1], 'value', ARGV[2], 'version', 1)
  if tonumber(ARGV[3]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
  end
  return 1
end
if tonumber(current) ~= expected then
  return -1
end
local next = expected + 1
redis.call('HSET', KEYS[1], 'value', ARGV[2], 'version', next)
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return next
`)

type redisStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisStore connects to REDIS_ADDR and verifies the connection with a
// ping. ttl bounds how long an abandoned session lingers; zero disables
// expiry.
func NewRedisStore(log *logger.Logger, ttl time.Duration) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisStore{
		log: log.With("service", "RedisStateStore"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	res, err := s.rdb.HMGet(ctx, key, "value", "version").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	if res[0] == nil || res[1] == nil {
		return nil, 0, nil
	}
	raw, ok := res[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("redis get %s: unexpected value type %T", key, res[0])
	}
	verStr, ok := res[1].(string)
	if !ok {
		return nil, 0, fmt.Errorf("redis get %s: unexpected version type %T", key, res[1])
	}
	var version int64
	if _, err := fmt.Sscanf(verStr, "%d", &version); err != nil {
		return nil, 0, fmt.Errorf("redis get %s: bad version %q: %w", key, verStr, err)
	}
	return []byte(raw), version, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	next, err := casScript.Run(ctx, s.rdb, []string{key}, expectedVersion, string(value), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis set %s: %w", key, err)
	}
	if next < 0 {
		return 0, fmt.Errorf("%w: key %s expected version %d", apperrors.ErrVersionConflict, key, expectedVersion)
	}
	return next, nil
}

func (s *redisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
