package auth

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// swapAccessScript replaces the access field of the token hash only when it
// still holds the value the caller read.
var swapAccessScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "access")
if cur == false then cur = "" end
if cur ~= ARGV[1] then return 0 end
redis.call("HSET", KEYS[1], "access", ARGV[2])
return 1
`)

// RedisStore keeps the token pair in a Redis hash, letting several client
// processes on one machine share a session.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore stores tokens under "<prefix>:tokens:<profile>".
func NewRedisStore(rdb *redis.Client, prefix, profile string) *RedisStore {
	if prefix == "" {
		prefix = "qr"
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{rdb: rdb, key: prefix + ":tokens:" + profile}
}

func (s *RedisStore) Load(ctx context.Context) (model.TokenPair, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: vals["access"], RefreshToken: vals["refresh"]}, nil
}

func (s *RedisStore) Save(ctx context.Context, tp model.TokenPair) error {
	return s.rdb.HSet(ctx, s.key, "access", tp.AccessToken, "refresh", tp.RefreshToken).Err()
}

func (s *RedisStore) SwapAccess(ctx context.Context, prev, next string) (bool, error) {
	n, err := swapAccessScript.Run(ctx, s.rdb, []string{s.key}, prev, next).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
