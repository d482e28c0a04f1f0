package kv

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ProjectMoon/reed/internal/config"
	"github.com/ProjectMoon/reed/internal/keys"
)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to the Redis server in cfg and verifies the connection,
// including authentication when a password is set.
func OpenRedis(ctx context.Context, cfg config.Store) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := NewRedisStore(client)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping implements Store.Ping.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", keys.Key{}, err)
	}
	return nil
}

// Close implements Store.Close.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return storeErr("close", keys.Key{}, err)
	}
	return nil
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, key keys.Key) (string, bool, error) {
	v, err := s.client.Get(ctx, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return v, true, nil
}

// HGetAll implements Store.HGetAll.
func (s *RedisStore) HGetAll(ctx context.Context, key keys.Key) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key.String()).Result()
	if err != nil {
		return nil, storeErr("hgetall", key, err)
	}
	return m, nil
}

// ZRevRange implements Store.ZRevRange.
func (s *RedisStore) ZRevRange(ctx context.Context, key keys.Key) ([]string, error) {
	members, err := s.client.ZRevRange(ctx, key.String(), 0, -1).Result()
	if err != nil {
		return nil, storeErr("zrevrange", key, err)
	}
	return members, nil
}

// ZRevRangeByScore implements Store.ZRevRangeByScore.
func (s *RedisStore) ZRevRangeByScore(ctx context.Context, key keys.Key, min, max float64) ([]string, error) {
	members, err := s.client.ZRevRangeByScore(ctx, key.String(), &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, storeErr("zrevrangebyscore", key, err)
	}
	return members, nil
}

// SMembers implements Store.SMembers.
func (s *RedisStore) SMembers(ctx context.Context, key keys.Key) ([]string, error) {
	members, err := s.client.SMembers(ctx, key.String()).Result()
	if err != nil {
		return nil, storeErr("smembers", key, err)
	}
	return members, nil
}

// SDiff implements Store.SDiff.
func (s *RedisStore) SDiff(ctx context.Context, key, other keys.Key) ([]string, error) {
	members, err := s.client.SDiff(ctx, key.String(), other.String()).Result()
	if err != nil {
		return nil, storeErr("sdiff", key, err)
	}
	return members, nil
}

// Pipeline implements Store.Pipeline. Redis executes every queued command;
// the first failure is returned.
func (s *RedisStore) Pipeline(ctx context.Context, fn func(w Writer)) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		fn(redisWriter{ctx: ctx, p: p})
		return nil
	})
	if err != nil {
		return storeErr("pipeline", keys.Key{}, err)
	}
	return nil
}

// Atomic implements Store.Atomic using MULTI/EXEC.
func (s *RedisStore) Atomic(ctx context.Context, fn func(w Writer)) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(redisWriter{ctx: ctx, p: p})
		return nil
	})
	if err != nil {
		return storeErr("multi", keys.Key{}, err)
	}
	return nil
}

type redisWriter struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (w redisWriter) Set(key keys.Key, value string) {
	w.p.Set(w.ctx, key.String(), value, 0)
}

func (w redisWriter) Del(ks ...keys.Key) {
	if len(ks) == 0 {
		return
	}
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.String()
	}
	w.p.Del(w.ctx, names...)
}

func (w redisWriter) HSet(key keys.Key, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	args := make([]interface{}, 0, len(fields)*2)
	for field, value := range fields {
		args = append(args, field, value)
	}
	w.p.HSet(w.ctx, key.String(), args...)
}

func (w redisWriter) ZAdd(key keys.Key, score float64, member string) {
	w.p.ZAdd(w.ctx, key.String(), redis.Z{Score: score, Member: member})
}

func (w redisWriter) ZRem(key keys.Key, members ...string) {
	if len(members) == 0 {
		return
	}
	w.p.ZRem(w.ctx, key.String(), toArgs(members)...)
}

func (w redisWriter) SAdd(key keys.Key, members ...string) {
	if len(members) == 0 {
		return
	}
	w.p.SAdd(w.ctx, key.String(), toArgs(members)...)
}

func (w redisWriter) SRem(key keys.Key, members ...string) {
	if len(members) == 0 {
		return
	}
	w.p.SRem(w.ctx, key.String(), toArgs(members)...)
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
