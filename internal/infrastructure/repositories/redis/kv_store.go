package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

func kvPrefix(prefix string) string     { return prefix + "kv:" }
func kvIndexKey(prefix string) string   { return prefix + "kv-index" }
func cookiePrefix(prefix string) string { return prefix + "cookie:" }

// RedisKeyValueStore stores each key as a Redis string and tracks the key
// names in a set so Keys does not need to SCAN.
type RedisKeyValueStore struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyValueStore(client *redis.Client, prefix string) ports.KeyValueStore {
	return &RedisKeyValueStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisKeyValueStore) key(k string) string {
	return kvPrefix(r.prefix) + k
}

func (r *RedisKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return val, nil
}

func (r *RedisKeyValueStore) Set(ctx context.Context, key, value string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, 0)
		pipe.SAdd(ctx, kvIndexKey(r.prefix), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (r *RedisKeyValueStore) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(key))
		pipe.SRem(ctx, kvIndexKey(r.prefix), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	return nil
}

func (r *RedisKeyValueStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	members, err := r.client.SMembers(ctx, kvIndexKey(r.prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var keys []string
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
