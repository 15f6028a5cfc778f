package redis

import (
	"context"
	"fmt"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisCookieStore maps cookie expiry onto Redis key TTLs.
type RedisCookieStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCookieStore(client *redis.Client, prefix string) ports.CookieStore {
	return &RedisCookieStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisCookieStore) key(name string) string {
	return cookiePrefix(r.prefix) + name
}

func (r *RedisCookieStore) Get(ctx context.Context, name string) (string, error) {
	val, err := r.client.Get(ctx, r.key(name)).Result()
	if err == redis.Nil {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cookie %s: %w", name, err)
	}
	return val, nil
}

func (r *RedisCookieStore) Set(ctx context.Context, name, value string, expires time.Time) error {
	ttl := expires.Sub(r.now())
	if ttl <= 0 {
		return r.Remove(ctx, name)
	}
	if err := r.client.Set(ctx, r.key(name), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cookie %s: %w", name, err)
	}
	return nil
}

func (r *RedisCookieStore) Remove(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to remove cookie %s: %w", name, err)
	}
	return nil
}
