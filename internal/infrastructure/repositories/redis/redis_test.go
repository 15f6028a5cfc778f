package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/pkg/retry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a reachable Redis; set MICROCOURSES_TEST_REDIS to its
// address to run them.
func testOptions(t *testing.T) Options {
	t.Helper()
	addr := os.Getenv("MICROCOURSES_TEST_REDIS")
	if addr == "" {
		t.Skip("MICROCOURSES_TEST_REDIS not set")
	}
	return Options{
		Address:   addr,
		PoolSize:  2,
		KeyPrefix: "microcourses-test:" + uuid.NewString() + ":",
		Retry:     retry.Config{MaxAttempts: 1},
	}
}

func TestRedisStores(t *testing.T) {
	opts := testOptions(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, opts, nil)
	require.NoError(t, err)
	defer CloseRedisClient(client)
	defer func() {
		iter := client.Scan(ctx, 0, opts.KeyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}()

	kv := NewRedisKeyValueStore(client, opts.KeyPrefix)
	_, err = kv.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "videoProgress_c1", "{}"))
	require.NoError(t, kv.Set(ctx, "token", "abc"))
	keys, err := kv.Keys(ctx, "videoProgress_")
	require.NoError(t, err)
	assert.Equal(t, []string{"videoProgress_c1"}, keys)

	require.NoError(t, kv.Delete(ctx, "token"))
	_, err = kv.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cookies := NewRedisCookieStore(client, opts.KeyPrefix)
	require.NoError(t, cookies.Set(ctx, "token", "abc", time.Now().Add(time.Hour)))
	v, err := cookies.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, cookies.Set(ctx, "token", "abc", time.Now().Add(-time.Minute)))
	_, err = cookies.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	opts := Options{
		Address:  "127.0.0.1:1",
		PoolSize: 1,
		Retry:    retry.Config{MaxAttempts: 1},
	}
	_, err := NewRedisClient(context.Background(), opts, nil)
	assert.Error(t, err)
}
