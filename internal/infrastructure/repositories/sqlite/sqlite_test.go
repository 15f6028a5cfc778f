package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"microcourses/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteKeyValueStore(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)
	kv := NewSQLiteKeyValueStore(store)

	_, err := kv.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "videoProgress_c1", `{"a":1}`))
	require.NoError(t, kv.Set(ctx, "videoProgress_c1", `{"a":2}`))
	require.NoError(t, kv.Set(ctx, "videoProgress_%", `{}`))
	require.NoError(t, kv.Set(ctx, "token", "abc"))

	v, err := kv.Get(ctx, "videoProgress_c1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, v)

	keys, err := kv.Keys(ctx, "videoProgress_")
	require.NoError(t, err)
	assert.Equal(t, []string{"videoProgress_%", "videoProgress_c1"}, keys)

	require.NoError(t, kv.Delete(ctx, "token"))
	_, err = kv.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// reopening runs no migration twice and keeps data
	require.NoError(t, store.Close())
	reopened, err := Open(path, time.Second)
	require.NoError(t, err)
	defer reopened.Close()
	v, err = NewSQLiteKeyValueStore(reopened).Get(ctx, "videoProgress_c1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, v)
}

func TestSQLiteCookieStore(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	cookies := NewSQLiteCookieStore(store).(*SQLiteCookieStore)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cookies.now = func() time.Time { return now }

	require.NoError(t, cookies.Set(ctx, "token", "abc", now.Add(time.Hour)))
	v, err := cookies.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	now = now.Add(2 * time.Hour)
	_, err = cookies.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, cookies.Set(ctx, "token", "def", now.Add(time.Hour)))
	require.NoError(t, cookies.Remove(ctx, "token"))
	_, err = cookies.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
