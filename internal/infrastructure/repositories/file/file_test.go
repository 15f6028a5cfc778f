package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"microcourses/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyValueStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileKeyValueStore(dir)
	require.NoError(t, err)

	_, err = s.Get(ctx, "videoProgress_c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "videoProgress_c1", `{"l1":{}}`))
	require.NoError(t, s.Set(ctx, "videoProgress_a/b", `{}`))
	require.NoError(t, s.Set(ctx, "token", "abc"))

	v, err := s.Get(ctx, "videoProgress_c1")
	require.NoError(t, err)
	assert.Equal(t, `{"l1":{}}`, v)

	keys, err := s.Keys(ctx, "videoProgress_")
	require.NoError(t, err)
	assert.Equal(t, []string{"videoProgress_a/b", "videoProgress_c1"}, keys)

	// survives a new instance over the same directory
	reopened, err := NewFileKeyValueStore(dir)
	require.NoError(t, err)
	v, err = reopened.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete(ctx, "token"))
	require.NoError(t, s.Delete(ctx, "token"))
	_, err = reopened.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileCookieStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileCookieStore(dir)
	require.NoError(t, err)
	s := store.(*FileCookieStore)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "token", "abc", now.Add(30*24*time.Hour)))
	v, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	now = now.Add(31 * 24 * time.Hour)
	_, err = s.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "token", "def", now.Add(time.Hour)))
	require.NoError(t, s.Remove(ctx, "token"))
	require.NoError(t, s.Remove(ctx, "token"))
	_, err = s.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileCookieStore_CorruptJar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cookieFile), []byte("{broken"), 0o600))

	s, err := NewFileCookieStore(dir)
	require.NoError(t, err)

	_, err = s.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, s.Set(ctx, "token", "abc", time.Now().Add(time.Hour)))
	v, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}
