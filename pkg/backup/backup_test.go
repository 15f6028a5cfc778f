package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*BackupService, string) {
	t.Helper()
	tmpDir := t.TempDir()
	storage, err := NewFileStorage(tmpDir)
	require.NoError(t, err)
	return NewBackupService(storage, "1.0.0"), tmpDir
}

func TestBackupService_CreateAndRestore(t *testing.T) {
	service, tmpDir := newService(t)

	data := &BackupData{
		Progress: map[string]json.RawMessage{
			"c1": json.RawMessage(`{"l1":{"currentTime":42,"duration":600,"lastWatched":"2026-03-01T10:00:00Z"}}`),
		},
	}

	name, err := service.CreateBackup(context.Background(), data)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(tmpDir, name))

	restored, err := service.RestoreBackup(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", restored.Version)
	require.Contains(t, restored.Progress, "c1")
	assert.JSONEq(t, string(data.Progress["c1"]), string(restored.Progress["c1"]))
}

func TestBackupService_ListAndLatest(t *testing.T) {
	service, _ := newService(t)

	latest, err := service.LatestBackup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return ts }

	var names []string
	for i := 0; i < 3; i++ {
		name, err := service.CreateBackup(context.Background(), &BackupData{})
		require.NoError(t, err)
		names = append(names, name)
		ts = ts.Add(time.Second)
	}

	listed, err := service.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names, listed)

	latest, err = service.LatestBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names[2], latest)
}

func TestBackupService_DeleteBackup(t *testing.T) {
	service, tmpDir := newService(t)

	name, err := service.CreateBackup(context.Background(), &BackupData{})
	require.NoError(t, err)

	require.NoError(t, service.DeleteBackup(context.Background(), name))
	_, err = os.Stat(filepath.Join(tmpDir, name))
	assert.True(t, os.IsNotExist(err))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("{not json")))
	assert.Error(t, err)

	data, err := Decode(bytes.NewReader([]byte(`{"version":"1.0.0"}`)))
	require.NoError(t, err)
	assert.NotNil(t, data.Progress)
}

func TestFileStorage(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, "test.txt", bytes.NewReader([]byte("test data"))))

	loaded, err := storage.Load(ctx, "test.txt")
	require.NoError(t, err)
	content, err := io.ReadAll(loaded)
	loaded.Close()
	require.NoError(t, err)
	assert.Equal(t, "test data", string(content))

	files, err := storage.List(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, files)

	require.NoError(t, storage.Delete(ctx, "test.txt"))

	assert.Error(t, storage.Save(ctx, "../escape.txt", bytes.NewReader(nil)))
}
