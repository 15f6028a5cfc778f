// Package backup stores snapshots of locally persisted learner progress.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

const namePrefix = "progress-"

// BackupData is the snapshot written to storage. Progress maps a course id to
// the raw per-lesson progress blob stored for that course.
type BackupData struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Progress  map[string]json.RawMessage `json:"progress"`
	Metadata  map[string]string          `json:"metadata,omitempty"`
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// BackupService handles backup operations
type BackupService struct {
	storage Storage
	version string
	now     func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(storage Storage, version string) *BackupService {
	return &BackupService{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// CreateBackup stamps data and saves it, returning the backup name.
func (bs *BackupService) CreateBackup(ctx context.Context, data *BackupData) (string, error) {
	data.Version = bs.version
	data.Timestamp = bs.now().UTC()
	if data.Progress == nil {
		data.Progress = map[string]json.RawMessage{}
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", namePrefix, data.Timestamp.Format("20060102-150405.000"))
	if err := bs.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}

	return name, nil
}

// RestoreBackup reads a backup by name.
func (bs *BackupService) RestoreBackup(ctx context.Context, name string) (*BackupData, error) {
	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	return Decode(reader)
}

// Decode parses a snapshot from r.
func Decode(r io.Reader) (*BackupData, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup data: %w", err)
	}

	var data BackupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup data: %w", err)
	}
	if data.Progress == nil {
		data.Progress = map[string]json.RawMessage{}
	}
	return &data, nil
}

// ListBackups lists backups, oldest first.
func (bs *BackupService) ListBackups(ctx context.Context) ([]string, error) {
	names, err := bs.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// LatestBackup returns the newest backup name, or "" when there is none.
func (bs *BackupService) LatestBackup(ctx context.Context) (string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[len(names)-1], nil
}

// DeleteBackup deletes a backup
func (bs *BackupService) DeleteBackup(ctx context.Context, name string) error {
	return bs.storage.Delete(ctx, name)
}
