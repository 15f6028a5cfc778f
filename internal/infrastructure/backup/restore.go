package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/backup"

	"go.uber.org/zap"
)

var ErrNoBackup = errors.New("no backup found")

// RestoreService writes progress snapshots back into the key-value store.
type RestoreService struct {
	backupService *backup.BackupService
	store         ports.KeyValueStore
	logger        *zap.SugaredLogger
}

func NewRestoreService(backupService *backup.BackupService, store ports.KeyValueStore, logger *zap.SugaredLogger) *RestoreService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RestoreService{backupService: backupService, store: store, logger: logger}
}

type RestoreOptions struct {
	// OverwriteExisting replaces progress already saved for a course.
	OverwriteExisting bool
	// Courses limits the restore; empty means all.
	Courses []domain.CourseID
}

func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{}
}

// RestoreResult counts what happened per course.
type RestoreResult struct {
	Restored int
	Skipped  int
}

// RestoreFromBackup restores a named backup, or the latest when name is "".
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, options RestoreOptions) (RestoreResult, error) {
	if name == "" {
		latest, err := rs.backupService.LatestBackup(ctx)
		if err != nil {
			return RestoreResult{}, fmt.Errorf("failed to find latest backup: %w", err)
		}
		if latest == "" {
			return RestoreResult{}, ErrNoBackup
		}
		name = latest
	}
	rs.logger.Infow("starting restore", "backup_name", name, "overwrite", options.OverwriteExisting)

	data, err := rs.backupService.RestoreBackup(ctx, name)
	if err != nil {
		return RestoreResult{}, err
	}
	if data.Version == "" {
		return RestoreResult{}, fmt.Errorf("invalid backup %s: missing version", name)
	}
	return rs.Apply(ctx, data, options)
}

// Apply writes the progress contained in data.
func (rs *RestoreService) Apply(ctx context.Context, data *backup.BackupData, options RestoreOptions) (RestoreResult, error) {
	wanted := make(map[domain.CourseID]bool, len(options.Courses))
	for _, id := range options.Courses {
		wanted[id] = true
	}

	var res RestoreResult
	for course, blob := range data.Progress {
		courseID := domain.CourseID(course)
		if len(wanted) > 0 && !wanted[courseID] {
			continue
		}
		var records domain.CourseProgressRecords
		if err := json.Unmarshal(blob, &records); err != nil {
			rs.logger.Warnw("skipping unreadable progress in backup", "course_id", courseID, "error", err)
			res.Skipped++
			continue
		}

		key := domain.ProgressKey(courseID)
		if !options.OverwriteExisting {
			_, err := rs.store.Get(ctx, key)
			if err == nil {
				rs.logger.Debugw("keeping existing progress", "course_id", courseID)
				res.Skipped++
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return res, fmt.Errorf("failed to read %s: %w", key, err)
			}
		}
		if err := rs.store.Set(ctx, key, string(blob)); err != nil {
			return res, fmt.Errorf("failed to restore %s: %w", key, err)
		}
		res.Restored++
	}

	rs.logger.Infow("restore completed", "restored", res.Restored, "skipped", res.Skipped)
	return res, nil
}

// FindBackupByTime returns the newest backup taken at or before target.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, target time.Time) (string, error) {
	backups, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var (
		closest     string
		closestTime time.Time
		found       bool
	)
	for _, name := range backups {
		ts, ok := backupTime(name)
		if !ok || ts.After(target) {
			continue
		}
		if !found || ts.After(closestTime) {
			closest, closestTime, found = name, ts, true
		}
	}
	if !found {
		return "", fmt.Errorf("%w at or before %s", ErrNoBackup, target.Format(time.RFC3339))
	}
	return closest, nil
}

// List returns the stored backup names, oldest first.
func (rs *RestoreService) List(ctx context.Context) ([]string, error) {
	return rs.backupService.ListBackups(ctx)
}
