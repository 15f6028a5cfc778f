package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/backup"

	"go.uber.org/zap"
)

const nameLayout = "20060102-150405.000"

// Locker keeps clients that share a store from running the same scheduled
// backup twice.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler snapshots every course's saved progress into backup storage.
type Scheduler struct {
	backupService *backup.BackupService
	store         ports.KeyValueStore
	lock          Locker
	interval      time.Duration
	retention     time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time
	stopChan      chan struct{}
}

type Config struct {
	Interval      time.Duration
	RetentionDays int
}

func NewScheduler(backupService *backup.BackupService, store ports.KeyValueStore, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		backupService: backupService,
		store:         store,
		interval:      cfg.Interval,
		retention:     time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:        logger,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Start runs a backup immediately and then every interval until Stop or ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runBackup(ctx)
	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// WithLock makes scheduled runs skip while another client holds l.
func (s *Scheduler) WithLock(l Locker) *Scheduler {
	s.lock = l
	return s
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Warnw("backup lock unavailable", "error", err)
			return
		}
		if !ok {
			s.logger.Debugw("backup already running elsewhere")
			return
		}
		defer func() {
			if err := s.lock.Unlock(ctx); err != nil {
				s.logger.Warnw("failed to release backup lock", "error", err)
			}
		}()
	}

	name, err := s.BackupNow(ctx, "scheduled")
	if err != nil {
		s.logger.Errorw("scheduled backup failed", "error", err)
		return
	}
	s.logger.Infow("backup created", "backup_name", name)

	if err := s.cleanupOldBackups(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old backups", "error", err)
	}
}

// BackupNow writes one snapshot and returns its name.
func (s *Scheduler) BackupNow(ctx context.Context, kind string) (string, error) {
	data, err := CollectProgress(ctx, s.store)
	if err != nil {
		return "", err
	}
	data.Metadata["backup_type"] = kind
	return s.backupService.CreateBackup(ctx, data)
}

// CollectProgress reads every stored progress blob. Blobs that are not valid
// JSON are skipped.
func CollectProgress(ctx context.Context, store ports.KeyValueStore) (*backup.BackupData, error) {
	keys, err := store.Keys(ctx, domain.ProgressKeyPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list progress keys: %w", err)
	}

	data := &backup.BackupData{
		Progress: make(map[string]json.RawMessage, len(keys)),
		Metadata: make(map[string]string),
	}
	skipped := 0
	for _, key := range keys {
		courseID, ok := domain.CourseIDFromProgressKey(key)
		if !ok {
			continue
		}
		raw, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !json.Valid([]byte(raw)) {
			skipped++
			continue
		}
		data.Progress[string(courseID)] = json.RawMessage(raw)
	}
	data.Metadata["course_count"] = fmt.Sprint(len(data.Progress))
	if skipped > 0 {
		data.Metadata["skipped_corrupt"] = fmt.Sprint(skipped)
	}
	return data, nil
}

func (s *Scheduler) cleanupOldBackups(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}
	backups, err := s.backupService.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	cutoff := s.now().UTC().Add(-s.retention)
	for _, name := range backups {
		ts, ok := backupTime(name)
		if !ok {
			s.logger.Warnw("unrecognised backup name", "backup_name", name)
			continue
		}
		if ts.Before(cutoff) {
			if err := s.backupService.DeleteBackup(ctx, name); err != nil {
				s.logger.Warnw("failed to delete old backup", "backup_name", name, "error", err)
				continue
			}
			s.logger.Infow("deleted old backup", "backup_name", name)
		}
	}
	return nil
}

// backupTime parses the timestamp out of "progress-<ts>.json".
func backupTime(name string) (time.Time, bool) {
	name = strings.TrimSuffix(name, ".json")
	i := strings.IndexByte(name, '-')
	if i < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(nameLayout, name[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
