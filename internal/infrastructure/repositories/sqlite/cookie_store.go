package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
)

type SQLiteCookieStore struct {
	store *Store
	now   func() time.Time
}

func NewSQLiteCookieStore(store *Store) ports.CookieStore {
	return &SQLiteCookieStore{store: store, now: time.Now}
}

func (s *SQLiteCookieStore) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.store.db.QueryRowContext(ctx,
		`SELECT value FROM cookies WHERE name = ? AND expires_at > ?`,
		name, s.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: get cookie %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteCookieStore) Set(ctx context.Context, name, value string, expires time.Time) error {
	if !expires.After(s.now()) {
		return s.Remove(ctx, name)
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO cookies (name, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		name, value, expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("storage: set cookie %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteCookieStore) Remove(ctx context.Context, name string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM cookies WHERE name = ?`, name); err != nil {
		return fmt.Errorf("storage: remove cookie %s: %w", name, err)
	}
	return nil
}
