package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
)

const cookieFile = "cookies.json"

type cookie struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// FileCookieStore keeps all cookies in a single JSON file. Expired entries
// are ignored on read and dropped on the next write.
type FileCookieStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewFileCookieStore(dir string) (ports.CookieStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileCookieStore{
		path: filepath.Join(dir, cookieFile),
		now:  time.Now,
	}, nil
}

func (s *FileCookieStore) load() (map[string]cookie, error) {
	jar := map[string]cookie{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return jar, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	if err := json.Unmarshal(data, &jar); err != nil {
		// an unreadable jar behaves like an empty one
		return map[string]cookie{}, nil
	}
	return jar, nil
}

func (s *FileCookieStore) save(jar map[string]cookie) error {
	now := s.now()
	for name, c := range jar {
		if !c.Expires.After(now) {
			delete(jar, name)
		}
	}
	data, err := json.Marshal(jar)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func (s *FileCookieStore) Get(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return "", err
	}
	c, ok := jar[name]
	if !ok || !c.Expires.After(s.now()) {
		return "", domain.ErrNotFound
	}
	return c.Value, nil
}

func (s *FileCookieStore) Set(ctx context.Context, name, value string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return err
	}
	jar[name] = cookie{Value: value, Expires: expires.UTC()}
	return s.save(jar)
}

func (s *FileCookieStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := jar[name]; !ok {
		return nil
	}
	delete(jar, name)
	return s.save(jar)
}
