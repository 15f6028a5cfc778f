package memory

import (
	"context"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"

	"github.com/patrickmn/go-cache"
)

// MemoryCookieStore keeps cookies in process memory. Each cookie carries its
// own expiry; go-cache drops it once that passes.
type MemoryCookieStore struct {
	cookies *cache.Cache
	now     func() time.Time
}

func NewMemoryCookieStore() ports.CookieStore {
	return &MemoryCookieStore{
		cookies: cache.New(cache.NoExpiration, 10*time.Minute),
		now:     time.Now,
	}
}

func (s *MemoryCookieStore) Get(ctx context.Context, name string) (string, error) {
	v, found := s.cookies.Get(name)
	if !found {
		return "", domain.ErrNotFound
	}
	value, ok := v.(string)
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

// Set stores the cookie until expires. An expiry in the past removes it, as
// a browser would.
func (s *MemoryCookieStore) Set(ctx context.Context, name, value string, expires time.Time) error {
	ttl := expires.Sub(s.now())
	if ttl <= 0 {
		s.cookies.Delete(name)
		return nil
	}
	s.cookies.Set(name, value, ttl)
	return nil
}

func (s *MemoryCookieStore) Remove(ctx context.Context, name string) error {
	s.cookies.Delete(name)
	return nil
}
