// Package credentials keeps the bearer token in two places at once: an
// expiring cookie and a durable key-value entry.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultCookieTTL matches the 30 day cookie lifetime of the web client.
const DefaultCookieTTL = 30 * 24 * time.Hour

// Store implements ports.CredentialStore. Reads prefer the cookie and fall
// back to the durable entry; writes and clears always touch both.
type Store struct {
	cookies   ports.CookieStore
	durable   ports.KeyValueStore
	cookieTTL time.Duration
	now       func() time.Time
	logger    *zap.SugaredLogger

	// serializes Write and Clear so the two locations never interleave
	mu sync.Mutex
}

func NewStore(cookies ports.CookieStore, durable ports.KeyValueStore, cookieTTL time.Duration, logger *zap.SugaredLogger) *Store {
	if cookieTTL <= 0 {
		cookieTTL = DefaultCookieTTL
	}
	return &Store{
		cookies:   cookies,
		durable:   durable,
		cookieTTL: cookieTTL,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Store) Read(ctx context.Context) (string, error) {
	token, err := s.cookies.Get(ctx, domain.CredentialKey)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warnw("cookie store unreadable, using durable credential", "error", err)
	}

	token, err = s.durable.Get(ctx, domain.CredentialKey)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && token == "") {
		return "", domain.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return token, nil
}

// Write stores token in both locations. If the durable write fails the
// cookie is put back to what it held before, so the two never disagree.
func (s *Store) Write(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrEmptyCredential
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, prevErr := s.cookies.Get(ctx, domain.CredentialKey)

	if err := s.cookies.Set(ctx, domain.CredentialKey, token, s.expiry(token)); err != nil {
		return fmt.Errorf("failed to write credential cookie: %w", err)
	}

	if err := s.durable.Set(ctx, domain.CredentialKey, token); err != nil {
		var rollbackErr error
		if prevErr == nil && previous != "" {
			rollbackErr = s.cookies.Set(ctx, domain.CredentialKey, previous, s.expiry(previous))
		} else {
			rollbackErr = s.cookies.Remove(ctx, domain.CredentialKey)
		}
		if rollbackErr != nil {
			s.logger.Errorw("failed to roll back credential cookie", "error", rollbackErr)
		}
		return fmt.Errorf("failed to write durable credential: %w", err)
	}

	s.logger.Debugw("credential stored", "credential", utils.MaskSensitive(token, 6))
	return nil
}

// Clear removes the token from both locations, attempting both even when
// the first removal fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.cookies.Remove(ctx, domain.CredentialKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove credential cookie: %w", err))
	}
	if err := s.durable.Delete(ctx, domain.CredentialKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove durable credential: %w", err))
	}
	return errors.Join(errs...)
}

// expiry is the cookie TTL from now, shortened to the token's own exp claim
// when the token is a JWT that expires sooner.
func (s *Store) expiry(token string) time.Time {
	expires := s.now().Add(s.cookieTTL)
	if exp, ok := TokenExpiry(token); ok && exp.Before(expires) {
		return exp
	}
	return expires
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
