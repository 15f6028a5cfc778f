package ports

import (
	"context"
	"time"
)

// KeyValueStore is durable local storage. Get returns domain.ErrNotFound for
// absent keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CookieStore holds expiring values. Expired or absent cookies read as
// domain.ErrNotFound.
type CookieStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string, expires time.Time) error
	Remove(ctx context.Context, name string) error
}

// CredentialStore keeps the bearer token in both the cookie store and the
// durable store. Read returns domain.ErrNoCredential when neither has one.
type CredentialStore interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
