// Package distributed coordinates clients that share one Redis keyspace.
package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Unlock when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock was not held by this instance")

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Lock is a Redis SET NX lock renewed at half its TTL while held. A Lock
// can be acquired again after Unlock.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu        sync.Mutex
	value     string
	stopRenew chan struct{}
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{client: client, key: key, ttl: ttl}
}

func (l *Lock) Key() string { return l.key }

// TryLock attempts to acquire the lock without blocking.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopRenew != nil {
		return false, nil
	}

	value := newLockValue()
	acquired, err := l.client.SetNX(ctx, l.key, value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %s: %w", l.key, err)
	}
	if !acquired {
		return false, nil
	}

	l.value = value
	l.stopRenew = make(chan struct{})
	go l.renew(value, l.stopRenew)
	return true, nil
}

// Unlock releases the lock if this instance still holds it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	stop, value := l.stopRenew, l.value
	l.stopRenew, l.value = nil, ""
	l.mu.Unlock()

	if stop == nil {
		return ErrNotHeld
	}
	close(stop)

	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lock) renew(value string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				return
			}
		case <-stop:
			return
		}
	}
}

// IsLocked reports whether anyone holds the lock.
func (l *Lock) IsLocked(ctx context.Context) (bool, error) {
	exists, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func newLockValue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LockManager hands out locks under a shared key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

func (lm *LockManager) Lock(name string, ttl time.Duration) *Lock {
	return NewLock(lm.client, lm.prefix+"lock:"+name, ttl)
}
