package repositories

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"microcourses/internal/core/ports"
	filerepo "microcourses/internal/infrastructure/repositories/file"
	"microcourses/internal/infrastructure/repositories/memory"
	redisrepo "microcourses/internal/infrastructure/repositories/redis"
	sqliterepo "microcourses/internal/infrastructure/repositories/sqlite"
	"microcourses/pkg/config"
	"microcourses/pkg/distributed"
	"microcourses/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// RepositoryFactory creates the local stores for the configured backend. When
// Redis or SQLite cannot be opened it falls back to the file backend.
type RepositoryFactory struct {
	backend     string
	dir         string
	redisClient *redis.Client
	redisPrefix string
	sqlite      *sqliterepo.Store
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend:     cfg.Storage.Backend,
		dir:         cfg.Storage.Dir,
		redisPrefix: cfg.Redis.KeyPrefix,
		logger:      logger,
	}

	switch cfg.Storage.Backend {
	case BackendRedis:
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Retry:     retry.DefaultConfig(),
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to file storage",
				"error", err,
			)
			factory.backend = BackendFile
		} else {
			factory.redisClient = client
		}

	case BackendSQLite:
		store, err := sqliterepo.Open(filepath.Join(cfg.Storage.Dir, "state.db"), 5*time.Second)
		if err != nil {
			logger.Warnw("failed to open SQLite storage, falling back to file storage",
				"error", err,
			)
			factory.backend = BackendFile
		} else {
			factory.sqlite = store
		}

	case BackendMemory, BackendFile:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	logger.Debugw("local storage ready", "backend", factory.backend)
	return factory, nil
}

// Backend reports the backend actually in use after any fallback.
func (f *RepositoryFactory) Backend() string {
	return f.backend
}

// CreateKeyValueStore creates the durable key-value store
func (f *RepositoryFactory) CreateKeyValueStore() (ports.KeyValueStore, error) {
	switch f.backend {
	case BackendRedis:
		return redisrepo.NewRedisKeyValueStore(f.redisClient, f.redisPrefix), nil
	case BackendSQLite:
		return sqliterepo.NewSQLiteKeyValueStore(f.sqlite), nil
	case BackendFile:
		return filerepo.NewFileKeyValueStore(filepath.Join(f.dir, "local"))
	default:
		return memory.NewMemoryKeyValueStore(), nil
	}
}

// CreateCookieStore creates the expiring cookie store
func (f *RepositoryFactory) CreateCookieStore() (ports.CookieStore, error) {
	switch f.backend {
	case BackendRedis:
		return redisrepo.NewRedisCookieStore(f.redisClient, f.redisPrefix), nil
	case BackendSQLite:
		return sqliterepo.NewSQLiteCookieStore(f.sqlite), nil
	case BackendFile:
		return filerepo.NewFileCookieStore(filepath.Join(f.dir, "cookies"))
	default:
		return memory.NewMemoryCookieStore(), nil
	}
}

// Lock returns a lock shared by every client on the same Redis keyspace, or
// nil when the backend is local to this process.
func (f *RepositoryFactory) Lock(name string, ttl time.Duration) *distributed.Lock {
	if f.redisClient == nil {
		return nil
	}
	return distributed.NewLockManager(f.redisClient, f.redisPrefix).Lock(name, ttl)
}

// Close releases the Redis connection or the SQLite handle
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	if f.sqlite != nil {
		return f.sqlite.Close()
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
