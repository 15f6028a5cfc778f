// Package app wires configuration, local storage, the API client and the
// core services into one client instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/internal/core/services"
	"microcourses/internal/infrastructure/apiclient"
	backupinfra "microcourses/internal/infrastructure/backup"
	"microcourses/internal/infrastructure/credentials"
	"microcourses/internal/infrastructure/monitoring"
	"microcourses/internal/infrastructure/navigation"
	"microcourses/internal/infrastructure/repositories"
	"microcourses/pkg/backup"
	"microcourses/pkg/config"
	"microcourses/pkg/logger"
	"microcourses/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

// App is a fully wired client.
type App struct {
	Config   *config.Config
	Logger   *zap.SugaredLogger
	Registry *prometheus.Registry
	Metrics  *monitoring.PrometheusCollector

	Durable     ports.KeyValueStore
	Cookies     ports.CookieStore
	Credentials *credentials.Store
	History     *navigation.History
	Client      *apiclient.Client
	Sessions    *services.SessionService
	Gate        *services.Gate
	Catalog     *services.CatalogService
	Health      *monitoring.HealthChecker

	stores  *repositories.RepositoryFactory
	tracer  *tracing.TracerProvider
	zap     *zap.Logger
	closers []func() error
}

type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
	start      string
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithStartLocation sets the initial navigation location.
func WithStartLocation(path string) Option {
	return func(o *options) { o.start = path }
}

// New builds the client. The session is not initialized; call
// Sessions.Initialize or Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := options{start: domain.PathHome}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	if o.logger != nil {
		a.zap = o.logger
	} else {
		a.zap = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a.Logger = a.zap.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "microcourses-client",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		a.Logger.Warnw("tracing disabled", "error", err)
		tp = &tracing.TracerProvider{}
	}
	a.tracer = tp

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector())
	a.Metrics = monitoring.NewPrometheusCollector(a.Registry)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Credentials = credentials.NewStore(a.Cookies, a.Durable, cfg.Storage.CookieTTL, a.Logger.Named("credentials"))
	a.History = navigation.NewHistory(o.start)

	rps, burst := 0.0, 0
	if cfg.RateLimiting.Enabled {
		rps, burst = cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.Burst
	}
	a.Client, err = apiclient.New(apiclient.Options{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		UserAgent:         cfg.API.UserAgent,
		RequestsPerSecond: rps,
		Burst:             burst,
		BreakerThreshold:  cfg.API.BreakerThreshold,
		BreakerCooldown:   cfg.API.BreakerCooldown,
		HTTPClient:        o.httpClient,
	}, a.Credentials, a.History, a.Metrics, a.Logger.Named("api"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Sessions = services.NewSessionService(a.Client.Auth, a.Credentials, a.Metrics, a.Logger.Named("session"))
	a.Client.OnForcedLogout(a.Sessions.HandleForcedLogout)
	a.Gate = services.NewGate(a.Sessions, a.History, domain.Routes, a.Logger.Named("gate"))

	a.Catalog, err = services.NewCatalogService(a.Client.Catalog(), cfg.Catalog.CacheTTL, a.Metrics, a.Logger.Named("catalog"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions.Subscribe(a.Catalog.OnSessionChange())
	a.closers = append(a.closers, func() error { a.Catalog.Close(); return nil })

	a.Health = monitoring.NewHealthChecker()
	a.Health.AddStorageCheck("storage:"+a.stores.Backend(), a.Durable, healthCheckTimeout)
	a.Health.AddCheck("storage:connection", a.stores.HealthCheck, healthCheckTimeout)
	a.Health.AddCheck("api", a.Client.Ping, cfg.API.Timeout)

	a.Logger.Debugw("client ready",
		"api", cfg.API.BaseURL,
		"storage", a.stores.Backend(),
		"environment", cfg.Environment,
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	stores, err := repositories.NewRepositoryFactory(ctx, a.Config, a.Logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}
	a.stores = stores
	a.closers = append(a.closers, stores.Close)

	if a.Durable, err = stores.CreateKeyValueStore(); err != nil {
		return fmt.Errorf("open key-value store: %w", err)
	}
	if a.Cookies, err = stores.CreateCookieStore(); err != nil {
		return fmt.Errorf("open cookie store: %w", err)
	}
	return nil
}

// Start resolves the session and waits for it.
func (a *App) Start(ctx context.Context) (domain.Session, error) {
	a.Sessions.Initialize(ctx)
	if err := a.Sessions.WaitReady(ctx); err != nil {
		return domain.Session{}, err
	}
	return a.Sessions.Snapshot(), nil
}

func (a *App) StorageBackend() string {
	return a.stores.Backend()
}

// Tracker returns a progress tracker for one course.
func (a *App) Tracker(courseID domain.CourseID) *services.ProgressTracker {
	return services.NewProgressTracker(courseID, a.Durable, a.Config.Progress.EndTolerance, a.Metrics, a.Logger.Named("progress"))
}

// Player returns a lesson player for one course. The caller closes it.
func (a *App) Player(courseID domain.CourseID) *services.LessonPlayer {
	return services.NewLessonPlayer(courseID, a.Client.Learner, a.Tracker(courseID), a.Metrics, a.Logger.Named("player"))
}

// Backups returns the progress backup scheduler and restore service.
func (a *App) Backups() (*backupinfra.Scheduler, *backupinfra.RestoreService, error) {
	storage, err := backup.NewFileStorage(a.Config.Backup.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open backup storage: %w", err)
	}
	svc := backup.NewBackupService(storage, "1")
	log := a.Logger.Named("backup")
	scheduler := backupinfra.NewScheduler(svc, a.Durable, backupinfra.Config{
		Interval:      a.Config.Backup.Interval,
		RetentionDays: a.Config.Backup.RetentionDays,
	}, log)
	if lock := a.stores.Lock("backup", time.Minute); lock != nil {
		scheduler.WithLock(lock)
	}
	return scheduler, backupinfra.NewRestoreService(svc, a.Durable, log), nil
}

// MetricsHandler serves the client's registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// ServeMetrics exposes /metrics on the configured address until ctx is done.
func (a *App) ServeMetrics(ctx context.Context) error {
	if !a.Config.Monitoring.PrometheusEnabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{
		Addr:              a.Config.Monitoring.PrometheusAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Infow("serving metrics", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}

// Close releases storage and flushes traces and logs.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return errors.Join(errs...)
}
