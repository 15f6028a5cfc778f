package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/services"
	backupinfra "microcourses/internal/infrastructure/backup"
	"microcourses/internal/testutil"
	"microcourses/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Storage.Backend = "file"
	cfg.Storage.Dir = t.TempDir()
	cfg.Backup.Dir = t.TempDir()
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "/relative"
	_, err := New(context.Background(), cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestApp_SessionSurvivesRestart(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AddUser("Ada", "ada@example.com", "secret1", domain.RoleCreator)
	cfg := testConfig(t, backend.URL())
	ctx := context.Background()

	first := newApp(t, cfg)
	s, err := first.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnonymous, s.Status)

	res := first.Sessions.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.PathCreatorHome, first.Gate.CompleteLogin(res.User))
	require.NoError(t, first.Close())

	second := newApp(t, cfg)
	s, err = second.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAuthenticated, s.Status)
	assert.Equal(t, domain.RoleCreator, s.User.Role)

	_, d := second.Gate.Navigate(ctx, "/creator/courses/create")
	assert.Equal(t, services.Render, d.Outcome)
}

func TestApp_ProgressBackupRoundTrip(t *testing.T) {
	backend := testutil.NewBackend(t)
	cfg := testConfig(t, backend.URL())
	ctx := context.Background()
	a := newApp(t, cfg)

	require.NoError(t, a.Tracker("c1").Record(ctx, "L1", 42, 600))

	scheduler, restore, err := a.Backups()
	require.NoError(t, err)
	_, err = scheduler.BackupNow(ctx, "manual")
	require.NoError(t, err)

	require.NoError(t, a.Durable.Delete(ctx, domain.ProgressKey("c1")))
	res, err := restore.RestoreFromBackup(ctx, "", backupinfra.DefaultRestoreOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restored)

	tracker := a.Tracker("c1")
	tracker.Load(ctx)
	assert.Equal(t, 7, tracker.PercentWatched("L1"))
}

func TestApp_HealthAndMetrics(t *testing.T) {
	backend := testutil.NewBackend(t)
	a := newApp(t, testConfig(t, backend.URL()))
	ctx := context.Background()

	status := a.Health.CheckAll(ctx)
	assert.Equal(t, "healthy", status.Status, "%+v", status.Checks)

	_, err := a.Start(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(a.MetricsHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "microcourses_session_transitions_total")
	assert.Contains(t, string(body), "microcourses_client_requests_total")
}

func TestApp_UnreachableAPIIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/api"
	srv.Close()

	a := newApp(t, testConfig(t, url))
	assert.False(t, a.Health.IsHealthy(context.Background()))
}
