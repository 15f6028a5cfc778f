package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/internal/infrastructure/apiclient"
	"microcourses/internal/infrastructure/credentials"
	"microcourses/internal/infrastructure/navigation"
	"microcourses/internal/infrastructure/repositories/memory"
	"microcourses/internal/testutil"
	"microcourses/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret1"

type recordingMetrics struct {
	mu            sync.Mutex
	transitions   []string
	writes        int
	writeFailures int
	completions   int
	hits, misses  int
}

func (m *recordingMetrics) RecordSessionTransition(action string, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, action)
}

func (m *recordingMetrics) RecordProgressWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if err != nil {
		m.writeFailures++
	}
}

func (m *recordingMetrics) RecordLessonCompletion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions++
}

func (m *recordingMetrics) RecordCatalogCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) snapshot() recordingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recordingMetrics{
		transitions:   append([]string(nil), m.transitions...),
		writes:        m.writes,
		writeFailures: m.writeFailures,
		completions:   m.completions,
		hits:          m.hits,
		misses:        m.misses,
	}
}

var _ ports.Metrics = (*recordingMetrics)(nil)

// env is a client wired against an in-process backend.
type env struct {
	backend  *testutil.Backend
	cookies  ports.CookieStore
	durable  ports.KeyValueStore
	creds    *credentials.Store
	history  *navigation.History
	client   *apiclient.Client
	sessions *SessionService
	gate     *Gate
	metrics  *recordingMetrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		backend: testutil.NewBackend(t),
		cookies: memory.NewMemoryCookieStore(),
		durable: memory.NewMemoryKeyValueStore(),
		history: navigation.NewHistory("/"),
		metrics: &recordingMetrics{},
	}
	e.creds = credentials.NewStore(e.cookies, e.durable, 0, logger.NewNop())

	client, err := apiclient.New(apiclient.Options{BaseURL: e.backend.URL(), Timeout: 5 * time.Second}, e.creds, e.history, nil, logger.NewNop())
	require.NoError(t, err)
	e.client = client

	e.sessions = NewSessionService(client.Auth, e.creds, e.metrics, logger.NewNop())
	client.OnForcedLogout(e.sessions.HandleForcedLogout)
	e.gate = NewGate(e.sessions, e.history, nil, logger.NewNop())

	e.sessions.Subscribe(func(s domain.Session) {
		assert.Equal(t, s.User != nil, s.Status == domain.StatusAuthenticated, "identity present iff authenticated")
	})
	return e
}

// storedToken returns what each persistence location holds, "" when empty.
func (e *env) storedToken(t *testing.T) (cookie, durable string) {
	t.Helper()
	ctx := context.Background()
	cookie, _ = e.cookies.Get(ctx, domain.CredentialKey)
	durable, _ = e.durable.Get(ctx, domain.CredentialKey)
	return cookie, durable
}

// signIn stores a valid credential for a new account without going
// through the session.
func (e *env) signIn(t *testing.T, role domain.Role) domain.User {
	t.Helper()
	u := e.backend.AddUser("Ada Lovelace", string(role)+"@example.com", testPassword, role)
	require.NoError(t, e.creds.Write(context.Background(), e.backend.IssueToken(u.ID)))
	return u
}

// course publishes a course of lessons with the given durations.
func (e *env) course(durations ...float64) (domain.Course, []domain.Lesson) {
	lessons := make([]domain.Lesson, len(durations))
	for i, d := range durations {
		lessons[i] = domain.Lesson{
			ID:       domain.LessonID("L" + string(rune('1'+i))),
			Title:    "Lesson " + string(rune('1'+i)),
			Duration: d,
		}
	}
	c := e.backend.AddCourse(domain.Course{Title: "Go in Practice", Category: "programming"}, lessons...)
	return c, lessons
}

func completePath(courseID domain.CourseID, lessonID domain.LessonID) string {
	return "/learner/courses/" + string(courseID) + "/lessons/" + string(lessonID) + "/complete"
}
