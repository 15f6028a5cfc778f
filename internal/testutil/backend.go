// Package testutil provides an in-process MicroCourses backend for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"microcourses/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIPrefix is the path under which the backend serves its routes.
const APIPrefix = "/api"

type account struct {
	user     domain.User
	password string
}

type enrollment struct {
	id         string
	enrolledAt time.Time
	completed  map[domain.LessonID]bool
}

type failure struct {
	status  int
	message string
	times   int
}

// Backend is a fake of the MicroCourses REST API backed by memory. Routes
// and envelopes follow the real service.
type Backend struct {
	Server *httptest.Server

	secret   []byte
	tokenTTL time.Duration

	mu          sync.Mutex
	accounts    map[domain.UserID]*account
	byEmail     map[string]domain.UserID
	courses     map[domain.CourseID]*domain.Course
	courseOrder []domain.CourseID
	lessons     map[domain.CourseID][]domain.Lesson
	enrollments map[domain.UserID]map[domain.CourseID]*enrollment
	revoked     map[string]bool
	failures    map[string]*failure
	holds       map[string]chan struct{}
	calls       map[string]int
	headers     map[string]http.Header
}

// NewBackend starts a backend that is closed when t finishes.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		secret:      []byte("test-secret-" + uuid.NewString()),
		tokenTTL:    7 * 24 * time.Hour,
		accounts:    make(map[domain.UserID]*account),
		byEmail:     make(map[string]domain.UserID),
		courses:     make(map[domain.CourseID]*domain.Course),
		lessons:     make(map[domain.CourseID][]domain.Lesson),
		enrollments: make(map[domain.UserID]map[domain.CourseID]*enrollment),
		revoked:     make(map[string]bool),
		failures:    make(map[string]*failure),
		holds:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
		headers:     make(map[string]http.Header),
	}

	router := gin.New()
	router.Use(gin.Recovery(), b.recordMiddleware(), b.failureMiddleware())
	b.setupRoutes(router.Group(APIPrefix))

	b.Server = httptest.NewServer(router)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL clients should use.
func (b *Backend) URL() string {
	return b.Server.URL + APIPrefix
}

func callKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// AddUser creates an account and returns its identity.
func (b *Backend) AddUser(name, email, password string, role domain.Role) domain.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, password, role)
}

func (b *Backend) addUserLocked(name, email, password string, role domain.Role) domain.User {
	now := time.Now().UTC().Truncate(time.Second)
	u := domain.User{
		ID:            domain.UserID(strings.ReplaceAll(uuid.NewString(), "-", "")[:24]),
		Name:          name,
		Email:         strings.ToLower(email),
		Role:          role,
		AccountStatus: "active",
		CreatedAt:     &now,
	}
	b.accounts[u.ID] = &account{user: u, password: password}
	b.byEmail[u.Email] = u.ID
	return u
}

// AddCourse publishes a course with the given lessons. Missing ids are
// generated and lessons without an order are numbered from 1.
func (b *Backend) AddCourse(c domain.Course, lessons ...domain.Lesson) domain.Course {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.ID == "" {
		c.ID = domain.CourseID("course-" + uuid.NewString()[:8])
	}
	if c.Status == "" {
		c.Status = domain.CoursePublished
	}
	for i := range lessons {
		if lessons[i].ID == "" {
			lessons[i].ID = domain.LessonID("lesson-" + uuid.NewString()[:8])
		}
		if lessons[i].Order == 0 {
			lessons[i].Order = i + 1
		}
	}
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })

	stored := c
	b.courses[c.ID] = &stored
	b.courseOrder = append(b.courseOrder, c.ID)
	b.lessons[c.ID] = lessons
	return c
}

// Enroll enrolls a user directly, bypassing the API.
func (b *Backend) Enroll(userID domain.UserID, courseID domain.CourseID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enrollLocked(userID, courseID)
}

func (b *Backend) enrollLocked(userID domain.UserID, courseID domain.CourseID) *enrollment {
	byCourse := b.enrollments[userID]
	if byCourse == nil {
		byCourse = make(map[domain.CourseID]*enrollment)
		b.enrollments[userID] = byCourse
	}
	e := byCourse[courseID]
	if e == nil {
		e = &enrollment{id: uuid.NewString(), enrolledAt: time.Now().UTC(), completed: map[domain.LessonID]bool{}}
		byCourse[courseID] = e
		if c := b.courses[courseID]; c != nil {
			c.EnrollmentCount++
		}
	}
	return e
}

// MarkCompleted records a completed lesson directly.
func (b *Backend) MarkCompleted(userID domain.UserID, courseID domain.CourseID, lessonID domain.LessonID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enrollLocked(userID, courseID).completed[lessonID] = true
}

// Completed lists a user's completed lessons in a course.
func (b *Backend) Completed(userID domain.UserID, courseID domain.CourseID) []domain.LessonID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completedLocked(userID, courseID)
}

func (b *Backend) completedLocked(userID domain.UserID, courseID domain.CourseID) []domain.LessonID {
	var out []domain.LessonID
	e := b.enrollments[userID][courseID]
	if e == nil {
		return out
	}
	for _, l := range b.lessons[courseID] {
		if e.completed[l.ID] {
			out = append(out, l.ID)
		}
	}
	return out
}

// User returns the stored identity of id.
func (b *Backend) User(id domain.UserID) (domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[id]
	if !ok {
		return domain.User{}, false
	}
	return a.user, true
}

// IssueToken signs a token for id the way login does.
func (b *Backend) IssueToken(id domain.UserID) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, _ := b.issueTokenLocked(id)
	return token
}

// Revoke makes the backend answer 401 for token from now on.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// Fail makes the next times calls to method path answer status with
// message. times <= 0 fails every call until Recover.
func (b *Backend) Fail(method, path string, status int, message string, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[callKey(method, path)] = &failure{status: status, message: message, times: times}
}

func (b *Backend) Recover(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, callKey(method, path))
}

// Hold blocks calls to method path until the returned release func runs.
func (b *Backend) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[callKey(method, path)] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.holds, callKey(method, path))
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Calls counts requests to method path. Paths exclude APIPrefix.
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[callKey(method, path)]
}

// TotalCalls counts every request served.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// LastHeaders returns the headers of the latest request to method path.
func (b *Backend) LastHeaders(method, path string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[callKey(method, path)].Clone()
}

type claims struct {
	UserID domain.UserID `json:"id"`
	Role   domain.Role   `json:"role"`
	jwt.RegisteredClaims
}

func (b *Backend) issueTokenLocked(id domain.UserID) (string, error) {
	a := b.accounts[id]
	if a == nil {
		return "", domain.ErrNotFound
	}
	now := time.Now()
	c := &claims{
		UserID: id,
		Role:   a.user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(b.secret)
}

func (b *Backend) validateToken(token string) (*claims, bool) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	return c, true
}
