package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/cache"

	"go.uber.org/zap"
)

const (
	keyCoursePrefix   = "course:"
	keyListPrefix     = "courses:list:"
	keyEnrolled       = "learner:enrolled"
	keyRecommendation = "learner:recommendations"

	defaultSearchEntries = 64
)

// CatalogService is a read-through cache over the course catalogue and the
// learner's enrollments.
type CatalogService struct {
	api     ports.CatalogAPI
	metrics ports.Metrics
	logger  *zap.SugaredLogger

	courses     *cache.Cache[*domain.Course]
	pages       *cache.Cache[*domain.CoursePage]
	enrollments *cache.Cache[[]domain.Enrollment]
	recommended *cache.Cache[[]domain.Course]
	searches    *cache.SearchCache[*domain.CoursePage]
}

func NewCatalogService(api ports.CatalogAPI, ttl time.Duration, metrics ports.Metrics, logger *zap.SugaredLogger) (*CatalogService, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	searches, err := cache.NewSearchCache[*domain.CoursePage](defaultSearchEntries, ttl)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	return &CatalogService{
		api:         api,
		metrics:     metrics,
		logger:      logger,
		courses:     cache.New[*domain.Course](ttl),
		pages:       cache.New[*domain.CoursePage](ttl),
		enrollments: cache.New[[]domain.Enrollment](ttl),
		recommended: cache.New[[]domain.Course](ttl),
		searches:    searches,
	}, nil
}

func (s *CatalogService) observe(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCatalogCache(hit)
	}
}

// Courses lists a catalogue page. Free-text searches go to a bounded LRU,
// plain listings to the TTL cache.
func (s *CatalogService) Courses(ctx context.Context, q domain.CourseQuery) (*domain.CoursePage, error) {
	key := keyListPrefix + q.Values().Encode()
	if strings.TrimSpace(q.Search) != "" {
		if page, ok := s.searches.Get(key); ok {
			s.observe(true)
			return page, nil
		}
		s.observe(false)
		page, err := s.api.ListCourses(ctx, q)
		if err != nil {
			return nil, err
		}
		s.searches.Set(key, page)
		return page, nil
	}

	if page, ok := s.pages.Get(key); ok {
		s.observe(true)
		return page, nil
	}
	s.observe(false)
	page, err := s.api.ListCourses(ctx, q)
	if err != nil {
		return nil, err
	}
	s.pages.Set(key, page)
	return page, nil
}

func (s *CatalogService) Course(ctx context.Context, id domain.CourseID) (*domain.Course, error) {
	key := keyCoursePrefix + string(id)
	if c, ok := s.courses.Get(key); ok {
		s.observe(true)
		return c, nil
	}
	s.observe(false)
	c, err := s.api.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	s.courses.Set(key, c)
	return c, nil
}

// Enroll enrolls the learner and drops every entry the enrollment changes.
func (s *CatalogService) Enroll(ctx context.Context, id domain.CourseID) error {
	if err := s.api.Enroll(ctx, id); err != nil {
		return err
	}
	s.courses.Delete(keyCoursePrefix + string(id))
	s.enrollments.Clear()
	s.recommended.Clear()
	s.logger.Infow("enrolled", "course_id", id)
	return nil
}

func (s *CatalogService) Enrolled(ctx context.Context) ([]domain.Enrollment, error) {
	if e, ok := s.enrollments.Get(keyEnrolled); ok {
		s.observe(true)
		return e, nil
	}
	s.observe(false)
	e, err := s.api.EnrolledCourses(ctx)
	if err != nil {
		return nil, err
	}
	s.enrollments.Set(keyEnrolled, e)
	return e, nil
}

func (s *CatalogService) IsEnrolled(ctx context.Context, id domain.CourseID) (bool, error) {
	enrollments, err := s.Enrolled(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range enrollments {
		if e.Course.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Recommendations falls back to the most popular courses when the backend
// has nothing personalised to offer or cannot be asked.
func (s *CatalogService) Recommendations(ctx context.Context, limit int) ([]domain.Course, error) {
	if r, ok := s.recommended.Get(keyRecommendation); ok {
		s.observe(true)
		return trim(r, limit), nil
	}
	s.observe(false)

	r, err := s.api.Recommendations(ctx)
	if err != nil {
		s.logger.Debugw("recommendations unavailable, using popular courses", "error", err)
	}
	if len(r) == 0 {
		page, perr := s.Courses(ctx, domain.CourseQuery{Sort: "popular", Limit: limit})
		if perr != nil {
			if err != nil {
				return nil, err
			}
			return nil, perr
		}
		r = page.Courses
	}
	s.recommended.Set(keyRecommendation, r)
	return trim(r, limit), nil
}

func trim(courses []domain.Course, limit int) []domain.Course {
	if limit > 0 && len(courses) > limit {
		return courses[:limit]
	}
	return courses
}

// Invalidate drops everything. Called when the signed-in identity changes.
func (s *CatalogService) Invalidate() {
	s.courses.Clear()
	s.pages.Clear()
	s.enrollments.Clear()
	s.recommended.Clear()
	s.searches.Clear()
}

// OnSessionChange is a session listener that invalidates the cache whenever
// the signed-in user changes.
func (s *CatalogService) OnSessionChange() func(domain.Session) {
	var (
		mu   sync.Mutex
		last domain.UserID
	)
	return func(sess domain.Session) {
		var id domain.UserID
		if sess.User != nil {
			id = sess.User.ID
		}
		mu.Lock()
		defer mu.Unlock()
		if id != last {
			last = id
			s.Invalidate()
		}
	}
}

func (s *CatalogService) Close() {
	s.courses.Stop()
	s.pages.Stop()
	s.enrollments.Stop()
	s.recommended.Stop()
}
