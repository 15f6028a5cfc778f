package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"microcourses/internal/core/domain"
	apperrors "microcourses/pkg/errors"
	"microcourses/pkg/validation"
)

// CourseEndpoints is the public catalog.
type CourseEndpoints struct {
	c *Client
}

func (e *CourseEndpoints) List(ctx context.Context, q domain.CourseQuery) (*domain.CoursePage, error) {
	return e.page(ctx, "/courses", q.Values())
}

func (e *CourseEndpoints) Search(ctx context.Context, q domain.CourseQuery) (*domain.CoursePage, error) {
	return e.page(ctx, "/courses/search", q.Values())
}

func (e *CourseEndpoints) ByCategory(ctx context.Context, category string, q domain.CourseQuery) (*domain.CoursePage, error) {
	return e.page(ctx, "/courses/category/"+escape(category), q.Values())
}

func (e *CourseEndpoints) page(ctx context.Context, path string, query url.Values) (*domain.CoursePage, error) {
	var out domain.CoursePage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *CourseEndpoints) Get(ctx context.Context, id domain.CourseID) (*domain.Course, error) {
	var out struct {
		Course *domain.Course `json:"course"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/courses/" + escape(string(id))}, &out); err != nil {
		return nil, err
	}
	if out.Course == nil {
		return nil, domain.ErrNotFound
	}
	return out.Course, nil
}

func (e *CourseEndpoints) Enroll(ctx context.Context, id domain.CourseID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: "/courses/" + escape(string(id)) + "/enroll"}, nil)
}

func (e *CourseEndpoints) Enrolled(ctx context.Context) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/courses/enrolled/my-courses"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *CourseEndpoints) Rate(ctx context.Context, id domain.CourseID, rating int) error {
	if err := validation.ValidateRating(rating); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	body := map[string]int{"rating": rating}
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: "/courses/" + escape(string(id)) + "/rate", Body: body}, nil)
}

// LessonEndpoints reads single lessons outside a course context.
type LessonEndpoints struct {
	c *Client
}

func (e *LessonEndpoints) Get(ctx context.Context, id domain.LessonID) (*domain.Lesson, error) {
	var out struct {
		Lesson *domain.Lesson `json:"lesson"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/lessons/" + escape(string(id))}, &out); err != nil {
		return nil, err
	}
	if out.Lesson == nil {
		return nil, domain.ErrLessonNotFound
	}
	return out.Lesson, nil
}

func (e *LessonEndpoints) MarkComplete(ctx context.Context, id domain.LessonID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: "/lessons/" + escape(string(id)) + "/complete"}, nil)
}

func (e *LessonEndpoints) Progress(ctx context.Context, id domain.LessonID, out any) error {
	return e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/lessons/" + escape(string(id)) + "/progress"}, out)
}
