package apiclient

import (
	"context"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
)

var (
	_ ports.AuthAPI    = (*AuthEndpoints)(nil)
	_ ports.LearnerAPI = (*LearnerEndpoints)(nil)
	_ ports.CatalogAPI = (*catalog)(nil)
)

// Catalog exposes the browsing calls of the course pages as one port.
func (c *Client) Catalog() ports.CatalogAPI {
	return &catalog{c: c}
}

type catalog struct {
	c *Client
}

func (a *catalog) ListCourses(ctx context.Context, q domain.CourseQuery) (*domain.CoursePage, error) {
	return a.c.Courses.List(ctx, q)
}

func (a *catalog) GetCourse(ctx context.Context, id domain.CourseID) (*domain.Course, error) {
	return a.c.Courses.Get(ctx, id)
}

func (a *catalog) Enroll(ctx context.Context, id domain.CourseID) error {
	return a.c.Learner.Enroll(ctx, id)
}

func (a *catalog) EnrolledCourses(ctx context.Context) ([]domain.Enrollment, error) {
	return a.c.Learner.EnrolledCourses(ctx)
}

func (a *catalog) Recommendations(ctx context.Context) ([]domain.Course, error) {
	return a.c.Learner.Recommendations(ctx)
}
