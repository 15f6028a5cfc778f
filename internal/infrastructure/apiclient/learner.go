package apiclient

import (
	"context"
	"net/http"

	"microcourses/internal/core/domain"
)

// LearnerEndpoints covers /learner/*.
type LearnerEndpoints struct {
	c *Client
}

func coursePath(id domain.CourseID) string {
	return "/learner/courses/" + escape(string(id))
}

func (e *LearnerEndpoints) Enroll(ctx context.Context, courseID domain.CourseID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: coursePath(courseID) + "/enroll"}, nil)
}

func (e *LearnerEndpoints) CompleteLesson(ctx context.Context, courseID domain.CourseID, lessonID domain.LessonID) error {
	path := coursePath(courseID) + "/lessons/" + escape(string(lessonID)) + "/complete"
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: path}, nil)
}

func (e *LearnerEndpoints) EnrolledCourses(ctx context.Context) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/learner/courses"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *LearnerEndpoints) CourseLessons(ctx context.Context, courseID domain.CourseID) ([]domain.Lesson, error) {
	var out struct {
		Lessons []domain.Lesson `json:"lessons"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: coursePath(courseID) + "/lessons"}, &out); err != nil {
		return nil, err
	}
	return out.Lessons, nil
}

func (e *LearnerEndpoints) CourseProgress(ctx context.Context, courseID domain.CourseID) (*domain.CourseProgress, error) {
	var out domain.CourseProgress
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: coursePath(courseID) + "/progress"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Certificate returns the PDF bytes of an issued certificate.
func (e *LearnerEndpoints) Certificate(ctx context.Context, courseID domain.CourseID) ([]byte, error) {
	return e.c.DoRaw(ctx, Request{Method: http.MethodGet, Path: coursePath(courseID) + "/certificate"})
}

// CertificatePreview returns the HTML rendering of the certificate.
func (e *LearnerEndpoints) CertificatePreview(ctx context.Context, courseID domain.CourseID) ([]byte, error) {
	return e.c.DoRaw(ctx, Request{Method: http.MethodGet, Path: coursePath(courseID) + "/certificate/preview"})
}

func (e *LearnerEndpoints) Recommendations(ctx context.Context) ([]domain.Course, error) {
	var out []domain.Course
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/learner/recommendations"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *LearnerEndpoints) Stats(ctx context.Context) (*domain.LearningStats, error) {
	var out domain.LearningStats
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/learner/stats"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
