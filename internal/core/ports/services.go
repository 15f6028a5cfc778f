package ports

import (
	"context"
	"encoding/json"

	"microcourses/internal/core/domain"
)

type AuthAPI interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthPayload, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthPayload, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*domain.User, error)
	// UpdateProfile returns the user object exactly as the backend sent it,
	// so that only the fields it contains are merged into the session.
	UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (json.RawMessage, error)
	ChangePassword(ctx context.Context, change domain.PasswordChange) error
	ApplyForCreator(ctx context.Context, req domain.CreatorApplicationRequest) (*domain.CreatorApplication, error)
}

type LearnerAPI interface {
	CourseLessons(ctx context.Context, courseID domain.CourseID) ([]domain.Lesson, error)
	CourseProgress(ctx context.Context, courseID domain.CourseID) (*domain.CourseProgress, error)
	CompleteLesson(ctx context.Context, courseID domain.CourseID, lessonID domain.LessonID) error
}

type CatalogAPI interface {
	ListCourses(ctx context.Context, q domain.CourseQuery) (*domain.CoursePage, error)
	GetCourse(ctx context.Context, id domain.CourseID) (*domain.Course, error)
	Enroll(ctx context.Context, id domain.CourseID) error
	EnrolledCourses(ctx context.Context) ([]domain.Enrollment, error)
	Recommendations(ctx context.Context) ([]domain.Course, error)
}

// Navigator is the routing surface of the view layer.
type Navigator interface {
	Navigate(to, from string)
	Location() string
}

// Metrics receives client-side counters. Implementations must tolerate
// concurrent calls.
type Metrics interface {
	RecordSessionTransition(action string, authenticated bool)
	RecordProgressWrite(err error)
	RecordLessonCompletion()
	RecordCatalogCache(hit bool)
}
