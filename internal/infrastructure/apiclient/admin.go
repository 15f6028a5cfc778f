package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"microcourses/internal/core/domain"
)

// AdminEndpoints covers /admin/*.
type AdminEndpoints struct {
	c *Client
}

type UserPage struct {
	Users      []domain.User     `json:"users"`
	Learners   []domain.User     `json:"learners"`
	Creators   []domain.User     `json:"creators"`
	Pagination domain.Pagination `json:"pagination"`
}

func adminUserPath(id domain.UserID) string {
	return "/admin/users/" + escape(string(id))
}

func adminCoursePath(id domain.CourseID) string {
	return "/admin/courses/" + escape(string(id))
}

func (e *AdminEndpoints) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	var out domain.DashboardStats
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/dashboard"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *AdminEndpoints) users(ctx context.Context, path string, query url.Values) (*UserPage, error) {
	var out UserPage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *AdminEndpoints) Users(ctx context.Context, query url.Values) (*UserPage, error) {
	return e.users(ctx, "/admin/users", query)
}

func (e *AdminEndpoints) Learners(ctx context.Context, query url.Values) (*UserPage, error) {
	return e.users(ctx, "/admin/learners", query)
}

func (e *AdminEndpoints) Creators(ctx context.Context, query url.Values) (*UserPage, error) {
	return e.users(ctx, "/admin/creators", query)
}

// UserDetails returns the backend's detail document for a user as is.
func (e *AdminEndpoints) UserDetails(ctx context.Context, id domain.UserID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: adminUserPath(id) + "/details"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *AdminEndpoints) UpdateUserStatus(ctx context.Context, id domain.UserID, status map[string]any) error {
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminUserPath(id) + "/status", Body: status}, nil)
}

func (e *AdminEndpoints) BlockUser(ctx context.Context, id domain.UserID, reason string) error {
	body := map[string]string{"reason": reason}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminUserPath(id) + "/block", Body: body}, nil)
}

func (e *AdminEndpoints) UnblockUser(ctx context.Context, id domain.UserID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminUserPath(id) + "/unblock"}, nil)
}

func (e *AdminEndpoints) DeleteUser(ctx context.Context, id domain.UserID) error {
	return e.c.Do(ctx, Request{Method: http.MethodDelete, Path: adminUserPath(id)}, nil)
}

func (e *AdminEndpoints) RestrictCourses(ctx context.Context, id domain.UserID, courseIDs []domain.CourseID, reason string) error {
	body := map[string]any{"courseIds": courseIDs, "reason": reason}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminUserPath(id) + "/restrict-courses", Body: body}, nil)
}

func (e *AdminEndpoints) UnrestrictCourses(ctx context.Context, id domain.UserID, courseIDs []domain.CourseID) error {
	body := map[string]any{"courseIds": courseIDs}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminUserPath(id) + "/unrestrict-courses", Body: body}, nil)
}

func (e *AdminEndpoints) Courses(ctx context.Context, query url.Values) (*domain.CoursePage, error) {
	var out domain.CoursePage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/courses", Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *AdminEndpoints) PendingCourses(ctx context.Context) ([]domain.Course, error) {
	var out []domain.Course
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/courses/pending"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *AdminEndpoints) ApproveCourse(ctx context.Context, id domain.CourseID, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminCoursePath(id) + "/approve", Body: body}, nil)
}

func (e *AdminEndpoints) RejectCourse(ctx context.Context, id domain.CourseID, reason string) error {
	body := map[string]string{"reason": reason}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminCoursePath(id) + "/reject", Body: body}, nil)
}

func (e *AdminEndpoints) ReviewCourse(ctx context.Context, id domain.CourseID, review domain.CourseReview) error {
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: adminCoursePath(id) + "/review", Body: review}, nil)
}

func (e *AdminEndpoints) CourseEnrollments(ctx context.Context, id domain.CourseID) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: adminCoursePath(id) + "/enrollments"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *AdminEndpoints) CourseDetails(ctx context.Context, id domain.CourseID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: adminCoursePath(id)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatorApplications lists users with a creator application.
func (e *AdminEndpoints) CreatorApplications(ctx context.Context, query url.Values) ([]domain.User, error) {
	var out []domain.User
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/creator-applications", Query: query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *AdminEndpoints) ReviewCreatorApplication(ctx context.Context, id domain.UserID, review domain.ApplicationReview) error {
	path := "/admin/creator-applications/" + escape(string(id)) + "/review"
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: review}, nil)
}

func (e *AdminEndpoints) ApproveCreator(ctx context.Context, id domain.UserID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: "/admin/creators/" + escape(string(id)) + "/approve"}, nil)
}

func (e *AdminEndpoints) RejectCreator(ctx context.Context, id domain.UserID, reason string) error {
	body := map[string]string{"reason": reason}
	return e.c.Do(ctx, Request{Method: http.MethodPut, Path: "/admin/creators/" + escape(string(id)) + "/reject", Body: body}, nil)
}

func (e *AdminEndpoints) Logs(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/logs"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
