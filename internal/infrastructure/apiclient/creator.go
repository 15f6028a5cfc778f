package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"microcourses/internal/core/domain"
)

// CreatorEndpoints covers course authoring. Course and lesson writes are
// multipart so that media can travel with the fields.
type CreatorEndpoints struct {
	c *Client
}

type CourseInput struct {
	Title            string
	Description      string
	ShortDescription string
	Category         string
	Level            string
	Price            float64
	Tags             []string
	Requirements     []string
	Outcomes         []string
	Thumbnail        *FormFile
}

func (in CourseInput) form() *MultipartForm {
	f := &MultipartForm{Fields: map[string]string{}}
	setField(f, "title", in.Title)
	setField(f, "description", in.Description)
	setField(f, "shortDescription", in.ShortDescription)
	setField(f, "category", in.Category)
	setField(f, "level", in.Level)
	f.Fields["price"] = strconv.FormatFloat(in.Price, 'f', -1, 64)
	setList(f, "tags", in.Tags)
	setList(f, "requirements", in.Requirements)
	setList(f, "outcomes", in.Outcomes)
	if in.Thumbnail != nil {
		file := *in.Thumbnail
		file.Field = "thumbnail"
		f.Files = append(f.Files, file)
	}
	return f
}

type LessonInput struct {
	Title       string
	Description string
	Order       int
	IsFree      bool
	Resources   []domain.Resource
	Video       *FormFile
}

func (in LessonInput) form() *MultipartForm {
	f := &MultipartForm{Fields: map[string]string{}}
	setField(f, "title", in.Title)
	setField(f, "description", in.Description)
	if in.Order > 0 {
		f.Fields["order"] = strconv.Itoa(in.Order)
	}
	f.Fields["isFree"] = strconv.FormatBool(in.IsFree)
	if len(in.Resources) > 0 {
		data, _ := json.Marshal(in.Resources)
		f.Fields["resources"] = string(data)
	}
	if in.Video != nil {
		file := *in.Video
		file.Field = "video"
		f.Files = append(f.Files, file)
	}
	return f
}

func setField(f *MultipartForm, k, v string) {
	if v != "" {
		f.Fields[k] = v
	}
}

// setList sends lists as a JSON array string, the way the backend parses
// multipart arrays.
func setList(f *MultipartForm, k string, v []string) {
	if len(v) == 0 {
		return
	}
	data, _ := json.Marshal(v)
	f.Fields[k] = string(data)
}

func creatorCoursePath(id domain.CourseID) string {
	return "/creator/courses/" + escape(string(id))
}

func creatorLessonPath(id domain.LessonID) string {
	return "/creator/lessons/" + escape(string(id))
}

func (e *CreatorEndpoints) CreateCourse(ctx context.Context, in CourseInput) (*domain.Course, error) {
	var out struct {
		Course *domain.Course `json:"course"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodPost, Path: "/creator/courses", Form: in.form()}, &out); err != nil {
		return nil, err
	}
	return out.Course, nil
}

func (e *CreatorEndpoints) Courses(ctx context.Context, query url.Values) ([]domain.Course, error) {
	var out struct {
		Courses []domain.Course `json:"courses"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: "/creator/courses", Query: query}, &out); err != nil {
		return nil, err
	}
	return out.Courses, nil
}

// Course finds one of the creator's own courses. The backend has no
// single-course creator endpoint, so the list is filtered.
func (e *CreatorEndpoints) Course(ctx context.Context, id domain.CourseID) (*domain.Course, error) {
	courses, err := e.Courses(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if courses[i].ID == id {
			return &courses[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (e *CreatorEndpoints) UpdateCourse(ctx context.Context, id domain.CourseID, in CourseInput) (*domain.Course, error) {
	var out struct {
		Course *domain.Course `json:"course"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodPut, Path: creatorCoursePath(id), Form: in.form()}, &out); err != nil {
		return nil, err
	}
	return out.Course, nil
}

func (e *CreatorEndpoints) DeleteCourse(ctx context.Context, id domain.CourseID) error {
	return e.c.Do(ctx, Request{Method: http.MethodDelete, Path: creatorCoursePath(id)}, nil)
}

// SubmitCourse sends a draft for admin review.
func (e *CreatorEndpoints) SubmitCourse(ctx context.Context, id domain.CourseID) error {
	return e.c.Do(ctx, Request{Method: http.MethodPost, Path: creatorCoursePath(id) + "/submit"}, nil)
}

func (e *CreatorEndpoints) CreateLesson(ctx context.Context, courseID domain.CourseID, in LessonInput) (*domain.Lesson, error) {
	var out struct {
		Lesson *domain.Lesson `json:"lesson"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodPost, Path: creatorCoursePath(courseID) + "/lessons", Form: in.form()}, &out); err != nil {
		return nil, err
	}
	return out.Lesson, nil
}

func (e *CreatorEndpoints) CourseLessons(ctx context.Context, courseID domain.CourseID) ([]domain.Lesson, error) {
	var out struct {
		Lessons []domain.Lesson `json:"lessons"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: creatorCoursePath(courseID) + "/lessons"}, &out); err != nil {
		return nil, err
	}
	return out.Lessons, nil
}

func (e *CreatorEndpoints) Lesson(ctx context.Context, id domain.LessonID) (*domain.Lesson, error) {
	var out struct {
		Lesson *domain.Lesson `json:"lesson"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: creatorLessonPath(id)}, &out); err != nil {
		return nil, err
	}
	if out.Lesson == nil {
		return nil, domain.ErrLessonNotFound
	}
	return out.Lesson, nil
}

func (e *CreatorEndpoints) UpdateLesson(ctx context.Context, id domain.LessonID, in LessonInput) (*domain.Lesson, error) {
	var out struct {
		Lesson *domain.Lesson `json:"lesson"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodPut, Path: creatorLessonPath(id), Form: in.form()}, &out); err != nil {
		return nil, err
	}
	return out.Lesson, nil
}

func (e *CreatorEndpoints) DeleteLesson(ctx context.Context, id domain.LessonID) error {
	return e.c.Do(ctx, Request{Method: http.MethodDelete, Path: creatorLessonPath(id)}, nil)
}

// Transcribe asks the backend to generate a transcript for the lesson video.
func (e *CreatorEndpoints) Transcribe(ctx context.Context, id domain.LessonID) (string, error) {
	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := e.c.Do(ctx, Request{Method: http.MethodPost, Path: creatorLessonPath(id) + "/transcribe"}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Transcript), nil
}

func (e *CreatorEndpoints) Analytics(ctx context.Context, id domain.CourseID) (map[string]any, error) {
	out := map[string]any{}
	if err := e.c.Do(ctx, Request{Method: http.MethodGet, Path: creatorCoursePath(id) + "/analytics"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *CreatorEndpoints) UploadVideo(ctx context.Context, video FormFile) (*domain.Media, error) {
	video.Field = "video"
	form := &MultipartForm{Files: []FormFile{video}}
	var out domain.Media
	if err := e.c.Do(ctx, Request{Method: http.MethodPost, Path: "/creator/upload/video", Form: form}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
