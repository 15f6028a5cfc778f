package domain

import (
	"net/url"
	"strconv"
	"time"
)

type CourseID string
type LessonID string

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePending   CourseStatus = "pending"
	CoursePublished CourseStatus = "published"
	CourseRejected  CourseStatus = "rejected"
)

type Media struct {
	URL      string `json:"url,omitempty"`
	PublicID string `json:"publicId,omitempty"`
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type CreatorSummary struct {
	ID   UserID `json:"_id"`
	Name string `json:"name"`
	Bio  string `json:"bio,omitempty"`
}

type Course struct {
	ID               CourseID        `json:"_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	ShortDescription string          `json:"shortDescription,omitempty"`
	Category         string          `json:"category,omitempty"`
	Level            string          `json:"level,omitempty"`
	Price            float64         `json:"price"`
	Duration         float64         `json:"duration,omitempty"`
	Status           CourseStatus    `json:"status,omitempty"`
	RejectionReason  string          `json:"rejectionReason,omitempty"`
	Thumbnail        *Media          `json:"thumbnail,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Requirements     []string        `json:"requirements,omitempty"`
	Outcomes         []string        `json:"outcomes,omitempty"`
	Rating           Rating          `json:"rating"`
	EnrollmentCount  int             `json:"enrollmentCount"`
	Creator          *CreatorSummary `json:"creator,omitempty"`
	Lessons          []Lesson        `json:"lessons,omitempty"`
	CreatedAt        *time.Time      `json:"createdAt,omitempty"`
}

type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
}

type Lesson struct {
	ID          LessonID   `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Order       int        `json:"order"`
	Duration    float64    `json:"duration,omitempty"`
	Video       *Media     `json:"video,omitempty"`
	Thumbnail   *Media     `json:"thumbnail,omitempty"`
	Resources   []Resource `json:"resources,omitempty"`
	Transcript  string     `json:"transcript,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	IsFree      bool       `json:"isFree,omitempty"`
}

// Enrollment is a learner's server-side record for one course.
type Enrollment struct {
	ID                string     `json:"_id"`
	Course            Course     `json:"course"`
	Progress          float64    `json:"progress"`
	CertificateIssued bool       `json:"certificateIssued"`
	EnrolledAt        *time.Time `json:"enrolledAt,omitempty"`
}

// CourseProgress is the server's completion state for one course. The client
// displays it and never recomputes it.
type CourseProgress struct {
	Progress          float64    `json:"progress"`
	CompletedLessons  []LessonID `json:"completedLessons"`
	CertificateIssued bool       `json:"certificateIssued"`
	TotalLessons      int        `json:"totalLessons,omitempty"`
}

func (p CourseProgress) IsCompleted(id LessonID) bool {
	for _, l := range p.CompletedLessons {
		if l == id {
			return true
		}
	}
	return false
}

type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

type CoursePage struct {
	Courses    []Course   `json:"courses"`
	Pagination Pagination `json:"pagination"`
}

const DefaultPageSize = 12

// CourseQuery holds catalog filters. Empty fields are not sent.
type CourseQuery struct {
	Search   string
	Category string
	Level    string
	Sort     string
	MinPrice string
	MaxPrice string
	Page     int
	Limit    int
}

func (q CourseQuery) Values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))

	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("search", q.Search)
	set("category", q.Category)
	set("level", q.Level)
	set("sort", q.Sort)
	set("minPrice", q.MinPrice)
	set("maxPrice", q.MaxPrice)
	return v
}

type LearningStats struct {
	TotalEnrolled     int     `json:"totalEnrolled"`
	CompletedCourses  int     `json:"completedCourses"`
	TotalLearningTime float64 `json:"totalLearningTime"`
	AverageProgress   float64 `json:"averageProgress"`
}

type DashboardStatistics struct {
	TotalUsers                 int     `json:"totalUsers"`
	TotalCourses               int     `json:"totalCourses"`
	TotalRevenue               float64 `json:"totalRevenue"`
	PendingCreatorApplications int     `json:"pendingCreatorApplications"`
}

// DashboardStats is the admin dashboard payload. The statistics block is
// authoritative; clients do not derive totals from listed items.
type DashboardStats struct {
	Statistics     DashboardStatistics `json:"statistics"`
	RecentActivity []map[string]any    `json:"recentActivity,omitempty"`
}

type CourseReview struct {
	Status   CourseStatus `json:"status"`
	Feedback string       `json:"feedback,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

type ApplicationReview struct {
	Status ApplicationStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
}
