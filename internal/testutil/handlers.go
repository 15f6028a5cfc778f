package testutil

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"microcourses/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (b *Backend) setupRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", b.register)
		auth.POST("/login", b.login)

		private := auth.Group("", b.authMiddleware())
		private.POST("/logout", b.logout)
		private.GET("/profile", b.profile)
		private.PUT("/profile", b.updateProfile)
		private.PUT("/change-password", b.changePassword)
		private.POST("/apply-creator", b.applyCreator)
	}

	api.GET("/courses", b.listCourses)
	api.GET("/courses/search", b.listCourses)
	api.GET("/courses/:id", b.getCourse)
	api.POST("/courses/:id/rate", b.authMiddleware(), b.rateCourse)

	learner := api.Group("/learner", b.authMiddleware(), b.requireRole(domain.RoleLearner))
	{
		learner.GET("/courses", b.enrolledCourses)
		learner.POST("/courses/:courseId/enroll", b.enroll)
		learner.GET("/courses/:courseId/lessons", b.courseLessons)
		learner.GET("/courses/:courseId/progress", b.courseProgress)
		learner.POST("/courses/:courseId/lessons/:lessonId/complete", b.completeLesson)
		learner.GET("/courses/:courseId/certificate", b.certificate)
		learner.GET("/recommendations", b.recommendations)
		learner.GET("/stats", b.stats)
	}

	creator := api.Group("/creator", b.authMiddleware(), b.requireRole(domain.RoleCreator))
	{
		creator.GET("/courses", b.creatorCourses)
		creator.POST("/courses", b.createCourse)
	}

	admin := api.Group("/admin", b.authMiddleware(), b.requireRole(domain.RoleAdmin))
	{
		admin.GET("/dashboard", b.dashboard)
		admin.GET("/courses/pending", b.pendingCourses)
		admin.PUT("/courses/:id/approve", b.reviewCourse(domain.CoursePublished))
		admin.PUT("/courses/:id/reject", b.reviewCourse(domain.CourseRejected))
		admin.GET("/creator-applications", b.creatorApplications)
		admin.PUT("/creators/:id/approve", b.reviewCreator(domain.ApplicationApproved))
		admin.PUT("/creators/:id/reject", b.reviewCreator(domain.ApplicationRejected))
		admin.PUT("/users/:id/block", b.setBlocked(true))
		admin.PUT("/users/:id/unblock", b.setBlocked(false))
	}
}

// auth

func (b *Backend) register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Please provide all required fields")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byEmail[strings.ToLower(req.Email)]; exists {
		fail(c, http.StatusBadRequest, "User already exists with this email")
		return
	}
	role := domain.RoleLearner
	if req.Role == domain.RoleCreator {
		role = domain.RoleCreator
	}
	u := b.addUserLocked(req.Name, req.Email, req.Password, role)
	token, err := b.issueTokenLocked(u.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	ok(c, http.StatusCreated, gin.H{"user": u, "token": token})
}

func (b *Backend) login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Please provide email and password")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id, exists := b.byEmail[strings.ToLower(req.Email)]
	a := b.accounts[id]
	if !exists || a == nil || a.password != req.Password {
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if a.user.IsBlocked {
		fail(c, http.StatusForbidden, "Account is blocked")
		return
	}
	token, err := b.issueTokenLocked(id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	ok(c, http.StatusOK, gin.H{"user": a.user, "token": token})
}

func (b *Backend) logout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	b.mu.Lock()
	b.revoked[token] = true
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (b *Backend) profile(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok(c, http.StatusOK, gin.H{"user": b.accounts[currentUserID(c)].user})
}

func (b *Backend) updateProfile(c *gin.Context) {
	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.accounts[currentUserID(c)]
	if req.Name != "" {
		if len(strings.TrimSpace(req.Name)) < 2 {
			fail(c, http.StatusBadRequest, "Name must be at least 2 characters")
			return
		}
		a.user.Name = req.Name
	}
	if req.Bio != "" {
		a.user.Bio = req.Bio
	}
	if req.Avatar != "" {
		a.user.Avatar = req.Avatar
	}
	ok(c, http.StatusOK, gin.H{"user": a.user})
}

func (b *Backend) changePassword(c *gin.Context) {
	var req domain.PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.accounts[currentUserID(c)]
	if a.password != req.CurrentPassword {
		fail(c, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if len(req.NewPassword) < 6 {
		fail(c, http.StatusBadRequest, "New password must be at least 6 characters")
		return
	}
	a.password = req.NewPassword
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated successfully"})
}

func (b *Backend) applyCreator(c *gin.Context) {
	var req domain.CreatorApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Motivation) == "" {
		fail(c, http.StatusBadRequest, "Motivation is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.accounts[currentUserID(c)]
	if a.user.Role != domain.RoleLearner {
		fail(c, http.StatusBadRequest, "Only learners can apply to become creators")
		return
	}
	if app := a.user.CreatorApplication; app != nil && app.Status == domain.ApplicationPending {
		fail(c, http.StatusBadRequest, "You already have a pending application")
		return
	}
	now := time.Now().UTC().Truncate(time.Second)
	a.user.CreatorApplication = &domain.CreatorApplication{
		Status:     domain.ApplicationPending,
		AppliedAt:  &now,
		Motivation: req.Motivation,
		Expertise:  req.Expertise,
		Experience: req.Experience,
		Portfolio:  req.Portfolio,
	}
	ok(c, http.StatusOK, gin.H{"creatorApplication": a.user.CreatorApplication})
}

// catalog

func (b *Backend) listCourses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(domain.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = domain.DefaultPageSize
	}
	search := strings.ToLower(c.Query("search"))
	category := c.Query("category")
	level := c.Query("level")

	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []domain.Course
	for _, id := range b.courseOrder {
		course := b.courses[id]
		if course.Status != domain.CoursePublished {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(course.Title), search) {
			continue
		}
		if category != "" && course.Category != category {
			continue
		}
		if level != "" && course.Level != level {
			continue
		}
		item := *course
		item.Lessons = nil
		matched = append(matched, item)
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	courses := matched[start:end]
	if courses == nil {
		courses = []domain.Course{}
	}
	ok(c, http.StatusOK, domain.CoursePage{
		Courses: courses,
		Pagination: domain.Pagination{
			Page:  page,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
			Total: total,
		},
	})
}

func (b *Backend) getCourse(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	course, exists := b.courses[domain.CourseID(c.Param("id"))]
	if !exists {
		fail(c, http.StatusNotFound, "Course not found")
		return
	}
	item := *course
	item.Lessons = b.lessons[course.ID]
	ok(c, http.StatusOK, gin.H{"course": item})
}

// learner

func (b *Backend) enrolledCourses(c *gin.Context) {
	uid := currentUserID(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.Enrollment{}
	for _, id := range b.courseOrder {
		e := b.enrollments[uid][id]
		if e == nil {
			continue
		}
		enrolledAt := e.enrolledAt
		progress := b.progressLocked(uid, id)
		out = append(out, domain.Enrollment{
			ID:                e.id,
			Course:            *b.courses[id],
			Progress:          progress.Progress,
			CertificateIssued: progress.CertificateIssued,
			EnrolledAt:        &enrolledAt,
		})
	}
	ok(c, http.StatusOK, out)
}

func (b *Backend) enroll(c *gin.Context) {
	uid := currentUserID(c)
	courseID := domain.CourseID(c.Param("courseId"))

	b.mu.Lock()
	defer b.mu.Unlock()

	course, exists := b.courses[courseID]
	if !exists || course.Status != domain.CoursePublished {
		fail(c, http.StatusNotFound, "Course not found")
		return
	}
	if b.enrollments[uid][courseID] != nil {
		fail(c, http.StatusBadRequest, "Already enrolled in this course")
		return
	}
	b.enrollLocked(uid, courseID)
	ok(c, http.StatusCreated, gin.H{"courseId": courseID})
}

// enrolledCourse aborts the request unless the user is enrolled.
func (b *Backend) enrolledCourse(c *gin.Context) (domain.UserID, domain.CourseID, *enrollment, bool) {
	uid := currentUserID(c)
	courseID := domain.CourseID(c.Param("courseId"))
	if _, exists := b.courses[courseID]; !exists {
		fail(c, http.StatusNotFound, "Course not found")
		return "", "", nil, false
	}
	e := b.enrollments[uid][courseID]
	if e == nil {
		fail(c, http.StatusForbidden, "Not enrolled in this course")
		return "", "", nil, false
	}
	return uid, courseID, e, true
}

func (b *Backend) courseLessons(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, courseID, _, enrolled := b.enrolledCourse(c)
	if !enrolled {
		return
	}
	lessons := b.lessons[courseID]
	if lessons == nil {
		lessons = []domain.Lesson{}
	}
	ok(c, http.StatusOK, gin.H{"lessons": lessons})
}

func (b *Backend) progressLocked(uid domain.UserID, courseID domain.CourseID) domain.CourseProgress {
	completed := b.completedLocked(uid, courseID)
	total := len(b.lessons[courseID])
	p := domain.CourseProgress{CompletedLessons: completed, TotalLessons: total}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []domain.LessonID{}
	}
	if total > 0 {
		p.Progress = math.Round(100 * float64(len(completed)) / float64(total))
		p.CertificateIssued = len(completed) == total
	}
	return p
}

func (b *Backend) courseProgress(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uid, courseID, _, enrolled := b.enrolledCourse(c)
	if !enrolled {
		return
	}
	ok(c, http.StatusOK, b.progressLocked(uid, courseID))
}

func (b *Backend) completeLesson(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uid, courseID, e, enrolled := b.enrolledCourse(c)
	if !enrolled {
		return
	}
	lessonID := domain.LessonID(c.Param("lessonId"))
	found := false
	for _, l := range b.lessons[courseID] {
		if l.ID == lessonID {
			found = true
			break
		}
	}
	if !found {
		fail(c, http.StatusNotFound, "Lesson not found")
		return
	}
	e.completed[lessonID] = true
	ok(c, http.StatusOK, b.progressLocked(uid, courseID))
}

func (b *Backend) certificate(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uid, courseID, _, enrolled := b.enrolledCourse(c)
	if !enrolled {
		return
	}
	if !b.progressLocked(uid, courseID).CertificateIssued {
		fail(c, http.StatusBadRequest, "Course not completed yet")
		return
	}
	c.Data(http.StatusOK, "application/pdf", []byte("%PDF-1.4\n% certificate "+string(courseID)+"\n"))
}

func (b *Backend) recommendations(c *gin.Context) {
	uid := currentUserID(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.Course{}
	for _, id := range b.courseOrder {
		course := b.courses[id]
		if course.Status != domain.CoursePublished || b.enrollments[uid][id] != nil {
			continue
		}
		out = append(out, *course)
		if len(out) == 4 {
			break
		}
	}
	ok(c, http.StatusOK, out)
}

func (b *Backend) stats(c *gin.Context) {
	uid := currentUserID(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	var s domain.LearningStats
	var sum float64
	for courseID := range b.enrollments[uid] {
		s.TotalEnrolled++
		p := b.progressLocked(uid, courseID)
		sum += p.Progress
		if p.CertificateIssued {
			s.CompletedCourses++
		}
		for _, l := range b.lessons[courseID] {
			for _, done := range p.CompletedLessons {
				if done == l.ID {
					s.TotalLearningTime += l.Duration
				}
			}
		}
	}
	if s.TotalEnrolled > 0 {
		s.AverageProgress = math.Round(sum / float64(s.TotalEnrolled))
	}
	ok(c, http.StatusOK, s)
}

// creator

func (b *Backend) creatorCourses(c *gin.Context) {
	uid := currentUserID(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.Course{}
	for _, id := range b.courseOrder {
		course := b.courses[id]
		if course.Creator != nil && course.Creator.ID == uid {
			out = append(out, *course)
		}
	}
	ok(c, http.StatusOK, gin.H{"courses": out})
}

func (b *Backend) createCourse(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		fail(c, http.StatusBadRequest, "Title is required")
		return
	}
	price, _ := strconv.ParseFloat(c.PostForm("price"), 64)

	course := domain.Course{
		ID:          domain.CourseID("course-" + uuid.NewString()[:8]),
		Title:       title,
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Level:       c.PostForm("level"),
		Price:       price,
		Status:      domain.CourseDraft,
	}
	if fh, err := c.FormFile("thumbnail"); err == nil {
		course.Thumbnail = &domain.Media{URL: "https://cdn.test/" + fh.Filename, PublicID: fh.Filename}
	}

	uid := currentUserID(c)
	b.mu.Lock()
	a := b.accounts[uid]
	course.Creator = &domain.CreatorSummary{ID: uid, Name: a.user.Name}
	stored := course
	b.courses[course.ID] = &stored
	b.courseOrder = append(b.courseOrder, course.ID)
	b.mu.Unlock()

	ok(c, http.StatusCreated, gin.H{"course": course})
}

// admin

func (b *Backend) dashboard(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var s domain.DashboardStatistics
	s.TotalUsers = len(b.accounts)
	s.TotalCourses = len(b.courses)
	for _, byCourse := range b.enrollments {
		for courseID := range byCourse {
			s.TotalRevenue += b.courses[courseID].Price
		}
	}
	for _, a := range b.accounts {
		if app := a.user.CreatorApplication; app != nil && app.Status == domain.ApplicationPending {
			s.PendingCreatorApplications++
		}
	}
	ok(c, http.StatusOK, domain.DashboardStats{Statistics: s})
}

func (b *Backend) pendingCourses(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.Course{}
	for _, id := range b.courseOrder {
		if course := b.courses[id]; course.Status == domain.CoursePending {
			out = append(out, *course)
		}
	}
	ok(c, http.StatusOK, out)
}

func (b *Backend) reviewCourse(status domain.CourseStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Feedback string `json:"feedback"`
			Reason   string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)

		b.mu.Lock()
		defer b.mu.Unlock()

		course, exists := b.courses[domain.CourseID(c.Param("id"))]
		if !exists {
			fail(c, http.StatusNotFound, "Course not found")
			return
		}
		course.Status = status
		if status == domain.CourseRejected {
			course.RejectionReason = body.Reason
		}
		ok(c, http.StatusOK, gin.H{"course": course})
	}
}

func (b *Backend) creatorApplications(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.User{}
	for _, a := range b.accounts {
		if app := a.user.CreatorApplication; app != nil && app.Status == domain.ApplicationPending {
			out = append(out, a.user)
		}
	}
	ok(c, http.StatusOK, out)
}

func (b *Backend) reviewCreator(status domain.ApplicationStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)

		b.mu.Lock()
		defer b.mu.Unlock()

		a := b.accounts[domain.UserID(c.Param("id"))]
		if a == nil || a.user.CreatorApplication == nil {
			fail(c, http.StatusNotFound, "Application not found")
			return
		}
		a.user.CreatorApplication.Status = status
		if status == domain.ApplicationApproved {
			a.user.Role = domain.RoleCreator
		} else {
			a.user.CreatorApplication.RejectionReason = body.Reason
		}
		ok(c, http.StatusOK, gin.H{"user": a.user})
	}
}

func (b *Backend) rateCourse(c *gin.Context) {
	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating < 1 || req.Rating > 5 {
		fail(c, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	course, exists := b.courses[domain.CourseID(c.Param("id"))]
	if !exists {
		fail(c, http.StatusNotFound, "Course not found")
		return
	}
	r := &course.Rating
	r.Average = (r.Average*float64(r.Count) + float64(req.Rating)) / float64(r.Count+1)
	r.Count++
	ok(c, http.StatusOK, gin.H{"rating": r})
}

func (b *Backend) setBlocked(blocked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&req)
		if blocked && req.Reason == "" {
			fail(c, http.StatusBadRequest, "A reason is required")
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		a := b.accounts[domain.UserID(c.Param("id"))]
		if a == nil {
			fail(c, http.StatusNotFound, "User not found")
			return
		}
		a.user.IsBlocked = blocked
		ok(c, http.StatusOK, gin.H{"user": a.user})
	}
}
