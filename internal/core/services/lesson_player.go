package services

import (
	"context"
	"fmt"
	"sync"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LessonPlayer drives the learning view of one course: which lesson is
// current, where playback resumes and when a lesson is reported complete.
type LessonPlayer struct {
	courseID domain.CourseID
	api      ports.LearnerAPI
	tracker  *ProgressTracker
	metrics  ports.Metrics
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	lessons  []domain.Lesson
	progress domain.CourseProgress
	current  int
	opened   bool
	closed   bool
}

func NewLessonPlayer(courseID domain.CourseID, api ports.LearnerAPI, tracker *ProgressTracker, metrics ports.Metrics, logger *zap.SugaredLogger) *LessonPlayer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LessonPlayer{
		courseID: courseID,
		api:      api,
		tracker:  tracker,
		metrics:  metrics,
		logger:   logger.With("course_id", courseID),
		current:  -1,
	}
}

// Open loads the lessons, the server progress and the saved positions, then
// selects the resume target or the first lesson.
func (p *LessonPlayer) Open(ctx context.Context) error {
	var (
		lessons  []domain.Lesson
		progress *domain.CourseProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lessons, err = p.api.CourseLessons(gctx, p.courseID)
		if err != nil {
			return fmt.Errorf("load lessons: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		progress, err = p.api.CourseProgress(gctx, p.courseID)
		if err != nil {
			return fmt.Errorf("load course progress: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	p.tracker.Load(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrPlayerClosed
	}

	p.lessons = lessons
	if progress != nil {
		p.progress = *progress
	}
	p.opened = true
	if len(lessons) == 0 {
		p.current = -1
		return domain.ErrNoLessons
	}

	p.current = 0
	if target, ok := p.tracker.ResumeTarget(lessons); ok {
		p.current = p.indexLocked(target.ID)
		p.logger.Debugw("resuming", "lesson_id", target.ID)
	}
	return nil
}

func (p *LessonPlayer) indexLocked(id domain.LessonID) int {
	for i, l := range p.lessons {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (p *LessonPlayer) Lessons() []domain.Lesson {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Lesson(nil), p.lessons...)
}

// Progress is the server's view of the course, as of the last refresh.
func (p *LessonPlayer) Progress() domain.CourseProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.progress
	out.CompletedLessons = append([]domain.LessonID(nil), p.progress.CompletedLessons...)
	return out
}

func (p *LessonPlayer) Tracker() *ProgressTracker {
	return p.tracker
}

func (p *LessonPlayer) Current() (domain.Lesson, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < 0 || p.current >= len(p.lessons) {
		return domain.Lesson{}, false
	}
	return p.lessons[p.current], true
}

// StartPosition is where playback of the current lesson should begin.
func (p *LessonPlayer) StartPosition() float64 {
	lesson, ok := p.Current()
	if !ok {
		return 0
	}
	if r, ok := p.tracker.Lookup(lesson.ID); ok && r.CurrentTime > 0 {
		return r.CurrentTime
	}
	return 0
}

// Select makes lessonID current and starts a new playthrough of it.
func (p *LessonPlayer) Select(lessonID domain.LessonID) (domain.Lesson, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.Lesson{}, domain.ErrPlayerClosed
	}
	i := p.indexLocked(lessonID)
	if i < 0 {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	p.current = i
	p.tracker.ResetCompletion(lessonID)
	return p.lessons[i], nil
}

func (p *LessonPlayer) Next() (domain.Lesson, bool) {
	return p.step(1)
}

func (p *LessonPlayer) Previous() (domain.Lesson, bool) {
	return p.step(-1)
}

func (p *LessonPlayer) step(delta int) (domain.Lesson, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.current + delta
	if p.closed || p.current < 0 || next < 0 || next >= len(p.lessons) {
		return domain.Lesson{}, false
	}
	p.current = next
	p.tracker.ResetCompletion(p.lessons[next].ID)
	return p.lessons[next], true
}

// TimeUpdate handles a playback position report from the media of
// lessonID. It returns true when this report completed the lesson.
func (p *LessonPlayer) TimeUpdate(ctx context.Context, lessonID domain.LessonID, position, duration float64) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if err := p.tracker.Record(ctx, lessonID, position, duration); err != nil {
		p.logger.Debugw("progress not saved", "lesson_id", lessonID, "error", err)
	}
	if !p.tracker.ReachedEnd(lessonID) {
		return false, nil
	}
	return p.complete(ctx, lessonID, p.tracker.ClaimCompletion, false)
}

// Ended handles the end-of-media signal for lessonID.
func (p *LessonPlayer) Ended(ctx context.Context, lessonID domain.LessonID) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	duration := 0.0
	if r, ok := p.tracker.Lookup(lessonID); ok {
		duration = r.Duration
	}
	if duration <= 0 {
		if l, ok := p.lesson(lessonID); ok {
			duration = l.Duration
		}
	}
	if err := p.tracker.Record(ctx, lessonID, duration, duration); err != nil {
		p.logger.Debugw("progress not saved", "lesson_id", lessonID, "error", err)
	}
	return p.complete(ctx, lessonID, p.tracker.MarkClaimed, false)
}

// MarkComplete reports the current lesson complete on request, whatever its
// position.
func (p *LessonPlayer) MarkComplete(ctx context.Context) (bool, error) {
	lesson, ok := p.Current()
	if !ok {
		return false, domain.ErrLessonNotFound
	}
	return p.complete(ctx, lesson.ID, p.tracker.MarkClaimed, true)
}

func (p *LessonPlayer) lesson(id domain.LessonID) (domain.Lesson, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.indexLocked(id); i >= 0 {
		return p.lessons[i], true
	}
	return domain.Lesson{}, false
}

func (p *LessonPlayer) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrPlayerClosed
	}
	return nil
}

func (p *LessonPlayer) complete(ctx context.Context, lessonID domain.LessonID, claim func(domain.LessonID) bool, manual bool) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, domain.ErrPlayerClosed
	}
	if p.progress.IsCompleted(lessonID) {
		p.mu.Unlock()
		if manual {
			return false, domain.ErrAlreadyCompleted
		}
		return false, nil
	}
	p.mu.Unlock()

	if !claim(lessonID) {
		return false, nil
	}

	ctx, span := tracing.StartSpan(ctx, "lesson.complete")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.CourseIDKey.String(string(p.courseID)),
		tracing.LessonIDKey.String(string(lessonID)),
	)

	if err := p.api.CompleteLesson(ctx, p.courseID, lessonID); err != nil {
		tracing.RecordError(ctx, err)
		p.tracker.ResetCompletion(lessonID)
		p.logger.Warnw("failed to mark lesson complete", "lesson_id", lessonID, "error", err)
		return false, err
	}
	if p.metrics != nil {
		p.metrics.RecordLessonCompletion()
	}
	p.logger.Infow("lesson completed", "lesson_id", lessonID)

	progress, err := p.api.CourseProgress(ctx, p.courseID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return true, nil
	}
	if err != nil {
		p.logger.Warnw("failed to refresh course progress", "error", err)
	} else {
		p.progress = *progress
	}
	if p.current >= 0 && p.current < len(p.lessons) && p.lessons[p.current].ID == lessonID && p.current+1 < len(p.lessons) {
		p.current++
		p.tracker.ResetCompletion(p.lessons[p.current].ID)
	}
	return true, nil
}

// Close detaches the player. Calls still in flight finish without touching
// its state.
func (p *LessonPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
