package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/pkg/tracing"

	"go.uber.org/zap"
)

// DefaultEndTolerance is how close to the end a position counts as the end.
const DefaultEndTolerance = 500 * time.Millisecond

// ProgressTracker keeps the playback positions of one course. Records live
// in memory and are written through to the store on every update.
type ProgressTracker struct {
	courseID  domain.CourseID
	store     ports.KeyValueStore
	tolerance float64
	metrics   ports.Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	records domain.CourseProgressRecords
	claimed map[domain.LessonID]bool
}

func NewProgressTracker(courseID domain.CourseID, store ports.KeyValueStore, endTolerance time.Duration, metrics ports.Metrics, logger *zap.SugaredLogger) *ProgressTracker {
	if endTolerance <= 0 {
		endTolerance = DefaultEndTolerance
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ProgressTracker{
		courseID:  courseID,
		store:     store,
		tolerance: endTolerance.Seconds(),
		metrics:   metrics,
		logger:    logger.With("course_id", courseID),
		now:       time.Now,
		records:   make(domain.CourseProgressRecords),
		claimed:   make(map[domain.LessonID]bool),
	}
}

func (t *ProgressTracker) CourseID() domain.CourseID {
	return t.courseID
}

// Load replaces the in-memory records with the stored ones. Missing or
// unreadable data yields an empty set.
func (t *ProgressTracker) Load(ctx context.Context) domain.CourseProgressRecords {
	records := t.read(ctx)

	t.mu.Lock()
	t.records = records
	t.mu.Unlock()
	return records.Clone()
}

func (t *ProgressTracker) read(ctx context.Context) domain.CourseProgressRecords {
	raw, err := t.store.Get(ctx, domain.ProgressKey(t.courseID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warnw("cannot read saved progress", "error", err)
		}
		return make(domain.CourseProgressRecords)
	}
	records, err := decodeRecords([]byte(raw))
	if err != nil {
		t.logger.Warnw("discarding corrupt saved progress", "error", err)
		return make(domain.CourseProgressRecords)
	}
	return records
}

func decodeRecords(data []byte) (domain.CourseProgressRecords, error) {
	var records domain.CourseProgressRecords
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = make(domain.CourseProgressRecords)
	}
	return records, nil
}

// Record saves the position of a lesson, clamped to [0, total]. Calls
// before the media knows its duration are ignored.
func (t *ProgressTracker) Record(ctx context.Context, lessonID domain.LessonID, position, total float64) error {
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil
	}
	switch {
	case position < 0 || math.IsNaN(position):
		position = 0
	case position > total:
		position = total
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.records.Clone()
	next[lessonID] = domain.ProgressRecord{
		CurrentTime: position,
		Duration:    total,
		LastWatched: t.now().UTC(),
	}
	err := t.persistLocked(ctx, next)
	if t.metrics != nil {
		t.metrics.RecordProgressWrite(err)
	}
	if err != nil {
		t.logger.Warnw("failed to save progress", "lesson_id", lessonID, "error", err)
	}
	return err
}

// persistLocked adopts records once they encode, then writes them. A store
// failure keeps the in-memory update.
func (t *ProgressTracker) persistLocked(ctx context.Context, records domain.CourseProgressRecords) error {
	key := domain.ProgressKey(t.courseID)
	ctx, span := tracing.TraceStorageOperation(ctx, "write", key)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "progress.write")
	tracing.AddSpanAttributes(ctx, tracing.CourseIDKey.String(string(t.courseID)))

	data, err := json.Marshal(records)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("encode progress: %w", err)
	}
	t.records = records
	if err := t.store.Set(ctx, key, string(data)); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (t *ProgressTracker) Records() domain.CourseProgressRecords {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records.Clone()
}

func (t *ProgressTracker) Lookup(lessonID domain.LessonID) (domain.ProgressRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[lessonID]
	return r, ok
}

// ResumeTarget picks the lesson watched most recently among lessons. Ties go
// to the smaller lesson id.
func (t *ProgressTracker) ResumeTarget(lessons []domain.Lesson) (domain.Lesson, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		best     domain.Lesson
		bestTime time.Time
		found    bool
	)
	for _, l := range lessons {
		r, ok := t.records[l.ID]
		if !ok {
			continue
		}
		if !found || r.LastWatched.After(bestTime) || (r.LastWatched.Equal(bestTime) && l.ID < best.ID) {
			best, bestTime, found = l, r.LastWatched, true
		}
	}
	return best, found
}

// PercentWatched is the rounded share of the lesson played, within [0,100].
func (t *ProgressTracker) PercentWatched(lessonID domain.LessonID) int {
	t.mu.Lock()
	r, ok := t.records[lessonID]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return percent(r.CurrentTime, r.Duration)
}

func percent(position, total float64) int {
	if total <= 0 || math.IsNaN(position) || math.IsNaN(total) {
		return 0
	}
	p := math.Round(100 * position / total)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// State combines the server's completed set with local evidence.
func (t *ProgressTracker) State(lessonID domain.LessonID, server *domain.CourseProgress) domain.LessonState {
	if server != nil && server.IsCompleted(lessonID) {
		return domain.LessonCompleted
	}
	if r, ok := t.Lookup(lessonID); ok && r.CurrentTime > 0 {
		return domain.LessonInProgress
	}
	return domain.LessonNotStarted
}

// ReachedEnd reports whether the saved position is at the end of the lesson.
func (t *ProgressTracker) ReachedEnd(lessonID domain.LessonID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reachedEndLocked(lessonID)
}

func (t *ProgressTracker) reachedEndLocked(lessonID domain.LessonID) bool {
	r, ok := t.records[lessonID]
	return ok && r.Duration > 0 && r.CurrentTime > 0 && r.CurrentTime >= r.Duration-t.tolerance
}

// ClaimCompletion returns true exactly once per playthrough, and only after
// the lesson reached its end.
func (t *ProgressTracker) ClaimCompletion(lessonID domain.LessonID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claimed[lessonID] || !t.reachedEndLocked(lessonID) {
		return false
	}
	t.claimed[lessonID] = true
	return true
}

// MarkClaimed records a completion triggered by other means, such as a
// manual mark-complete.
func (t *ProgressTracker) MarkClaimed(lessonID domain.LessonID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claimed[lessonID] {
		return false
	}
	t.claimed[lessonID] = true
	return true
}

// ResetCompletion starts a new playthrough of the lesson.
func (t *ProgressTracker) ResetCompletion(lessonID domain.LessonID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.claimed, lessonID)
}

// Export returns the stored blob for backups.
func (t *ProgressTracker) Export(ctx context.Context) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(t.records)
}

// Import replaces the records with blob and persists them.
func (t *ProgressTracker) Import(ctx context.Context, blob json.RawMessage) error {
	records, err := decodeRecords(blob)
	if err != nil {
		return fmt.Errorf("decode progress for course %s: %w", t.courseID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked(ctx, records)
}
