package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/infrastructure/repositories/memory"
	"microcourses/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playerFixture struct {
	*env
	user    domain.User
	course  domain.Course
	lessons []domain.Lesson
	player  *LessonPlayer
}

func newPlayerFixture(t *testing.T, durations ...float64) *playerFixture {
	t.Helper()
	e := newEnv(t)
	user := e.signIn(t, domain.RoleLearner)
	course, lessons := e.course(durations...)
	e.backend.Enroll(user.ID, course.ID)
	e.sessions.Initialize(context.Background())

	tracker := NewProgressTracker(course.ID, e.durable, 0, e.metrics, logger.NewNop())
	player := NewLessonPlayer(course.ID, e.client.Learner, tracker, e.metrics, logger.NewNop())
	t.Cleanup(player.Close)
	return &playerFixture{env: e, user: user, course: course, lessons: lessons, player: player}
}

func (f *playerFixture) completeCalls(lessonID domain.LessonID) int {
	return f.backend.Calls(http.MethodPost, completePath(f.course.ID, lessonID))
}

func TestLessonPlayer_OpensOnFirstLesson(t *testing.T) {
	f := newPlayerFixture(t, 300, 300, 600)
	require.NoError(t, f.player.Open(context.Background()))

	cur, ok := f.player.Current()
	require.True(t, ok)
	assert.Equal(t, domain.LessonID("L1"), cur.ID)
	assert.Equal(t, 0.0, f.player.StartPosition())
	assert.Len(t, f.player.Lessons(), 3)
	assert.Equal(t, 3, f.player.Progress().TotalLessons)
}

func TestLessonPlayer_ResumesLastWatched(t *testing.T) {
	f := newPlayerFixture(t, 300, 300, 600)
	ctx := context.Background()

	earlier := NewProgressTracker(f.course.ID, f.durable, 0, nil, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier.now = func() time.Time { return now }
	require.NoError(t, earlier.Record(ctx, "L1", 100, 300))
	now = now.Add(100 * time.Second)
	require.NoError(t, earlier.Record(ctx, "L2", 75, 300))

	require.NoError(t, f.player.Open(ctx))
	cur, _ := f.player.Current()
	assert.Equal(t, domain.LessonID("L2"), cur.ID)
	assert.Equal(t, 75.0, f.player.StartPosition())
}

func TestLessonPlayer_CompletesExactlyOnceAtEnd(t *testing.T) {
	f := newPlayerFixture(t, 300, 300, 600)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))
	_, err := f.player.Select("L3")
	require.NoError(t, err)

	completions := 0
	for pos := 590.0; pos <= 600; pos += 0.25 {
		done, err := f.player.TimeUpdate(ctx, "L3", pos, 600)
		require.NoError(t, err)
		if done {
			completions++
		}
	}
	for i := 0; i < 30; i++ {
		done, err := f.player.TimeUpdate(ctx, "L3", 600, 600)
		require.NoError(t, err)
		assert.False(t, done)
	}
	done, err := f.player.Ended(ctx, "L3")
	require.NoError(t, err)
	assert.False(t, done)

	assert.Equal(t, 1, completions)
	assert.Equal(t, 1, f.completeCalls("L3"))
	assert.Equal(t, []domain.LessonID{"L3"}, f.backend.Completed(f.user.ID, f.course.ID))
	assert.True(t, f.player.Progress().IsCompleted("L3"))
	assert.Equal(t, 1, f.metrics.snapshot().completions)
}

func TestLessonPlayer_AdvancesAfterCompletion(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))

	done, err := f.player.Ended(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, done)

	cur, _ := f.player.Current()
	assert.Equal(t, domain.LessonID("L2"), cur.ID)
	assert.Equal(t, 100, f.player.Tracker().PercentWatched("L1"))
}

func TestLessonPlayer_StaleEventsDoNotCompleteNextLesson(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))

	_, err := f.player.TimeUpdate(ctx, "L1", 300, 300)
	require.NoError(t, err)

	// late reports from the previous video
	for i := 0; i < 5; i++ {
		_, err := f.player.TimeUpdate(ctx, "L1", 300, 300)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.completeCalls("L1"))
	assert.Equal(t, 0, f.completeCalls("L2"))
}

func TestLessonPlayer_SkipsServerCompletedLessons(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	f.backend.MarkCompleted(f.user.ID, f.course.ID, "L1")
	require.NoError(t, f.player.Open(ctx))

	done, err := f.player.Ended(ctx, "L1")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, f.completeCalls("L1"))

	_, err = f.player.MarkComplete(ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
}

func TestLessonPlayer_ManualCompletion(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))

	done, err := f.player.MarkComplete(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, f.completeCalls("L1"))
	assert.Equal(t, 50.0, f.player.Progress().Progress)
}

func TestLessonPlayer_FailedCompletionIsRetried(t *testing.T) {
	f := newPlayerFixture(t, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))
	f.backend.Fail(http.MethodPost, completePath(f.course.ID, "L1"), http.StatusInternalServerError, "try again", 1)

	done, err := f.player.TimeUpdate(ctx, "L1", 300, 300)
	assert.Error(t, err)
	assert.False(t, done)

	done, err = f.player.TimeUpdate(ctx, "L1", 300, 300)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 2, f.completeCalls("L1"))
}

func TestLessonPlayer_SelectStartsNewPlaythrough(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))

	_, err := f.player.Select("nope")
	assert.ErrorIs(t, err, domain.ErrLessonNotFound)

	next, ok := f.player.Next()
	require.True(t, ok)
	assert.Equal(t, domain.LessonID("L2"), next.ID)
	_, ok = f.player.Next()
	assert.False(t, ok)

	prev, ok := f.player.Previous()
	require.True(t, ok)
	assert.Equal(t, domain.LessonID("L1"), prev.ID)
	_, ok = f.player.Previous()
	assert.False(t, ok)
}

func TestLessonPlayer_CloseDiscardsLateResults(t *testing.T) {
	f := newPlayerFixture(t, 300, 300)
	ctx := context.Background()
	require.NoError(t, f.player.Open(ctx))

	release := f.backend.Hold(http.MethodPost, completePath(f.course.ID, "L1"))
	type result struct {
		done bool
		err  error
	}
	results := make(chan result, 1)
	go func() {
		done, err := f.player.Ended(ctx, "L1")
		results <- result{done, err}
	}()
	require.Eventually(t, func() bool { return f.completeCalls("L1") == 1 }, 2*time.Second, 5*time.Millisecond)

	f.player.Close()
	release()
	res := <-results
	require.NoError(t, res.err)

	cur, _ := f.player.Current()
	assert.Equal(t, domain.LessonID("L1"), cur.ID)
	assert.False(t, f.player.Progress().IsCompleted("L1"))

	_, err := f.player.TimeUpdate(ctx, "L1", 10, 300)
	assert.ErrorIs(t, err, domain.ErrPlayerClosed)
}

func TestLessonPlayer_OpenErrors(t *testing.T) {
	f := newPlayerFixture(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.player.Open(ctx), domain.ErrNoLessons)
	_, ok := f.player.Current()
	assert.False(t, ok)

	other := NewLessonPlayer("missing", f.client.Learner, NewProgressTracker("missing", memory.NewMemoryKeyValueStore(), 0, nil, nil), nil, nil)
	assert.Error(t, other.Open(ctx))
}
