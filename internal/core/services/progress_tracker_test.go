package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	ports.KeyValueStore
}

func (brokenStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func newTracker(t *testing.T, store ports.KeyValueStore) (*ProgressTracker, *time.Time) {
	t.Helper()
	if store == nil {
		store = memory.NewMemoryKeyValueStore()
	}
	tr := NewProgressTracker("c1", store, 0, nil, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestProgressTracker_ResumeSelectsLatest(t *testing.T) {
	tr, now := newTracker(t, nil)
	ctx := context.Background()
	lessons := []domain.Lesson{{ID: "L1"}, {ID: "L2"}, {ID: "L3"}}

	_, ok := tr.ResumeTarget(lessons)
	assert.False(t, ok)

	require.NoError(t, tr.Record(ctx, "L1", 30, 300))
	*now = now.Add(100 * time.Second)
	require.NoError(t, tr.Record(ctx, "L2", 10, 300))

	target, ok := tr.ResumeTarget(lessons)
	require.True(t, ok)
	assert.Equal(t, domain.LessonID("L2"), target.ID)

	*now = now.Add(time.Second)
	require.NoError(t, tr.Record(ctx, "L1", 31, 300))
	target, _ = tr.ResumeTarget(lessons)
	assert.Equal(t, domain.LessonID("L1"), target.ID)
}

func TestProgressTracker_ResumeIgnoresUnlistedAndBreaksTies(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "L9", 10, 300))
	require.NoError(t, tr.Record(ctx, "L3", 10, 300))
	require.NoError(t, tr.Record(ctx, "L2", 10, 300))

	target, ok := tr.ResumeTarget([]domain.Lesson{{ID: "L2"}, {ID: "L3"}})
	require.True(t, ok)
	assert.Equal(t, domain.LessonID("L2"), target.ID)

	_, ok = tr.ResumeTarget([]domain.Lesson{{ID: "L4"}})
	assert.False(t, ok)
}

func TestProgressTracker_PercentWatchedClamped(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()

	assert.Equal(t, 0, tr.PercentWatched("L1"))

	cases := []struct {
		position, total float64
		want            int
	}{
		{0, 600, 0},
		{150, 600, 25},
		{299.4, 600, 50},
		{600, 600, 100},
		{600.4, 600, 100},
		{9000, 600, 100},
	}
	for _, tc := range cases {
		require.NoError(t, tr.Record(ctx, "L1", tc.position, tc.total))
		assert.Equal(t, tc.want, tr.PercentWatched("L1"), "%v/%v", tc.position, tc.total)
	}

	assert.Equal(t, 0, percent(10, 0))
	assert.Equal(t, 0, percent(math.NaN(), 10))
	assert.Equal(t, 0, percent(-5, 10))
}

func TestProgressTracker_RecordIgnoresUnknownDuration(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "L1", 12, 0))
	require.NoError(t, tr.Record(ctx, "L1", 12, math.NaN()))
	require.NoError(t, tr.Record(ctx, "L1", 12, math.Inf(1)))
	assert.Empty(t, tr.Records())

	require.NoError(t, tr.Record(ctx, "L1", -3, 100))
	r, ok := tr.Lookup("L1")
	require.True(t, ok)
	assert.Equal(t, 0.0, r.CurrentTime)
	assert.Equal(t, domain.LessonNotStarted, tr.State("L1", nil))
}

func TestProgressTracker_InfinitePositionDoesNotBlockLaterWrites(t *testing.T) {
	store := memory.NewMemoryKeyValueStore()
	tr, _ := newTracker(t, store)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "L1", math.Inf(1), 600))
	require.NoError(t, tr.Record(ctx, "L2", 30, 600))
	require.NoError(t, tr.Record(ctx, "L3", math.Inf(-1), 600))

	again, _ := newTracker(t, store)
	records := again.Load(ctx)
	require.Contains(t, records, domain.LessonID("L2"))
	assert.Equal(t, 30.0, records["L2"].CurrentTime)
	assert.Equal(t, 600.0, records["L1"].CurrentTime)
	assert.Equal(t, 0.0, records["L3"].CurrentTime)
}

func TestProgressTracker_PersistsAcrossInstances(t *testing.T) {
	store := memory.NewMemoryKeyValueStore()
	tr, _ := newTracker(t, store)
	ctx := context.Background()
	require.NoError(t, tr.Record(ctx, "L1", 42, 600))

	raw, err := store.Get(ctx, domain.ProgressKey("c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"L1":{"currentTime":42,"duration":600,"lastWatched":"2026-03-01T10:00:00Z"}}`, raw)

	again, _ := newTracker(t, store)
	records := again.Load(ctx)
	require.Contains(t, records, domain.LessonID("L1"))
	assert.Equal(t, 42.0, records["L1"].CurrentTime)
}

func TestProgressTracker_CorruptStorageLoadsEmpty(t *testing.T) {
	store := memory.NewMemoryKeyValueStore()
	ctx := context.Background()

	for _, raw := range []string{"{not json", "[1,2,3]", `"text"`, "null"} {
		require.NoError(t, store.Set(ctx, domain.ProgressKey("c1"), raw))
		tr, _ := newTracker(t, store)
		assert.NotPanics(t, func() {
			assert.Empty(t, tr.Load(ctx), raw)
		})
		require.NoError(t, tr.Record(ctx, "L1", 1, 10), raw)
	}
}

func TestProgressTracker_State(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()
	server := &domain.CourseProgress{CompletedLessons: []domain.LessonID{"L3"}}

	assert.Equal(t, domain.LessonNotStarted, tr.State("L1", server))
	require.NoError(t, tr.Record(ctx, "L1", 5, 100))
	assert.Equal(t, domain.LessonInProgress, tr.State("L1", server))
	assert.Equal(t, domain.LessonCompleted, tr.State("L3", server))
}

func TestProgressTracker_ClaimCompletionOncePerPlaythrough(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "L3", 598, 600))
	assert.False(t, tr.ReachedEnd("L3"))
	assert.False(t, tr.ClaimCompletion("L3"))

	require.NoError(t, tr.Record(ctx, "L3", 599.6, 600))
	assert.True(t, tr.ReachedEnd("L3"))

	claims := 0
	for i := 0; i < 30; i++ {
		if tr.ClaimCompletion("L3") {
			claims++
		}
	}
	assert.Equal(t, 1, claims)

	tr.ResetCompletion("L3")
	assert.True(t, tr.ClaimCompletion("L3"))
	assert.False(t, tr.MarkClaimed("L3"))
}

func TestProgressTracker_ShortLessonNotFinishedAtStart(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "L1", 0, 0.3))
	assert.False(t, tr.ReachedEnd("L1"))
	assert.False(t, tr.ClaimCompletion("L1"))

	require.NoError(t, tr.Record(ctx, "L1", 0.1, 0.3))
	assert.True(t, tr.ReachedEnd("L1"))
	assert.True(t, tr.ClaimCompletion("L1"))
}

func TestProgressTracker_WriteFailureReported(t *testing.T) {
	m := &recordingMetrics{}
	tr := NewProgressTracker("c1", brokenStore{memory.NewMemoryKeyValueStore()}, 0, m, nil)

	err := tr.Record(context.Background(), "L1", 10, 100)
	assert.Error(t, err)
	_, ok := tr.Lookup("L1")
	assert.True(t, ok)

	got := m.snapshot()
	assert.Equal(t, 1, got.writes)
	assert.Equal(t, 1, got.writeFailures)
}

func TestProgressTracker_ExportImport(t *testing.T) {
	src, _ := newTracker(t, nil)
	ctx := context.Background()
	require.NoError(t, src.Record(ctx, "L1", 42, 600))

	blob, err := src.Export(ctx)
	require.NoError(t, err)

	store := memory.NewMemoryKeyValueStore()
	dst, _ := newTracker(t, store)
	require.NoError(t, dst.Import(ctx, blob))
	assert.Equal(t, src.Records(), dst.Records())

	_, err = store.Get(ctx, domain.ProgressKey("c1"))
	assert.NoError(t, err)

	assert.Error(t, dst.Import(ctx, []byte("garbage")))
}
