package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

func testRun(id string, cur time.Time) *domain.Run {
	candidates := []string{"Biden", "Trump"}
	return &domain.Run{
		RunID:          id,
		Region:         "GA",
		RefIndex:       0,
		CurIndex:       -1,
		RefCollectedAt: cur.Add(-time.Hour),
		CurCollectedAt: cur,
		Alpha:          0.05,
		Method:         "goodman",
		CandidateA:     "Biden",
		CandidateB:     "Trump",
		RemainingA:     domain.VoteRange{Low: 30.5, High: 55.25},
		RemainingB:     domain.VoteRange{Low: 14.75, High: 39.5},
		Margin:         domain.MarginInterval{Low: 150.5, High: 210.25, CurrentDiff: 170},
		Counties: []domain.CountyEstimate{
			{
				County:    "Cobb",
				Source:    domain.SourceDifferential,
				Vector:    domain.VoteCountVector{Candidates: candidates, Counts: []int64{50, 30}},
				Counted:   domain.VoteCountVector{Candidates: candidates, Counts: []int64{1050, 880}},
				Remaining: 70,
				Intervals: []domain.ProbabilityInterval{
					{Candidate: "Biden", Low: 0.4997, Point: 0.625, High: 0.7355},
					{Candidate: "Trump", Low: 0.2645, Point: 0.375, High: 0.5003},
				},
				ClampedEntries: 1,
			},
		},
		CreatedAt: cur.Add(time.Minute),
	}
}

func TestRunStore_InsertAndGetByID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(conn)
	ctx := context.Background()
	cur := time.Date(2020, 11, 5, 9, 0, 0, 0, time.UTC)

	run := testRun("run-1", cur)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, run.Region, got.Region)
	assert.Equal(t, -1, got.CurIndex)
	assert.True(t, got.CurCollectedAt.Equal(cur))
	assert.Equal(t, run.Margin, got.Margin)
	assert.Equal(t, run.RemainingA, got.RemainingA)

	require.Len(t, got.Counties, 1)
	c := got.Counties[0]
	assert.Equal(t, domain.SourceDifferential, c.Source)
	assert.Equal(t, int64(70), c.Remaining)
	assert.Equal(t, 1, c.ClampedEntries)
	assert.Equal(t, []int64{50, 30}, c.Vector.Counts)
	assert.Equal(t, int64(1050), c.Counted.Get("Biden"))
	pi, ok := c.Interval("Biden")
	require.True(t, ok)
	assert.InDelta(t, 0.625, pi.Point, 1e-12)
}

func TestRunStore_InsertDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(conn)
	ctx := context.Background()
	cur := time.Date(2020, 11, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testRun("run-1", cur)))
	err := store.Insert(ctx, testRun("run-1", cur))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_GetByIDNotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewRunStore(conn).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_GetByRegionOrdering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(conn)
	ctx := context.Background()
	cur := time.Date(2020, 11, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testRun("run-b", cur.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, testRun("run-c", cur)))
	require.NoError(t, store.Insert(ctx, testRun("run-a", cur)))

	runs, err := store.GetByRegion(ctx, "GA")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, "run-c", runs[1].RunID)
	assert.Equal(t, "run-b", runs[2].RunID)
	assert.Empty(t, runs[0].Counties, "region listing skips county rows")
}
