package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
	pgstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/postgres"
)

func testSnapshot(region string, at time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		Region:      region,
		CollectedAt: at,
		Candidates:  []string{"Biden", "Trump", "Jorgensen"},
		Rows: map[string]*domain.CountyRow{
			"Cobb": {
				County:        "Cobb",
				Votes:         map[string]int64{"Biden": 1000, "Trump": 800, "Jorgensen": 20},
				MailVotes:     map[string]int64{"Biden": 400, "Trump": 150},
				TotalExpected: 2500,
			},
			"Fulton": {
				County:        "Fulton",
				Votes:         map[string]int64{"Biden": 3000, "Trump": 1200},
				TotalExpected: 5000,
			},
		},
	}
}

func TestSnapshotStore_InsertAndGetByRegion(t *testing.T) {
	pool := newTestPool(t)

	store := pgstore.NewSnapshotStore(pool)
	ctx := context.Background()

	t0 := time.Date(2020, 11, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, testSnapshot("GA", t0.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, testSnapshot("GA", t0)))

	got, err := store.GetByRegion(ctx, "GA")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].CollectedAt.Equal(t0), "ordered by collected_at")
	assert.True(t, got[1].CollectedAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, []string{"Biden", "Trump", "Jorgensen"}, got[0].Candidates)

	cobb := got[0].Row("Cobb")
	require.NotNil(t, cobb)
	assert.Equal(t, int64(2500), cobb.TotalExpected)
	assert.Equal(t, int64(1000), cobb.Votes["Biden"])
	assert.Equal(t, int64(20), cobb.Votes["Jorgensen"])
	assert.Equal(t, int64(400), cobb.MailVotes["Biden"])
	assert.Equal(t, int64(150), cobb.MailVotes["Trump"])

	fulton := got[0].Row("Fulton")
	require.NotNil(t, fulton)
	assert.Nil(t, fulton.MailVotes, "mail stays unreported")
	assert.Equal(t, int64(4200), fulton.Counted())
}

func TestSnapshotStore_InsertDuplicate(t *testing.T) {
	pool := newTestPool(t)

	store := pgstore.NewSnapshotStore(pool)
	ctx := context.Background()
	at := time.Date(2020, 11, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testSnapshot("GA", at)))
	err := store.Insert(ctx, testSnapshot("GA", at))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same time in another region is fine.
	require.NoError(t, store.Insert(ctx, testSnapshot("PA", at)))
}

func TestSnapshotStore_InsertInvalid(t *testing.T) {
	pool := newTestPool(t)

	store := pgstore.NewSnapshotStore(pool)
	snap := testSnapshot("GA", time.Date(2020, 11, 4, 12, 0, 0, 0, time.UTC))
	snap.Rows["Cobb"].Votes["Biden"] = -1

	err := store.Insert(context.Background(), snap)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSnapshotStore_ListRegions(t *testing.T) {
	pool := newTestPool(t)

	store := pgstore.NewSnapshotStore(pool)
	ctx := context.Background()
	at := time.Date(2020, 11, 4, 12, 0, 0, 0, time.UTC)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Empty(t, regions)

	require.NoError(t, store.Insert(ctx, testSnapshot("PA", at)))
	require.NoError(t, store.Insert(ctx, testSnapshot("GA", at)))
	require.NoError(t, store.Insert(ctx, testSnapshot("GA", at.Add(time.Minute))))

	regions, err = store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GA", "PA"}, regions)

	empty, err := store.GetByRegion(ctx, "AZ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
