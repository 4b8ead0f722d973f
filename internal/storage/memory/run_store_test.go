package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

func testRun(runID, region string, minute int) *domain.Run {
	return &domain.Run{
		RunID:          runID,
		Region:         region,
		RefIndex:       0,
		CurIndex:       minute,
		RefCollectedAt: baseTime,
		CurCollectedAt: baseTime.Add(time.Duration(minute) * time.Minute),
		Alpha:          0.05,
		Method:         "goodman",
		CandidateA:     "biden",
		CandidateB:     "trump",
		Margin:         domain.MarginInterval{Low: -120, High: 480, CurrentDiff: 100},
		Counties: []domain.CountyEstimate{
			{
				County:    "Maricopa",
				Source:    domain.SourceDifferential,
				Vector:    domain.VoteCountVector{Candidates: []string{"biden", "trump"}, Counts: []int64{50, 30}},
				Counted:   domain.VoteCountVector{Candidates: []string{"biden", "trump"}, Counts: []int64{150, 80}},
				Remaining: 70,
				Intervals: []domain.ProbabilityInterval{
					{Candidate: "biden", Low: 0.5, Point: 0.625, High: 0.73},
					{Candidate: "trump", Low: 0.27, Point: 0.375, High: 0.5},
				},
			},
		},
	}
}

func TestRunStore_InsertAndGetByID(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("run-1", "az", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Margin.CurrentDiff != 100 {
		t.Errorf("Expected current diff 100, got %d", got.Margin.CurrentDiff)
	}
	if len(got.Counties) != 1 || got.Counties[0].Source != domain.SourceDifferential {
		t.Errorf("Expected one differential county row, got %+v", got.Counties)
	}
}

func TestRunStore_DuplicateAndNotFound(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("run-1", "az", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testRun("run-1", "az", 2)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Run{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestRunStore_GetByRegionOrdered(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	for _, r := range []*domain.Run{
		testRun("run-c", "az", 3),
		testRun("run-a", "az", 1),
		testRun("run-b", "az", 2),
		testRun("run-x", "ga", 1),
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	runs, err := store.GetByRegion(ctx, "az")
	if err != nil {
		t.Fatalf("GetByRegion failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"run-a", "run-b", "run-c"} {
		if runs[i].RunID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, runs[i].RunID)
		}
		if runs[i].Counties != nil {
			t.Errorf("GetByRegion should not load county rows")
		}
	}
}
