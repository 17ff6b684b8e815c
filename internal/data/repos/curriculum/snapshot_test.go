package curriculum

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/curricula-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/pointers"
	"gorm.io/datatypes"
)

func TestSnapshotRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewSnapshotRepo(db, testutil.Logger(t))

	g1 := testutil.SeedGraph(t, ctx, tx, "snapshot graph one")
	g2 := testutil.SeedGraph(t, ctx, tx, "snapshot graph two")

	day1 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first := &types.AnalyticsSnapshot{
		GraphID:               g1.ID,
		SnapshotDate:          day1,
		TotalNodes:            10,
		MasteredNodes:         2,
		MasteryPct:            0.2,
		AvgEaseFactor:         2.5,
		VelocityNodesPerWeek:  1.5,
		StrugglingNodes:       datatypes.JSON([]byte("[]")),
		TimeOfDayDistribution: datatypes.JSON([]byte(`{"morning":1,"afternoon":2,"evening":0}`)),
		TotalQuizResponses:    7,
		SessionsThisPeriod:    2,
	}
	if _, err := repo.Upsert(ctx, tx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.GetByGraphAndDate(ctx, tx, g1.ID, day1)
	if err != nil || got == nil || got.TotalNodes != 10 || got.MasteredNodes != 2 {
		t.Fatalf("GetByGraphAndDate: row=%+v err=%v", got, err)
	}
	if got.RetentionRate7d != nil {
		t.Fatalf("RetentionRate7d should start null, got %v", *got.RetentionRate7d)
	}

	// Re-running the same day overwrites instead of duplicating.
	second := &types.AnalyticsSnapshot{
		GraphID:               g1.ID,
		SnapshotDate:          day1,
		TotalNodes:            10,
		MasteredNodes:         5,
		MasteryPct:            0.5,
		AvgEaseFactor:         2.4,
		RetentionRate7d:       pointers.Float64(0.8),
		VelocityNodesPerWeek:  2.0,
		StrugglingNodes:       datatypes.JSON([]byte("[]")),
		TimeOfDayDistribution: datatypes.JSON([]byte(`{"morning":1,"afternoon":2,"evening":3}`)),
		TotalQuizResponses:    12,
		AvgQualityScore:       pointers.Float64(3.4),
		SessionsThisPeriod:    3,
	}
	if _, err := repo.Upsert(ctx, tx, second); err != nil {
		t.Fatalf("Upsert overwrite: %v", err)
	}
	got, err = repo.GetByGraphAndDate(ctx, tx, g1.ID, day1)
	if err != nil || got == nil || got.MasteredNodes != 5 || got.TotalQuizResponses != 12 {
		t.Fatalf("GetByGraphAndDate after overwrite: row=%+v err=%v", got, err)
	}
	if got.RetentionRate7d == nil || *got.RetentionRate7d != 0.8 {
		t.Fatalf("RetentionRate7d after overwrite: %v", got.RetentionRate7d)
	}
	if rows, err := repo.ListByGraph(ctx, tx, g1.ID, 0); err != nil || len(rows) != 1 {
		t.Fatalf("ListByGraph after overwrite: err=%v len=%d", err, len(rows))
	}

	dayTwoSnap := &types.AnalyticsSnapshot{
		GraphID:       g1.ID,
		SnapshotDate:  day2,
		TotalNodes:    10,
		MasteredNodes: 6,
		MasteryPct:    0.6,
		AvgEaseFactor: 2.4,
	}
	if _, err := repo.Upsert(ctx, tx, dayTwoSnap); err != nil {
		t.Fatalf("Upsert day two: %v", err)
	}

	latest, err := repo.LatestByGraph(ctx, tx, g1.ID)
	if err != nil || latest == nil || latest.SnapshotDate.Format("2006-01-02") != "2026-08-21" {
		t.Fatalf("LatestByGraph: row=%+v err=%v", latest, err)
	}

	rows, err := repo.ListByGraph(ctx, tx, g1.ID, 0)
	if err != nil || len(rows) != 2 || rows[0].SnapshotDate.Format("2006-01-02") != "2026-08-21" {
		t.Fatalf("ListByGraph: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.ListByGraph(ctx, tx, g1.ID, 1); err != nil || len(rows) != 1 || rows[0].MasteredNodes != 6 {
		t.Fatalf("ListByGraph limited: err=%v len=%d", err, len(rows))
	}

	if _, err := repo.Upsert(ctx, tx, &types.AnalyticsSnapshot{
		GraphID:       g2.ID,
		SnapshotDate:  day1,
		TotalNodes:    4,
		MasteryPct:    0,
		AvgEaseFactor: 2.5,
	}); err != nil {
		t.Fatalf("Upsert g2: %v", err)
	}
	perGraph, err := repo.LatestPerGraph(ctx, tx, []uuid.UUID{g1.ID, g2.ID})
	if err != nil || len(perGraph) != 2 {
		t.Fatalf("LatestPerGraph: err=%v len=%d", err, len(perGraph))
	}
	for _, s := range perGraph {
		if s.GraphID == g1.ID && s.SnapshotDate.Format("2006-01-02") != "2026-08-21" {
			t.Fatalf("LatestPerGraph g1 date: %s", s.SnapshotDate.Format("2006-01-02"))
		}
	}

	if missing, err := repo.GetByGraphAndDate(ctx, tx, g1.ID, day1.AddDate(0, 0, 30)); err != nil || missing != nil {
		t.Fatalf("GetByGraphAndDate missing: row=%v err=%v", missing, err)
	}

	if err := repo.FullDeleteByGraph(ctx, tx, g1.ID); err != nil {
		t.Fatalf("FullDeleteByGraph: %v", err)
	}
	if rows, err := repo.ListByGraph(ctx, tx, g1.ID, 0); err != nil || len(rows) != 0 {
		t.Fatalf("ListByGraph after delete: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.ListByGraph(ctx, tx, g2.ID, 0); err != nil || len(rows) != 1 {
		t.Fatalf("ListByGraph g2 untouched: err=%v len=%d", err, len(rows))
	}
}
