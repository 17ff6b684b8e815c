package curriculum

import (
	"context"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SnapshotRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.AnalyticsSnapshot) (*types.AnalyticsSnapshot, error)
	GetByGraphAndDate(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, date time.Time) (*types.AnalyticsSnapshot, error)
	LatestByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (*types.AnalyticsSnapshot, error)
	LatestPerGraph(ctx context.Context, tx *gorm.DB, graphIDs []uuid.UUID) ([]*types.AnalyticsSnapshot, error)
	ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, limit int) ([]*types.AnalyticsSnapshot, error)
	FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	repoLog := baseLog.With("repo", "SnapshotRepo")
	return &snapshotRepo{db: db, log: repoLog}
}

// Upsert writes the snapshot for (graph_id, snapshot_date), overwriting every
// metric column when the day already has a row.
func (r *snapshotRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.AnalyticsSnapshot) (*types.AnalyticsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "graph_id"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_nodes",
				"mastered_nodes",
				"mastery_pct",
				"avg_ease_factor",
				"retention_rate_7d",
				"retention_rate_30d",
				"velocity_nodes_per_week",
				"estimated_completion_days",
				"struggling_nodes",
				"strongest_subtree",
				"total_quiz_responses",
				"avg_quality_score",
				"sessions_this_period",
				"time_of_day_distribution",
				"updated_at",
			}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *snapshotRepo) GetByGraphAndDate(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, date time.Time) (*types.AnalyticsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out types.AnalyticsSnapshot
	if err := transaction.WithContext(ctx).
		First(&out, "graph_id = ? AND snapshot_date = ?", graphID, date.Format("2006-01-02")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *snapshotRepo) LatestByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (*types.AnalyticsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out types.AnalyticsSnapshot
	if err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("snapshot_date DESC").
		First(&out).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// LatestPerGraph returns each graph's most recent snapshot in one query.
func (r *snapshotRepo) LatestPerGraph(ctx context.Context, tx *gorm.DB, graphIDs []uuid.UUID) ([]*types.AnalyticsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AnalyticsSnapshot
	if len(graphIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).Raw(
		`
SELECT DISTINCT ON (graph_id) *
FROM analytics_snapshot
WHERE graph_id IN ?
ORDER BY graph_id, snapshot_date DESC
`,
		graphIDs,
	).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListByGraph returns snapshots newest first; limit <= 0 means no limit.
func (r *snapshotRepo) ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, limit int) ([]*types.AnalyticsSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AnalyticsSnapshot
	q := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("snapshot_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *snapshotRepo) FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if graphID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Delete(&types.AnalyticsSnapshot{}).Error; err != nil {
		return err
	}
	return nil
}
