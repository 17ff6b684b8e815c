package curriculum

import (
	"context"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type ResponseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.QuizResponse) (*types.QuizResponse, error)
	RecentByNode(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, limit int) ([]*types.QuizResponse, error)
	RecentByNodeAndType(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, respType types.ResponseType, limit int) ([]*types.QuizResponse, error)
	ListByNode(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID) ([]*types.QuizResponse, error)
	CountByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error)
	RetentionCounts(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, since, until time.Time) (passes, total int64, err error)
	AvgQuality(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (*float64, error)
	DistinctSessions(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, since, until time.Time) (int64, error)
	CreatedAtsByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) ([]time.Time, error)
	StrugglingNodeIDs(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, minResponses int, maxMeanQuality float64) ([]uuid.UUID, error)
	FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, baseLog *logger.Logger) ResponseRepo {
	repoLog := baseLog.With("repo", "ResponseRepo")
	return &responseRepo{db: db, log: repoLog}
}

func (r *responseRepo) Create(ctx context.Context, tx *gorm.DB, row *types.QuizResponse) (*types.QuizResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// RecentByNode returns up to limit responses of any type, newest first.
func (r *responseRepo) RecentByNode(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, limit int) ([]*types.QuizResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.QuizResponse
	if err := transaction.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *responseRepo) RecentByNodeAndType(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, respType types.ResponseType, limit int) ([]*types.QuizResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.QuizResponse
	if err := transaction.WithContext(ctx).
		Where("node_id = ? AND response_type = ?", nodeID, respType).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListByNode returns the full history oldest first.
func (r *responseRepo) ListByNode(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID) ([]*types.QuizResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.QuizResponse
	if err := transaction.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *responseRepo) CountByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.QuizResponse{}).
		Where("graph_id = ?", graphID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// RetentionCounts tallies review responses in [since, until): passes are
// those at passing quality or above.
func (r *responseRepo) RetentionCounts(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, since, until time.Time) (int64, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out struct {
		Passes int64 `gorm:"column:passes"`
		Total  int64 `gorm:"column:total"`
	}
	if err := transaction.WithContext(ctx).Raw(
		`
SELECT
  COUNT(*) FILTER (WHERE quality >= ?) AS passes,
  COUNT(*) AS total
FROM quiz_response
WHERE graph_id = ?
  AND response_type = 'review'
  AND created_at >= ?
  AND created_at < ?
`,
		types.PassingQuality, graphID, since, until,
	).Scan(&out).Error; err != nil {
		return 0, 0, err
	}
	return out.Passes, out.Total, nil
}

// AvgQuality is the lifetime mean over every response of the graph, nil when
// the graph has none.
func (r *responseRepo) AvgQuality(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (*float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out struct {
		AvgQuality *float64 `gorm:"column:avg_quality"`
	}
	if err := transaction.WithContext(ctx).Raw(
		`SELECT AVG(quality) AS avg_quality FROM quiz_response WHERE graph_id = ?`,
		graphID,
	).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out.AvgQuality, nil
}

func (r *responseRepo) DistinctSessions(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, since, until time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out struct {
		Sessions int64 `gorm:"column:sessions"`
	}
	if err := transaction.WithContext(ctx).Raw(
		`
SELECT COUNT(DISTINCT session_id) AS sessions
FROM quiz_response
WHERE graph_id = ?
  AND session_id IS NOT NULL
  AND created_at >= ?
  AND created_at < ?
`,
		graphID, since, until,
	).Scan(&out).Error; err != nil {
		return 0, err
	}
	return out.Sessions, nil
}

func (r *responseRepo) CreatedAtsByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) ([]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []time.Time
	if err := transaction.WithContext(ctx).
		Model(&types.QuizResponse{}).
		Where("graph_id = ?", graphID).
		Order("created_at ASC").
		Pluck("created_at", &results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// StrugglingNodeIDs groups review responses per node and keeps nodes with at
// least minResponses rows whose mean quality sits below maxMeanQuality.
func (r *responseRepo) StrugglingNodeIDs(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, minResponses int, maxMeanQuality float64) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.QuizResponse{}).
		Where("graph_id = ? AND response_type = ?", graphID, types.ResponseReview).
		Group("node_id").
		Having("COUNT(*) >= ? AND AVG(quality) < ?", minResponses, maxMeanQuality).
		Order("node_id ASC").
		Pluck("node_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *responseRepo) FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if graphID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Delete(&types.QuizResponse{}).Error; err != nil {
		return err
	}
	return nil
}
