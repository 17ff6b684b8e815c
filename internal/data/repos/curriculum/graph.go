package curriculum

import (
	"context"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GraphRepo interface {
	Create(ctx context.Context, tx *gorm.DB, graph *types.CurriculumGraph) (*types.CurriculumGraph, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error)
	List(ctx context.Context, tx *gorm.DB, status *types.GraphStatus) ([]*types.CurriculumGraph, error)
	Update(ctx context.Context, tx *gorm.DB, row *types.CurriculumGraph) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	FullDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type graphRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphRepo(db *gorm.DB, baseLog *logger.Logger) GraphRepo {
	repoLog := baseLog.With("repo", "GraphRepo")
	return &graphRepo{db: db, log: repoLog}
}

func (r *graphRepo) Create(ctx context.Context, tx *gorm.DB, graph *types.CurriculumGraph) (*types.CurriculumGraph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if graph == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(graph).Error; err != nil {
		return nil, err
	}
	return graph, nil
}

func (r *graphRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var out types.CurriculumGraph
	if err := transaction.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate locks the graph row for the rest of the enclosing
// transaction. Auto-completion and replanning serialize on this lock.
func (r *graphRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var out types.CurriculumGraph
	if err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&out, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *graphRepo) List(ctx context.Context, tx *gorm.DB, status *types.GraphStatus) ([]*types.CurriculumGraph, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CurriculumGraph
	q := transaction.WithContext(ctx).Order("created_at ASC, id ASC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *graphRepo) Update(ctx context.Context, tx *gorm.DB, row *types.CurriculumGraph) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil || row.ID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).Save(row).Error; err != nil {
		return err
	}
	return nil
}

func (r *graphRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.CurriculumGraph{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

func (r *graphRepo) FullDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&types.CurriculumGraph{}).Error; err != nil {
		return err
	}
	return nil
}
