package curriculum

import (
	"context"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type NodeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, nodes []*types.ConceptNode) ([]*types.ConceptNode, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ConceptNode, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ConceptNode, error)
	GetByGraphAndLabel(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, label string) (*types.ConceptNode, error)
	ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, status *types.MasteryStatus) ([]*types.ConceptNode, error)
	CountByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error)
	CountUnmastered(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error)
	Update(ctx context.Context, tx *gorm.DB, row *types.ConceptNode) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SetSequences(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, orderedIDs []uuid.UUID) error
	Frontier(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) ([]*types.ConceptNode, error)
	Subtree(ctx context.Context, tx *gorm.DB, rootNodeID uuid.UUID) ([]*types.ConceptNode, error)
	FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	repoLog := baseLog.With("repo", "NodeRepo")
	return &nodeRepo{db: db, log: repoLog}
}

func (r *nodeRepo) Create(ctx context.Context, tx *gorm.DB, nodes []*types.ConceptNode) ([]*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(nodes) == 0 {
		return []*types.ConceptNode{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var out types.ConceptNode
	if err := transaction.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *nodeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ConceptNode
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *nodeRepo) GetByGraphAndLabel(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, label string) (*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out types.ConceptNode
	if err := transaction.WithContext(ctx).
		First(&out, "graph_id = ? AND label = ?", graphID, label).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *nodeRepo) ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, status *types.MasteryStatus) ([]*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ConceptNode
	q := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("sequence ASC NULLS LAST, label ASC")
	if status != nil {
		q = q.Where("mastery_status = ?", *status)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *nodeRepo) CountByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ConceptNode{}).
		Where("graph_id = ?", graphID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *nodeRepo) CountUnmastered(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ConceptNode{}).
		Where("graph_id = ? AND mastery_status <> ?", graphID, types.MasteryMastered).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *nodeRepo) Update(ctx context.Context, tx *gorm.DB, row *types.ConceptNode) error {
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

func (r *nodeRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.ConceptNode{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

// SetSequences assigns positions 1..len(orderedIDs) in slice order.
func (r *nodeRepo) SetSequences(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, orderedIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	for i, id := range orderedIDs {
		if err := transaction.WithContext(ctx).
			Model(&types.ConceptNode{}).
			Where("id = ? AND graph_id = ?", id, graphID).
			Update("sequence", i+1).Error; err != nil {
			return err
		}
	}
	return nil
}

// Frontier returns the nodes eligible for study: unseen, diagnosed, or
// learning, with every prerequisite parent mastered. Reviewing and mastered
// nodes are excluded. Ordered shallowest depth first, then lowest effort with
// unset effort last, then label.
func (r *nodeRepo) Frontier(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) ([]*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ConceptNode
	if err := transaction.WithContext(ctx).Raw(
		`
SELECT n.*
FROM concept_node n
WHERE n.graph_id = ?
  AND n.deleted_at IS NULL
  AND n.mastery_status IN ('unseen', 'diagnosed', 'learning')
  AND NOT EXISTS (
    SELECT 1
    FROM concept_edge e
    JOIN concept_node p ON p.id = e.parent_node_id AND p.deleted_at IS NULL
    WHERE e.edge_type = 'prerequisite'
      AND e.child_node_id = n.id
      AND p.mastery_status <> 'mastered'
  )
ORDER BY n.depth ASC, n.effort_minutes ASC NULLS LAST, n.label ASC
`,
		graphID,
	).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Subtree returns every descendant of the node over any edge type. The node
// itself is excluded, so a leaf yields an empty slice, even when a related
// edge loops back to it. UNION (not UNION ALL) keeps the walk finite on such
// loops.
func (r *nodeRepo) Subtree(ctx context.Context, tx *gorm.DB, rootNodeID uuid.UUID) ([]*types.ConceptNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ConceptNode
	if err := transaction.WithContext(ctx).Raw(
		`
WITH RECURSIVE subtree AS (
    SELECT id FROM concept_node WHERE id = ? AND deleted_at IS NULL
    UNION
    SELECT e.child_node_id
    FROM concept_edge e
    JOIN subtree s ON s.id = e.parent_node_id
)
SELECT n.*
FROM concept_node n
JOIN subtree s ON s.id = n.id
WHERE n.deleted_at IS NULL AND n.id <> ?
ORDER BY n.depth ASC, n.label ASC
`,
		rootNodeID,
		rootNodeID,
	).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *nodeRepo) FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if graphID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("graph_id = ?", graphID).
		Delete(&types.ConceptNode{}).Error; err != nil {
		return err
	}
	return nil
}
