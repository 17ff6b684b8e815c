package curriculum

import (
	"context"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type EdgeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, edge *types.ConceptEdge) (*types.ConceptEdge, error)
	Exists(ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error)
	ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, edgeType *types.EdgeType) ([]*types.ConceptEdge, error)
	Delete(ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error)
	Reachable(ctx context.Context, tx *gorm.DB, graphID, fromNodeID, toNodeID uuid.UUID) (bool, error)
	FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error
}

type edgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEdgeRepo(db *gorm.DB, baseLog *logger.Logger) EdgeRepo {
	repoLog := baseLog.With("repo", "EdgeRepo")
	return &edgeRepo{db: db, log: repoLog}
}

func (r *edgeRepo) Create(ctx context.Context, tx *gorm.DB, edge *types.ConceptEdge) (*types.ConceptEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if edge == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(edge).Error; err != nil {
		return nil, err
	}
	return edge, nil
}

func (r *edgeRepo) Exists(ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ConceptEdge{}).
		Where("parent_node_id = ? AND child_node_id = ? AND edge_type = ?", parentID, childID, edgeType).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *edgeRepo) ListByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID, edgeType *types.EdgeType) ([]*types.ConceptEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ConceptEdge
	q := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("created_at ASC, id ASC")
	if edgeType != nil {
		q = q.Where("edge_type = ?", *edgeType)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes the edge row if present and reports whether one existed.
// Edges are hard-deleted so the pair can be recreated later.
func (r *edgeRepo) Delete(ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("parent_node_id = ? AND child_node_id = ? AND edge_type = ?", parentID, childID, edgeType).
		Delete(&types.ConceptEdge{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reachable reports whether toNodeID is a prerequisite descendant of
// fromNodeID. Creating parent->child is a cycle exactly when the child
// already reaches the parent.
func (r *edgeRepo) Reachable(ctx context.Context, tx *gorm.DB, graphID, fromNodeID, toNodeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out struct {
		Found bool `gorm:"column:found"`
	}
	if err := transaction.WithContext(ctx).Raw(
		`
WITH RECURSIVE reach AS (
    SELECT child_node_id AS id
    FROM concept_edge
    WHERE graph_id = ? AND edge_type = 'prerequisite' AND parent_node_id = ?
    UNION
    SELECT e.child_node_id
    FROM concept_edge e
    JOIN reach r ON r.id = e.parent_node_id
    WHERE e.graph_id = ? AND e.edge_type = 'prerequisite'
)
SELECT EXISTS (SELECT 1 FROM reach WHERE id = ?) AS found
`,
		graphID, fromNodeID, graphID, toNodeID,
	).Scan(&out).Error; err != nil {
		return false, err
	}
	return out.Found, nil
}

func (r *edgeRepo) FullDeleteByGraph(ctx context.Context, tx *gorm.DB, graphID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if graphID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Delete(&types.ConceptEdge{}).Error; err != nil {
		return err
	}
	return nil
}
