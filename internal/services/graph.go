package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"github.com/yungbote/curricula-backend/internal/sequencer"
)

// NodeInput creates one concept node. Label is required and unique within
// the graph.
type NodeInput struct {
	Label         string          `json:"label"`
	Description   string          `json:"description,omitempty"`
	EffortMinutes *int            `json:"effort_minutes,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// NodeUpdate is the writable surface of a node. Any other field arriving in
// a payload is dropped on unmarshal; an update that sets none of these fails
// validation.
type NodeUpdate struct {
	MasteryScore  OptionalFloat64 `json:"mastery_score"`
	MasteryStatus OptionalString  `json:"mastery_status"`
	Sequence      OptionalInt     `json:"sequence"`
	Metadata      OptionalJSON    `json:"metadata"`
}

func (u NodeUpdate) empty() bool {
	return !u.MasteryScore.Set && !u.MasteryStatus.Set && !u.Sequence.Set && !u.Metadata.Set
}

type EdgeInput struct {
	ParentNodeID uuid.UUID      `json:"parent_node_id"`
	ChildNodeID  uuid.UUID      `json:"child_node_id"`
	EdgeType     types.EdgeType `json:"edge_type"`
}

type GraphService interface {
	CreateGraph(ctx context.Context, title string, metadata json.RawMessage) (*types.CurriculumGraph, error)
	GetGraph(ctx context.Context, id uuid.UUID) (*types.CurriculumGraph, error)
	ListGraphs(ctx context.Context, status *types.GraphStatus) ([]*types.CurriculumGraph, error)
	AbandonGraph(ctx context.Context, id uuid.UUID) (*types.CurriculumGraph, error)
	DeleteGraph(ctx context.Context, id uuid.UUID) error

	AddNode(ctx context.Context, graphID uuid.UUID, input NodeInput) (*types.ConceptNode, error)
	GetNode(ctx context.Context, nodeID uuid.UUID) (*types.ConceptNode, error)
	ListNodes(ctx context.Context, graphID uuid.UUID, status *types.MasteryStatus) ([]*types.ConceptNode, error)
	UpdateNode(ctx context.Context, nodeID uuid.UUID, update NodeUpdate) (*types.ConceptNode, error)

	CreateEdge(ctx context.Context, input EdgeInput) (*types.ConceptEdge, error)
	DeleteEdge(ctx context.Context, parentID, childID uuid.UUID, edgeType types.EdgeType) error
	ListEdges(ctx context.Context, graphID uuid.UUID, edgeType *types.EdgeType) ([]*types.ConceptEdge, error)

	Frontier(ctx context.Context, graphID uuid.UUID) ([]*types.ConceptNode, error)
	Subtree(ctx context.Context, nodeID uuid.UUID) ([]*types.ConceptNode, error)
}

type graphService struct {
	db        *gorm.DB
	log       *logger.Logger
	graphs    curriculum.GraphRepo
	nodes     curriculum.NodeRepo
	edges     curriculum.EdgeRepo
	responses curriculum.ResponseRepo
	snapshots curriculum.SnapshotRepo
}

func NewGraphService(
	db *gorm.DB,
	baseLog *logger.Logger,
	graphs curriculum.GraphRepo,
	nodes curriculum.NodeRepo,
	edges curriculum.EdgeRepo,
	responses curriculum.ResponseRepo,
	snapshots curriculum.SnapshotRepo,
) GraphService {
	return &graphService{
		db:        db,
		log:       baseLog.With("service", "GraphService"),
		graphs:    graphs,
		nodes:     nodes,
		edges:     edges,
		responses: responses,
		snapshots: snapshots,
	}
}

func (s *graphService) CreateGraph(ctx context.Context, title string, metadata json.RawMessage) (*types.CurriculumGraph, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.Validationf("graph title is required")
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, apperrors.Validationf("graph metadata is not valid JSON")
	}

	graph := &types.CurriculumGraph{
		Title:    title,
		Status:   types.GraphStatusActive,
		Metadata: metadataOrEmpty(metadata),
	}

	var out *types.CurriculumGraph
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		created, err := s.graphs.Create(ctx, tx, graph)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("graph created", "graph_id", out.ID, "title", out.Title)
	return out, nil
}

func (s *graphService) GetGraph(ctx context.Context, id uuid.UUID) (*types.CurriculumGraph, error) {
	graph, err := s.graphs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", id)
	}
	return graph, nil
}

func (s *graphService) ListGraphs(ctx context.Context, status *types.GraphStatus) ([]*types.CurriculumGraph, error) {
	if status != nil && !status.Valid() {
		return nil, apperrors.Validationf("invalid graph status %q", *status)
	}
	return s.graphs.List(ctx, nil, status)
}

// AbandonGraph is the only caller-facing status change. Re-abandoning is a
// no-op success; a completed graph cannot be abandoned.
func (s *graphService) AbandonGraph(ctx context.Context, id uuid.UUID) (*types.CurriculumGraph, error) {
	var out *types.CurriculumGraph
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		graph, err := s.graphs.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if graph == nil {
			return apperrors.NotFoundf("graph %s", id)
		}
		if graph.Status == types.GraphStatusAbandoned {
			out = graph
			return nil
		}
		if graph.Status != types.GraphStatusActive {
			return apperrors.Transitionf("graph %s is %s and cannot be abandoned", id, graph.Status)
		}
		if err := s.graphs.UpdateFields(ctx, tx, id, map[string]interface{}{"status": types.GraphStatusAbandoned}); err != nil {
			return err
		}
		graph.Status = types.GraphStatusAbandoned
		out = graph
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("graph abandoned", "graph_id", id)
	return out, nil
}

// DeleteGraph removes the graph and everything hanging off it. The schema
// carries no database-level cascades, so child tables go first.
func (s *graphService) DeleteGraph(ctx context.Context, id uuid.UUID) error {
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		graph, err := s.graphs.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if graph == nil {
			return apperrors.NotFoundf("graph %s", id)
		}
		if err := s.snapshots.FullDeleteByGraph(ctx, tx, id); err != nil {
			return err
		}
		if err := s.responses.FullDeleteByGraph(ctx, tx, id); err != nil {
			return err
		}
		if err := s.edges.FullDeleteByGraph(ctx, tx, id); err != nil {
			return err
		}
		if err := s.nodes.FullDeleteByGraph(ctx, tx, id); err != nil {
			return err
		}
		return s.graphs.FullDelete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("graph deleted", "graph_id", id)
	return nil
}

func (s *graphService) AddNode(ctx context.Context, graphID uuid.UUID, input NodeInput) (*types.ConceptNode, error) {
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, apperrors.Validationf("node label is required")
	}
	if input.EffortMinutes != nil && *input.EffortMinutes < 0 {
		return nil, apperrors.Validationf("effort_minutes cannot be negative")
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return nil, apperrors.Validationf("node metadata is not valid JSON")
	}

	var out *types.ConceptNode
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		graph, err := s.graphs.GetByID(ctx, tx, graphID)
		if err != nil {
			return err
		}
		if graph == nil {
			return apperrors.NotFoundf("graph %s", graphID)
		}
		count, err := s.nodes.CountByGraph(ctx, tx, graphID)
		if err != nil {
			return err
		}
		if count >= types.MaxNodesPerGraph {
			return apperrors.Validationf("graph %s already holds %d nodes (max %d)", graphID, count, types.MaxNodesPerGraph)
		}
		existing, err := s.nodes.GetByGraphAndLabel(ctx, tx, graphID, label)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.Validationf("node label %q already exists in graph %s", label, graphID)
		}

		node := &types.ConceptNode{
			GraphID:       graphID,
			Label:         label,
			Description:   strings.TrimSpace(input.Description),
			MasteryStatus: types.MasteryUnseen,
			EaseFactor:    types.DefaultEaseFactor,
			EffortMinutes: input.EffortMinutes,
			Metadata:      metadataOrEmpty(input.Metadata),
		}
		created, err := s.nodes.Create(ctx, tx, []*types.ConceptNode{node})
		if err != nil {
			return err
		}
		out = created[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *graphService) GetNode(ctx context.Context, nodeID uuid.UUID) (*types.ConceptNode, error) {
	node, err := s.nodes.GetByID(ctx, nil, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, apperrors.NotFoundf("node %s", nodeID)
	}
	return node, nil
}

func (s *graphService) ListNodes(ctx context.Context, graphID uuid.UUID, status *types.MasteryStatus) ([]*types.ConceptNode, error) {
	if status != nil && !status.Valid() {
		return nil, apperrors.Validationf("invalid mastery status %q", *status)
	}
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}
	return s.nodes.ListByGraph(ctx, nil, graphID, status)
}

// UpdateNode patches the whitelisted fields. A patch that lands mastered on a
// previously non-mastered node stamps MasteredAt and runs the graph
// auto-completion check inside the same transaction.
func (s *graphService) UpdateNode(ctx context.Context, nodeID uuid.UUID, update NodeUpdate) (*types.ConceptNode, error) {
	if update.empty() {
		return nil, apperrors.Validationf("update carries no writable fields")
	}

	var (
		out       *types.ConceptNode
		completed bool
	)
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		node, err := s.nodes.GetByID(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if node == nil {
			return apperrors.NotFoundf("node %s", nodeID)
		}

		updates := map[string]interface{}{}

		if update.MasteryScore.Set {
			if update.MasteryScore.Value == nil {
				return apperrors.Validationf("mastery_score cannot be null")
			}
			score := types.Clamp01(*update.MasteryScore.Value)
			updates["mastery_score"] = score
			node.MasteryScore = score
		}

		becameMastered := false
		if update.MasteryStatus.Set {
			if update.MasteryStatus.Value == nil {
				return apperrors.Validationf("mastery_status cannot be null")
			}
			status := types.MasteryStatus(*update.MasteryStatus.Value)
			if !status.Valid() {
				return apperrors.Validationf("invalid mastery status %q", *update.MasteryStatus.Value)
			}
			if status == types.MasteryMastered && node.MasteryStatus != types.MasteryMastered {
				becameMastered = true
				now := time.Now().UTC()
				updates["mastered_at"] = now
				node.MasteredAt = &now
			}
			updates["mastery_status"] = status
			node.MasteryStatus = status
		}

		if update.Sequence.Set {
			if update.Sequence.Value == nil {
				updates["sequence"] = nil
				node.Sequence = nil
			} else {
				if *update.Sequence.Value < 1 {
					return apperrors.Validationf("sequence must be >= 1")
				}
				seq := *update.Sequence.Value
				updates["sequence"] = seq
				node.Sequence = &seq
			}
		}

		if update.Metadata.Set {
			if update.Metadata.Value == nil {
				updates["metadata"] = nil
				node.Metadata = nil
			} else {
				merged, err := mergeJSONObjects(json.RawMessage(node.Metadata), *update.Metadata.Value)
				if err != nil {
					return apperrors.Validationf("node metadata is not a JSON object: %v", err)
				}
				if len(merged) == 0 {
					updates["metadata"] = nil
					node.Metadata = nil
				} else {
					updates["metadata"] = datatypes.JSON(merged)
					node.Metadata = datatypes.JSON(merged)
				}
			}
		}

		if err := s.nodes.UpdateFields(ctx, tx, nodeID, updates); err != nil {
			return err
		}

		if becameMastered {
			done, err := completeGraphIfMastered(ctx, tx, s.graphs, s.nodes, node.GraphID)
			if err != nil {
				return err
			}
			completed = done
		}
		out = node
		return nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.log.Info("graph auto-completed", "graph_id", out.GraphID, "last_node_id", out.ID)
	}
	return out, nil
}

func (s *graphService) CreateEdge(ctx context.Context, input EdgeInput) (*types.ConceptEdge, error) {
	if !input.EdgeType.Valid() {
		return nil, apperrors.Validationf("invalid edge type %q", input.EdgeType)
	}
	// A self-loop is structural no matter what the store holds, so it is
	// rejected before any lookup.
	if input.ParentNodeID == input.ChildNodeID {
		return nil, apperrors.Structuralf("self-loop edge on node %s", input.ParentNodeID)
	}

	var out *types.ConceptEdge
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		parent, err := s.nodes.GetByID(ctx, tx, input.ParentNodeID)
		if err != nil {
			return err
		}
		if parent == nil {
			return apperrors.NotFoundf("parent node %s", input.ParentNodeID)
		}
		child, err := s.nodes.GetByID(ctx, tx, input.ChildNodeID)
		if err != nil {
			return err
		}
		if child == nil {
			return apperrors.NotFoundf("child node %s", input.ChildNodeID)
		}
		if parent.GraphID != child.GraphID {
			return apperrors.Structuralf("nodes %s and %s belong to different graphs", parent.ID, child.ID)
		}

		exists, err := s.edges.Exists(ctx, tx, input.ParentNodeID, input.ChildNodeID, input.EdgeType)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.Validationf("edge %s -> %s (%s) already exists", input.ParentNodeID, input.ChildNodeID, input.EdgeType)
		}

		if input.EdgeType == types.EdgePrerequisite {
			// parent -> child closes a cycle exactly when the child already
			// reaches the parent through prerequisite edges.
			reaches, err := s.edges.Reachable(ctx, tx, parent.GraphID, input.ChildNodeID, input.ParentNodeID)
			if err != nil {
				return err
			}
			if reaches {
				return apperrors.Structuralf("edge %s -> %s would close a prerequisite cycle", input.ParentNodeID, input.ChildNodeID)
			}
		}

		edge := &types.ConceptEdge{
			GraphID:      parent.GraphID,
			ParentNodeID: input.ParentNodeID,
			ChildNodeID:  input.ChildNodeID,
			EdgeType:     input.EdgeType,
		}
		created, err := s.edges.Create(ctx, tx, edge)
		if err != nil {
			return err
		}

		// Related edges never move depths.
		if input.EdgeType == types.EdgePrerequisite {
			if _, err := recomputeDepths(ctx, tx, s.nodes, s.edges, parent.GraphID); err != nil {
				return err
			}
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEdge is idempotent: removing an edge that does not exist succeeds.
func (s *graphService) DeleteEdge(ctx context.Context, parentID, childID uuid.UUID, edgeType types.EdgeType) error {
	if !edgeType.Valid() {
		return apperrors.Validationf("invalid edge type %q", edgeType)
	}
	return runInTx(ctx, s.db, func(tx *gorm.DB) error {
		removed, err := s.edges.Delete(ctx, tx, parentID, childID, edgeType)
		if err != nil {
			return err
		}
		if !removed || edgeType != types.EdgePrerequisite {
			return nil
		}
		child, err := s.nodes.GetByID(ctx, tx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return nil
		}
		_, err = recomputeDepths(ctx, tx, s.nodes, s.edges, child.GraphID)
		return err
	})
}

func (s *graphService) ListEdges(ctx context.Context, graphID uuid.UUID, edgeType *types.EdgeType) ([]*types.ConceptEdge, error) {
	if edgeType != nil && !edgeType.Valid() {
		return nil, apperrors.Validationf("invalid edge type %q", *edgeType)
	}
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}
	return s.edges.ListByGraph(ctx, nil, graphID, edgeType)
}

func (s *graphService) Frontier(ctx context.Context, graphID uuid.UUID) ([]*types.ConceptNode, error) {
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}
	return s.nodes.Frontier(ctx, nil, graphID)
}

func (s *graphService) Subtree(ctx context.Context, nodeID uuid.UUID) ([]*types.ConceptNode, error) {
	node, err := s.nodes.GetByID(ctx, nil, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, apperrors.NotFoundf("node %s", nodeID)
	}
	return s.nodes.Subtree(ctx, nil, nodeID)
}

// completeGraphIfMastered runs the auto-completion check after a node lands
// mastered. The FOR UPDATE read serializes concurrent completions of the same
// graph so the count-then-write cannot race.
func completeGraphIfMastered(ctx context.Context, tx *gorm.DB, graphs curriculum.GraphRepo, nodes curriculum.NodeRepo, graphID uuid.UUID) (bool, error) {
	graph, err := graphs.GetByIDForUpdate(ctx, tx, graphID)
	if err != nil {
		return false, err
	}
	if graph == nil || graph.Status != types.GraphStatusActive {
		return false, nil
	}
	remaining, err := nodes.CountUnmastered(ctx, tx, graphID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	total, err := nodes.CountByGraph(ctx, tx, graphID)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	if err := graphs.UpdateFields(ctx, tx, graphID, map[string]interface{}{"status": types.GraphStatusCompleted}); err != nil {
		return false, err
	}
	return true, nil
}

// recomputeDepths reloads the graph's nodes and edges, recomputes every depth
// as the longest prerequisite chain, enforces MaxNodeDepth, and persists the
// depths that changed. The refreshed node set is returned with the new depths
// applied.
func recomputeDepths(ctx context.Context, tx *gorm.DB, nodes curriculum.NodeRepo, edges curriculum.EdgeRepo, graphID uuid.UUID) ([]*types.ConceptNode, error) {
	nodeRows, err := nodes.ListByGraph(ctx, tx, graphID, nil)
	if err != nil {
		return nil, err
	}
	edgeRows, err := edges.ListByGraph(ctx, tx, graphID, nil)
	if err != nil {
		return nil, err
	}
	depths, err := sequencer.Depths(nodeRows, edgeRows)
	if err != nil {
		return nil, err
	}
	for _, n := range nodeRows {
		if d := depths[n.ID]; d > types.MaxNodeDepth {
			return nil, apperrors.Validationf("node %q would sit at depth %d (max %d)", n.Label, d, types.MaxNodeDepth)
		}
	}
	for _, n := range nodeRows {
		d := depths[n.ID]
		if d == n.Depth {
			continue
		}
		if err := nodes.UpdateFields(ctx, tx, n.ID, map[string]interface{}{"depth": d}); err != nil {
			return nil, err
		}
		n.Depth = d
	}
	return nodeRows, nil
}
