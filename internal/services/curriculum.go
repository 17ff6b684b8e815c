package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"github.com/yungbote/curricula-backend/internal/sequencer"
)

// ConceptSpec is one node of a generation request.
type ConceptSpec struct {
	Label         string          `json:"label"`
	Description   string          `json:"description,omitempty"`
	EffortMinutes *int            `json:"effort_minutes,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// EdgeSpec wires two concepts of the same request by index.
type EdgeSpec struct {
	ParentIndex int            `json:"parent_index"`
	ChildIndex  int            `json:"child_index"`
	EdgeType    types.EdgeType `json:"edge_type"`
}

type GenerateRequest struct {
	Title    string          `json:"title"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Concepts []ConceptSpec   `json:"concepts"`
	Edges    []EdgeSpec      `json:"edges,omitempty"`
}

type GenerateResult struct {
	GraphID   uuid.UUID         `json:"graph_id"`
	NodeCount int               `json:"node_count"`
	Status    types.GraphStatus `json:"status"`
}

type ReplanResult struct {
	GraphID         uuid.UUID `json:"graph_id"`
	Resequenced     int       `json:"resequenced"`
	SkippableMarked int       `json:"skippable_marked"`
}

// ReplanFunc is the feedback hook the analytics sweep invokes when a graph
// trips the replan triggers. The snapshot is the one that tripped them.
type ReplanFunc func(ctx context.Context, graphID uuid.UUID, snapshot *types.AnalyticsSnapshot) error

type CurriculumService interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Replan(ctx context.Context, graphID uuid.UUID) (*ReplanResult, error)
}

type curriculumService struct {
	db     *gorm.DB
	log    *logger.Logger
	graphs curriculum.GraphRepo
	nodes  curriculum.NodeRepo
	edges  curriculum.EdgeRepo
}

func NewCurriculumService(
	db *gorm.DB,
	baseLog *logger.Logger,
	graphs curriculum.GraphRepo,
	nodes curriculum.NodeRepo,
	edges curriculum.EdgeRepo,
) CurriculumService {
	return &curriculumService{
		db:     db,
		log:    baseLog.With("service", "CurriculumService"),
		graphs: graphs,
		nodes:  nodes,
		edges:  edges,
	}
}

// Generate builds a full graph in one transaction: graph row, nodes, edges,
// depths, and the initial sequence. A cyclic edge set rolls everything back.
func (s *curriculumService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := validateGenerateRequest(&req); err != nil {
		return nil, err
	}

	var out *GenerateResult
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		graph, err := s.graphs.Create(ctx, tx, &types.CurriculumGraph{
			Title:    strings.TrimSpace(req.Title),
			Status:   types.GraphStatusActive,
			Metadata: metadataOrEmpty(req.Metadata),
		})
		if err != nil {
			return err
		}

		rows := make([]*types.ConceptNode, 0, len(req.Concepts))
		for _, c := range req.Concepts {
			rows = append(rows, &types.ConceptNode{
				GraphID:       graph.ID,
				Label:         strings.TrimSpace(c.Label),
				Description:   strings.TrimSpace(c.Description),
				MasteryStatus: types.MasteryUnseen,
				EaseFactor:    types.DefaultEaseFactor,
				EffortMinutes: c.EffortMinutes,
				Metadata:      metadataOrEmpty(c.Metadata),
			})
		}
		created, err := s.nodes.Create(ctx, tx, rows)
		if err != nil {
			return err
		}

		edgeRows := make([]*types.ConceptEdge, 0, len(req.Edges))
		for _, e := range req.Edges {
			edge, err := s.edges.Create(ctx, tx, &types.ConceptEdge{
				GraphID:      graph.ID,
				ParentNodeID: created[e.ParentIndex].ID,
				ChildNodeID:  created[e.ChildIndex].ID,
				EdgeType:     e.EdgeType,
			})
			if err != nil {
				return err
			}
			edgeRows = append(edgeRows, edge)
		}

		// Depths double as the cycle check: a cyclic prerequisite set fails
		// here and rolls the whole generation back.
		nodeRows, err := recomputeDepths(ctx, tx, s.nodes, s.edges, graph.ID)
		if err != nil {
			return err
		}
		ordered, err := sequencer.Order(nodeRows, edgeRows)
		if err != nil {
			return err
		}
		if err := s.nodes.SetSequences(ctx, tx, graph.ID, ordered); err != nil {
			return err
		}
		if len(ordered) > 0 {
			if err := s.graphs.UpdateFields(ctx, tx, graph.ID, map[string]interface{}{"root_node_id": ordered[0]}); err != nil {
				return err
			}
		}

		out = &GenerateResult{
			GraphID:   graph.ID,
			NodeCount: len(created),
			Status:    types.GraphStatusActive,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("curriculum generated", "graph_id", out.GraphID, "nodes", out.NodeCount, "edges", len(req.Edges))
	return out, nil
}

// Replan recomputes depths, re-runs the sequencer against current mastery
// states, rewrites sequence 1..N, and marks mastered nodes skippable. The
// graph row lock keeps concurrent replans and auto-completion from
// interleaving their writes.
func (s *curriculumService) Replan(ctx context.Context, graphID uuid.UUID) (*ReplanResult, error) {
	var out *ReplanResult
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		graph, err := s.graphs.GetByIDForUpdate(ctx, tx, graphID)
		if err != nil {
			return err
		}
		if graph == nil {
			return apperrors.NotFoundf("graph %s", graphID)
		}
		if graph.Status != types.GraphStatusActive {
			return apperrors.Transitionf("graph %s is %s; replanning requires an active graph", graphID, graph.Status)
		}

		nodeRows, err := recomputeDepths(ctx, tx, s.nodes, s.edges, graphID)
		if err != nil {
			return err
		}
		edgeRows, err := s.edges.ListByGraph(ctx, tx, graphID, nil)
		if err != nil {
			return err
		}
		ordered, err := sequencer.Order(nodeRows, edgeRows)
		if err != nil {
			return err
		}
		if err := s.nodes.SetSequences(ctx, tx, graphID, ordered); err != nil {
			return err
		}

		skippable := 0
		for _, n := range nodeRows {
			mastered := n.MasteryStatus == types.MasteryMastered
			if mastered {
				skippable++
			}
			patch := json.RawMessage(fmt.Sprintf(`{"skippable":%t}`, mastered))
			merged, err := mergeJSONObjects(json.RawMessage(n.Metadata), patch)
			if err != nil {
				return err
			}
			if err := s.nodes.UpdateFields(ctx, tx, n.ID, map[string]interface{}{"metadata": datatypes.JSON(merged)}); err != nil {
				return err
			}
		}

		if len(ordered) > 0 {
			if err := s.graphs.UpdateFields(ctx, tx, graphID, map[string]interface{}{"root_node_id": ordered[0]}); err != nil {
				return err
			}
		}

		out = &ReplanResult{
			GraphID:         graphID,
			Resequenced:     len(ordered),
			SkippableMarked: skippable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("curriculum replanned", "graph_id", graphID, "resequenced", out.Resequenced, "skippable", out.SkippableMarked)
	return out, nil
}

func validateGenerateRequest(req *GenerateRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.Validationf("graph title is required")
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return apperrors.Validationf("graph metadata is not valid JSON")
	}
	if len(req.Concepts) == 0 {
		return apperrors.Validationf("at least one concept is required")
	}
	if len(req.Concepts) > types.MaxNodesPerGraph {
		return apperrors.Validationf("%d concepts exceed the limit of %d", len(req.Concepts), types.MaxNodesPerGraph)
	}

	labels := make(map[string]bool, len(req.Concepts))
	for i, c := range req.Concepts {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return apperrors.Validationf("concept %d has an empty label", i)
		}
		if labels[label] {
			return apperrors.Validationf("duplicate concept label %q", label)
		}
		labels[label] = true
		if c.EffortMinutes != nil && *c.EffortMinutes < 0 {
			return apperrors.Validationf("concept %q: effort_minutes cannot be negative", label)
		}
		if len(c.Metadata) > 0 && !json.Valid(c.Metadata) {
			return apperrors.Validationf("concept %q: metadata is not valid JSON", label)
		}
	}

	seen := make(map[string]bool, len(req.Edges))
	for i, e := range req.Edges {
		if !e.EdgeType.Valid() {
			return apperrors.Validationf("edge %d has invalid type %q", i, e.EdgeType)
		}
		if e.ParentIndex < 0 || e.ParentIndex >= len(req.Concepts) {
			return apperrors.Validationf("edge %d: parent index %d out of range", i, e.ParentIndex)
		}
		if e.ChildIndex < 0 || e.ChildIndex >= len(req.Concepts) {
			return apperrors.Validationf("edge %d: child index %d out of range", i, e.ChildIndex)
		}
		if e.ParentIndex == e.ChildIndex {
			return apperrors.Structuralf("edge %d is a self-loop on concept %d", i, e.ParentIndex)
		}
		key := fmt.Sprintf("%d:%d:%s", e.ParentIndex, e.ChildIndex, e.EdgeType)
		if seen[key] {
			return apperrors.Validationf("edge %d duplicates %d -> %d (%s)", i, e.ParentIndex, e.ChildIndex, e.EdgeType)
		}
		seen[key] = true
	}
	return nil
}
