package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	"github.com/yungbote/curricula-backend/internal/data/state"
	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

type ProbeInput struct {
	NodeID          uuid.UUID `json:"node_id"`
	Quality         int       `json:"quality"`
	InferredMastery float64   `json:"inferred_mastery"`
}

// DiagnosticService runs the short-lived probing session that seeds initial
// mastery before sequencing. The flow itself lives in the external state
// store; every write is compare-and-set on the version read, and a lost race
// surfaces ErrVersionConflict for the caller to retry.
type DiagnosticService interface {
	Start(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticFlow, error)
	RecordProbe(ctx context.Context, graphID uuid.UUID, input ProbeInput) (*types.DiagnosticFlow, error)
	Complete(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticSummary, error)
	BeginTeaching(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticFlow, error)
}

type diagnosticService struct {
	db     *gorm.DB
	log    *logger.Logger
	store  state.Store
	graphs curriculum.GraphRepo
	nodes  curriculum.NodeRepo
}

func NewDiagnosticService(
	db *gorm.DB,
	baseLog *logger.Logger,
	store state.Store,
	graphs curriculum.GraphRepo,
	nodes curriculum.NodeRepo,
) DiagnosticService {
	return &diagnosticService{
		db:     db,
		log:    baseLog.With("service", "DiagnosticService"),
		store:  store,
		graphs: graphs,
		nodes:  nodes,
	}
}

// Start opens a fresh flow for the graph. A flow that already moved past
// diagnosing cannot be restarted; an absent, pending, or mid-diagnosing flow
// is replaced wholesale.
func (s *diagnosticService) Start(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticFlow, error) {
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}

	key := state.DiagnosticFlowKey(graphID)
	raw, version, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var existing types.DiagnosticFlow
		if err := json.Unmarshal(raw, &existing); err != nil {
			// A payload we cannot decode is cured by the restart itself.
			s.log.Warn("diagnostic flow payload corrupt, restarting", "graph_id", graphID, "error", err)
		} else if existing.Status == types.FlowPlanning || existing.Status == types.FlowTeaching {
			return nil, apperrors.Transitionf("diagnostic flow for graph %s is already %s", graphID, existing.Status)
		}
	}

	nodes, err := s.nodes.ListByGraph(ctx, nil, graphID, nil)
	if err != nil {
		return nil, err
	}
	inventory := make([]types.InventoryEntry, 0, len(nodes))
	for _, n := range nodes {
		inventory = append(inventory, types.InventoryEntry{
			NodeID:         n.ID,
			Label:          n.Label,
			Description:    n.Description,
			DifficultyRank: n.Depth,
		})
	}
	sort.Slice(inventory, func(i, j int) bool {
		if inventory[i].DifficultyRank != inventory[j].DifficultyRank {
			return inventory[i].DifficultyRank < inventory[j].DifficultyRank
		}
		return inventory[i].Label < inventory[j].Label
	})

	now := time.Now().UTC()
	flow := &types.DiagnosticFlow{
		GraphID:      graphID,
		Status:       types.FlowDiagnosing,
		ProbesIssued: 0,
		Results:      map[uuid.UUID]types.ProbeResult{},
		Inventory:    inventory,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.writeFlow(ctx, key, flow, version); err != nil {
		return nil, err
	}
	s.log.Info("diagnostic started", "graph_id", graphID, "inventory", len(inventory))
	return flow, nil
}

// RecordProbe logs one probe against the flow. A passing probe additionally
// seeds the node's mastery, but only while the node is still unseen; the
// learner's own progress is never overwritten by a diagnostic.
func (s *diagnosticService) RecordProbe(ctx context.Context, graphID uuid.UUID, input ProbeInput) (*types.DiagnosticFlow, error) {
	if input.Quality < types.QualityMin || input.Quality > types.QualityMax {
		return nil, apperrors.Validationf("quality %d out of range [%d,%d]", input.Quality, types.QualityMin, types.QualityMax)
	}
	// Exactly 1.0 is excluded: a probe can suggest mastery, never assert it.
	if input.InferredMastery < 0.0 || input.InferredMastery >= 1.0 {
		return nil, apperrors.Validationf("inferred_mastery %v out of range [0.0, 1.0)", input.InferredMastery)
	}

	flow, version, err := s.loadFlow(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, apperrors.NotFoundf("no diagnostic flow for graph %s", graphID)
	}
	if flow.Status != types.FlowDiagnosing {
		return nil, apperrors.Transitionf("diagnostic flow for graph %s is %s, not diagnosing", graphID, flow.Status)
	}

	inInventory := false
	for _, entry := range flow.Inventory {
		if entry.NodeID == input.NodeID {
			inInventory = true
			break
		}
	}
	if !inInventory {
		return nil, apperrors.Validationf("node %s is not in the diagnostic inventory for graph %s", input.NodeID, graphID)
	}

	// The seed lands first: if the CAS below loses, a retry skips the seed
	// (the node is no longer unseen) and only re-applies the flow change.
	if input.Quality >= types.PassingQuality {
		err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
			node, err := s.nodes.GetByID(ctx, tx, input.NodeID)
			if err != nil {
				return err
			}
			if node == nil {
				return apperrors.NotFoundf("node %s", input.NodeID)
			}
			if node.MasteryStatus != types.MasteryUnseen {
				return nil
			}
			seed := types.ClampDiagnosticSeed(input.InferredMastery)
			return s.nodes.UpdateFields(ctx, tx, node.ID, map[string]interface{}{
				"mastery_score":  seed,
				"mastery_status": types.MasteryDiagnosed,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	flow.ProbesIssued++
	if flow.Results == nil {
		flow.Results = map[uuid.UUID]types.ProbeResult{}
	}
	flow.Results[input.NodeID] = types.ProbeResult{
		Quality:         input.Quality,
		InferredMastery: input.InferredMastery,
	}
	flow.UpdatedAt = time.Now().UTC()
	if err := s.writeFlow(ctx, state.DiagnosticFlowKey(graphID), flow, version); err != nil {
		return nil, err
	}
	return flow, nil
}

// Complete closes the probing phase and summarizes it. The inferred frontier
// rank is the deepest difficulty the learner still passed.
func (s *diagnosticService) Complete(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticSummary, error) {
	flow, version, err := s.loadFlow(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, apperrors.NotFoundf("no diagnostic flow for graph %s", graphID)
	}
	if flow.Status != types.FlowDiagnosing {
		return nil, apperrors.Transitionf("diagnostic flow for graph %s is %s, not diagnosing", graphID, flow.Status)
	}
	if flow.ProbesIssued == 0 || len(flow.Results) == 0 {
		return nil, apperrors.Validationf("diagnostic flow for graph %s has no probes to summarize", graphID)
	}

	probedIDs := make([]uuid.UUID, 0, len(flow.Results))
	for id := range flow.Results {
		probedIDs = append(probedIDs, id)
	}
	rows, err := s.nodes.GetByIDs(ctx, nil, probedIDs)
	if err != nil {
		return nil, err
	}
	statusByID := make(map[uuid.UUID]types.MasteryStatus, len(rows))
	for _, n := range rows {
		statusByID[n.ID] = n.MasteryStatus
	}

	frontierRank := 0
	probed := make([]types.ProbeOutcome, 0, len(flow.Results))
	for _, entry := range flow.Inventory {
		result, ok := flow.Results[entry.NodeID]
		if !ok {
			continue
		}
		status, ok := statusByID[entry.NodeID]
		if !ok {
			// Probed node deleted mid-flow; nothing to report on it.
			continue
		}
		probed = append(probed, types.ProbeOutcome{
			NodeID:          entry.NodeID,
			Label:           entry.Label,
			Quality:         result.Quality,
			InferredMastery: result.InferredMastery,
			CurrentStatus:   status,
		})
		if result.Quality >= types.PassingQuality && entry.DifficultyRank > frontierRank {
			frontierRank = entry.DifficultyRank
		}
	}

	summary := &types.DiagnosticSummary{
		GraphID:              graphID,
		ProbedNodes:          probed,
		UnprobedCount:        len(flow.Inventory) - len(flow.Results),
		InferredFrontierRank: frontierRank,
	}

	flow.Status = types.FlowPlanning
	flow.UpdatedAt = time.Now().UTC()
	if err := s.writeFlow(ctx, state.DiagnosticFlowKey(graphID), flow, version); err != nil {
		return nil, err
	}
	s.log.Info("diagnostic completed", "graph_id", graphID, "probed", len(probed), "frontier_rank", frontierRank)
	return summary, nil
}

// BeginTeaching hands the flow from planning to teaching once the sequence
// has been consumed.
func (s *diagnosticService) BeginTeaching(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticFlow, error) {
	flow, version, err := s.loadFlow(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, apperrors.NotFoundf("no diagnostic flow for graph %s", graphID)
	}
	if flow.Status != types.FlowPlanning {
		return nil, apperrors.Transitionf("diagnostic flow for graph %s is %s, not planning", graphID, flow.Status)
	}

	flow.Status = types.FlowTeaching
	flow.UpdatedAt = time.Now().UTC()
	if err := s.writeFlow(ctx, state.DiagnosticFlowKey(graphID), flow, version); err != nil {
		return nil, err
	}
	return flow, nil
}

func (s *diagnosticService) loadFlow(ctx context.Context, graphID uuid.UUID) (*types.DiagnosticFlow, int64, error) {
	raw, version, err := s.store.Get(ctx, state.DiagnosticFlowKey(graphID))
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, version, nil
	}
	var flow types.DiagnosticFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, 0, fmt.Errorf("decode diagnostic flow for graph %s: %w", graphID, err)
	}
	return &flow, version, nil
}

func (s *diagnosticService) writeFlow(ctx context.Context, key string, flow *types.DiagnosticFlow, expectedVersion int64) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	_, err = s.store.Set(ctx, key, raw, expectedVersion)
	return err
}
