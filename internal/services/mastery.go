package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

type RecordRequest struct {
	NodeID       uuid.UUID          `json:"node_id"`
	Question     string             `json:"question"`
	UserAnswer   *string            `json:"user_answer,omitempty"`
	Quality      int                `json:"quality"`
	ResponseType types.ResponseType `json:"response_type"`
	SessionID    *uuid.UUID         `json:"session_id,omitempty"`
}

type StatusChange struct {
	From types.MasteryStatus `json:"from"`
	To   types.MasteryStatus `json:"to"`
}

type RecordResult struct {
	Response       *types.QuizResponse `json:"response"`
	Node           *types.ConceptNode  `json:"node"`
	Transition     *StatusChange       `json:"transition,omitempty"`
	GraphCompleted bool                `json:"graph_completed"`
}

type StruggleFlag struct {
	NodeID  uuid.UUID           `json:"node_id"`
	Label   string              `json:"label"`
	Score   float64             `json:"score"`
	Status  types.MasteryStatus `json:"status"`
	Reasons []string            `json:"reasons"`
}

type MasteryService interface {
	RecordResponse(ctx context.Context, req RecordRequest) (*RecordResult, error)
	DetectStruggles(ctx context.Context, graphID uuid.UUID) ([]StruggleFlag, error)
}

type masteryService struct {
	db        *gorm.DB
	log       *logger.Logger
	graphs    curriculum.GraphRepo
	nodes     curriculum.NodeRepo
	responses curriculum.ResponseRepo
}

func NewMasteryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	graphs curriculum.GraphRepo,
	nodes curriculum.NodeRepo,
	responses curriculum.ResponseRepo,
) MasteryService {
	return &masteryService{
		db:        db,
		log:       baseLog.With("service", "MasteryService"),
		graphs:    graphs,
		nodes:     nodes,
		responses: responses,
	}
}

// RecordResponse appends the response, rescores the node over its trailing
// window, applies the state machine, and runs the auto-completion check when
// the node lands mastered. Everything happens in one transaction.
func (s *masteryService) RecordResponse(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if req.Quality < types.QualityMin || req.Quality > types.QualityMax {
		return nil, apperrors.Validationf("quality %d out of range [%d,%d]", req.Quality, types.QualityMin, types.QualityMax)
	}
	if !req.ResponseType.Valid() {
		return nil, apperrors.Validationf("invalid response type %q", req.ResponseType)
	}

	var out *RecordResult
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		node, err := s.nodes.GetByID(ctx, tx, req.NodeID)
		if err != nil {
			return err
		}
		if node == nil {
			return apperrors.NotFoundf("node %s", req.NodeID)
		}

		resp, err := s.responses.Create(ctx, tx, &types.QuizResponse{
			NodeID:       node.ID,
			GraphID:      node.GraphID,
			Question:     req.Question,
			UserAnswer:   req.UserAnswer,
			Quality:      req.Quality,
			ResponseType: req.ResponseType,
			SessionID:    req.SessionID,
		})
		if err != nil {
			return err
		}

		recent, err := s.responses.RecentByNode(ctx, tx, node.ID, types.ScoreWindow)
		if err != nil {
			return err
		}
		// RecentByNode returns newest first; the weighting wants oldest first.
		qualities := make([]int, len(recent))
		for i, r := range recent {
			qualities[len(recent)-1-i] = r.Quality
		}
		score := types.WeightedScore(qualities)

		// Graduation reads only review-type responses, however interleaved.
		recentReviews, err := s.responses.RecentByNodeAndType(ctx, tx, node.ID, types.ResponseReview, types.GraduationReviewCount)
		if err != nil {
			return err
		}
		reviewQualities := make([]int, len(recentReviews))
		for i, r := range recentReviews {
			reviewQualities[i] = r.Quality
		}

		prevStatus := node.MasteryStatus
		nextStatus := types.NextMasteryStatus(prevStatus, req.ResponseType, req.Quality, score, reviewQualities)

		ease := types.NextEaseFactor(node.EaseFactor, req.Quality)
		reps := types.NextRepetitions(node.Repetitions, req.Quality)
		updates := map[string]interface{}{
			"mastery_score": score,
			"ease_factor":   ease,
			"repetitions":   reps,
		}
		node.MasteryScore = score
		node.EaseFactor = ease
		node.Repetitions = reps

		var transition *StatusChange
		if nextStatus != prevStatus {
			transition = &StatusChange{From: prevStatus, To: nextStatus}
			updates["mastery_status"] = nextStatus
			node.MasteryStatus = nextStatus
			if nextStatus == types.MasteryMastered {
				now := time.Now().UTC()
				updates["mastered_at"] = now
				node.MasteredAt = &now
			}
		}

		if err := s.nodes.UpdateFields(ctx, tx, node.ID, updates); err != nil {
			return err
		}

		completed := false
		if transition != nil && transition.To == types.MasteryMastered {
			done, err := completeGraphIfMastered(ctx, tx, s.graphs, s.nodes, node.GraphID)
			if err != nil {
				return err
			}
			completed = done
		}

		out = &RecordResult{
			Response:       resp,
			Node:           node,
			Transition:     transition,
			GraphCompleted: completed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.GraphCompleted {
		s.log.Info("graph auto-completed", "graph_id", out.Node.GraphID, "last_node_id", out.Node.ID)
	}
	return out, nil
}

// DetectStruggles flags every non-mastered node whose three most recent
// responses trip one of the struggle heuristics.
func (s *masteryService) DetectStruggles(ctx context.Context, graphID uuid.UUID) ([]StruggleFlag, error) {
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}

	nodes, err := s.nodes.ListByGraph(ctx, nil, graphID, nil)
	if err != nil {
		return nil, err
	}

	flags := make([]StruggleFlag, 0)
	for _, n := range nodes {
		if n.MasteryStatus == types.MasteryMastered {
			continue
		}
		recent, err := s.responses.RecentByNode(ctx, nil, n.ID, types.StruggleMinResponses)
		if err != nil {
			return nil, err
		}
		if len(recent) < types.StruggleMinResponses {
			continue
		}
		qualities := make([]int, len(recent))
		for i, r := range recent {
			qualities[i] = r.Quality
		}
		reasons := types.StruggleReasons(qualities)
		if len(reasons) == 0 {
			continue
		}
		flags = append(flags, StruggleFlag{
			NodeID:  n.ID,
			Label:   n.Label,
			Score:   n.MasteryScore,
			Status:  n.MasteryStatus,
			Reasons: reasons,
		})
	}
	return flags, nil
}
