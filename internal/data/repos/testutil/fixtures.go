package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedGraph(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.CurriculumGraph {
	tb.Helper()
	g := &types.CurriculumGraph{
		ID:       uuid.New(),
		Title:    title,
		Status:   types.GraphStatusActive,
		Metadata: datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed graph: %v", err)
	}
	return g
}

func SeedNode(tb testing.TB, ctx context.Context, tx *gorm.DB, graphID uuid.UUID, label string, depth int) *types.ConceptNode {
	tb.Helper()
	n := &types.ConceptNode{
		ID:            uuid.New(),
		GraphID:       graphID,
		Label:         label,
		Depth:         depth,
		MasteryStatus: types.MasteryUnseen,
		EaseFactor:    types.DefaultEaseFactor,
		Metadata:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed node: %v", err)
	}
	return n
}

func SeedEdge(tb testing.TB, ctx context.Context, tx *gorm.DB, graphID, parentID, childID uuid.UUID, edgeType types.EdgeType) *types.ConceptEdge {
	tb.Helper()
	e := &types.ConceptEdge{
		ID:           uuid.New(),
		GraphID:      graphID,
		ParentNodeID: parentID,
		ChildNodeID:  childID,
		EdgeType:     edgeType,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed edge: %v", err)
	}
	return e
}

func SeedResponse(tb testing.TB, ctx context.Context, tx *gorm.DB, graphID, nodeID uuid.UUID, quality int, respType types.ResponseType, sessionID *uuid.UUID, createdAt time.Time) *types.QuizResponse {
	tb.Helper()
	r := &types.QuizResponse{
		ID:           uuid.New(),
		NodeID:       nodeID,
		GraphID:      graphID,
		Question:     "q",
		Quality:      quality,
		ResponseType: respType,
		SessionID:    sessionID,
		CreatedAt:    createdAt,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed response: %v", err)
	}
	return r
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

func PtrInt(v int) *int { return &v }
