package db

import (
	"fmt"

	types "github.com/yungbote/curricula-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Graph structure
		// =========================
		&types.CurriculumGraph{},
		&types.ConceptNode{},
		&types.ConceptEdge{},

		// =========================
		// Learner activity + analytics
		// =========================
		&types.QuizResponse{},
		&types.AnalyticsSnapshot{},
	)
}

// EnsureCurriculumIndexes creates the composite indexes the sequencing,
// mastery, and analytics queries read through. AutoMigrate only emits the
// single-column indexes declared in struct tags.
func EnsureCurriculumIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quiz_response_node_created_at
		ON quiz_response (node_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_quiz_response_node_created_at: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quiz_response_graph_created_at
		ON quiz_response (graph_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_quiz_response_graph_created_at: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_concept_node_graph_sequence
		ON concept_node (graph_id, sequence)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_concept_node_graph_sequence: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureCurriculumIndexes(s.db); err != nil {
		s.log.Error("Curriculum index migration failed", "error", err)
		return err
	}

	return nil
}
