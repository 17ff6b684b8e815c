package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GraphStatus string

const (
	GraphStatusActive    GraphStatus = "active"
	GraphStatusCompleted GraphStatus = "completed"
	GraphStatusAbandoned GraphStatus = "abandoned"
)

func (s GraphStatus) Valid() bool {
	switch s {
	case GraphStatusActive, GraphStatusCompleted, GraphStatusAbandoned:
		return true
	}
	return false
}

// CurriculumGraph owns its nodes, edges, responses, and snapshots; deleting a
// graph cascades through all of them. Status moves active->completed only via
// auto-completion and active->abandoned only via an explicit caller action;
// completed and abandoned are terminal.
type CurriculumGraph struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Title  string      `gorm:"column:title;not null" json:"title"`
	Status GraphStatus `gorm:"column:status;not null;default:'active';index" json:"status"`

	// RootNodeID points at the first node of the current sequence. No FK
	// constraint: the node row carries the cascade, and the reference is
	// rewritten on every replan.
	RootNodeID *uuid.UUID `gorm:"type:uuid;column:root_node_id" json:"root_node_id,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CurriculumGraph) TableName() string { return "curriculum_graph" }
