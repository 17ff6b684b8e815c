package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Structural bounds enforced at creation and on every depth recomputation.
const (
	MaxNodesPerGraph = 30
	MaxNodeDepth     = 5
)

type MasteryStatus string

const (
	MasteryUnseen    MasteryStatus = "unseen"
	MasteryDiagnosed MasteryStatus = "diagnosed"
	MasteryLearning  MasteryStatus = "learning"
	MasteryReviewing MasteryStatus = "reviewing"
	MasteryMastered  MasteryStatus = "mastered"
)

func (s MasteryStatus) Valid() bool {
	switch s {
	case MasteryUnseen, MasteryDiagnosed, MasteryLearning, MasteryReviewing, MasteryMastered:
		return true
	}
	return false
}

type ConceptNode struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	GraphID uuid.UUID        `gorm:"type:uuid;column:graph_id;not null;index" json:"graph_id"`
	Graph   *CurriculumGraph `gorm:"constraint:OnDelete:CASCADE;foreignKey:GraphID;references:ID" json:"-"`

	Label       string `gorm:"column:label;not null" json:"label"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`

	// Depth is the longest prerequisite chain from any root, recomputed
	// whenever a prerequisite edge is added or removed. Bounded by MaxNodeDepth.
	Depth int `gorm:"column:depth;not null;default:0" json:"depth"`

	MasteryScore  float64       `gorm:"column:mastery_score;not null;default:0" json:"mastery_score"`
	MasteryStatus MasteryStatus `gorm:"column:mastery_status;not null;default:'unseen';index" json:"mastery_status"`

	// SM-2 bookkeeping. Informational only; no scheduling decision reads these.
	EaseFactor  float64 `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`
	Repetitions int     `gorm:"column:repetitions;not null;default:0" json:"repetitions"`

	EffortMinutes *int `gorm:"column:effort_minutes" json:"effort_minutes,omitempty"`

	// Sequence is assigned by the sequencer, 1..N contiguous per graph.
	Sequence *int `gorm:"column:sequence" json:"sequence,omitempty"`

	// MasteredAt is stamped on every transition into mastered; the analytics
	// velocity buckets group on it.
	MasteredAt *time.Time `gorm:"column:mastered_at" json:"mastered_at,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ConceptNode) TableName() string { return "concept_node" }
