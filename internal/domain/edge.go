package domain

import (
	"time"

	"github.com/google/uuid"
)

type EdgeType string

const (
	// EdgePrerequisite participates in cycle checks, frontier computation,
	// and topological sequencing.
	EdgePrerequisite EdgeType = "prerequisite"
	// EdgeRelated is informational only and exempt from cycle checking.
	EdgeRelated EdgeType = "related"
)

func (t EdgeType) Valid() bool {
	return t == EdgePrerequisite || t == EdgeRelated
}

// ConceptEdge is a directed parent->child dependency between two nodes of the
// same graph. Edges are hard-deleted so a removed edge can be recreated
// without tripping the pair uniqueness index.
type ConceptEdge struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	GraphID uuid.UUID        `gorm:"type:uuid;column:graph_id;not null;index" json:"graph_id"`
	Graph   *CurriculumGraph `gorm:"constraint:OnDelete:CASCADE;foreignKey:GraphID;references:ID" json:"-"`

	ParentNodeID uuid.UUID    `gorm:"type:uuid;column:parent_node_id;not null;index:idx_concept_edge_pair,unique,priority:1" json:"parent_node_id"`
	ChildNodeID  uuid.UUID    `gorm:"type:uuid;column:child_node_id;not null;index:idx_concept_edge_pair,unique,priority:2" json:"child_node_id"`
	EdgeType     EdgeType     `gorm:"column:edge_type;not null;index:idx_concept_edge_pair,unique,priority:3" json:"edge_type"`
	ParentNode   *ConceptNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ParentNodeID;references:ID" json:"-"`
	ChildNode    *ConceptNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChildNodeID;references:ID" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ConceptEdge) TableName() string { return "concept_edge" }
