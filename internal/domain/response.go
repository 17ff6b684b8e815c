package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResponseType string

const (
	ResponseReview     ResponseType = "review"
	ResponseTeach      ResponseType = "teach"
	ResponseDiagnostic ResponseType = "diagnostic"
)

func (t ResponseType) Valid() bool {
	switch t {
	case ResponseReview, ResponseTeach, ResponseDiagnostic:
		return true
	}
	return false
}

// QuizResponse is an append-only log row and the source of truth for all
// scoring. Rows are never updated or deleted individually; they go away only
// through the graph cascade.
type QuizResponse struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	NodeID uuid.UUID    `gorm:"type:uuid;column:node_id;not null;index" json:"node_id"`
	Node   *ConceptNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:NodeID;references:ID" json:"-"`

	// GraphID is denormalized from the node for window queries.
	GraphID uuid.UUID `gorm:"type:uuid;column:graph_id;not null;index" json:"graph_id"`

	Question   string  `gorm:"column:question;type:text" json:"question"`
	UserAnswer *string `gorm:"column:user_answer;type:text" json:"user_answer,omitempty"`

	Quality      int          `gorm:"column:quality;not null" json:"quality"`
	ResponseType ResponseType `gorm:"column:response_type;not null;index" json:"response_type"`

	SessionID *uuid.UUID `gorm:"type:uuid;column:session_id" json:"session_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (QuizResponse) TableName() string { return "quiz_response" }
