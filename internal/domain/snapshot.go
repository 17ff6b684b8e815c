package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Struggling-node thresholds for the snapshot metric: a node qualifies with
// at least SnapshotStruggleMinReviews review responses averaging below
// SnapshotStruggleMeanQuality.
const (
	SnapshotStruggleMinReviews  = 5
	SnapshotStruggleMeanQuality = 2.5
)

// Replan triggers evaluated by the analytics sweep. A null 7-day retention
// never triggers on its own.
const (
	ReplanStruggleCount  = 3
	ReplanRetentionFloor = 0.60
)

// AnalyticsSnapshot is a point-in-time recomputation of one graph's metrics,
// one row per graph per day. computeSnapshot upserts on (graph_id,
// snapshot_date), so re-running a day overwrites rather than duplicates.
type AnalyticsSnapshot struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	GraphID uuid.UUID        `gorm:"type:uuid;column:graph_id;not null;index:idx_snapshot_graph_date,unique,priority:1" json:"graph_id"`
	Graph   *CurriculumGraph `gorm:"constraint:OnDelete:CASCADE;foreignKey:GraphID;references:ID" json:"-"`

	SnapshotDate time.Time `gorm:"column:snapshot_date;type:date;not null;index:idx_snapshot_graph_date,unique,priority:2" json:"snapshot_date"`

	TotalNodes    int     `gorm:"column:total_nodes;not null;default:0" json:"total_nodes"`
	MasteredNodes int     `gorm:"column:mastered_nodes;not null;default:0" json:"mastered_nodes"`
	MasteryPct    float64 `gorm:"column:mastery_pct;not null;default:0" json:"mastery_pct"`
	AvgEaseFactor float64 `gorm:"column:avg_ease_factor;not null;default:0" json:"avg_ease_factor"`

	// Retention rates are nil when the window holds zero review responses;
	// they are never defaulted to 0.
	RetentionRate7d  *float64 `gorm:"column:retention_rate_7d" json:"retention_rate_7d,omitempty"`
	RetentionRate30d *float64 `gorm:"column:retention_rate_30d" json:"retention_rate_30d,omitempty"`

	VelocityNodesPerWeek    float64 `gorm:"column:velocity_nodes_per_week;not null;default:0" json:"velocity_nodes_per_week"`
	EstimatedCompletionDays *int    `gorm:"column:estimated_completion_days" json:"estimated_completion_days,omitempty"`

	// StrugglingNodes is a JSON array of node id strings.
	StrugglingNodes datatypes.JSON `gorm:"column:struggling_nodes;type:jsonb" json:"struggling_nodes,omitempty"`
	// StrongestSubtree is a SubtreeStrength object, or SQL null for a graph
	// with no edges.
	StrongestSubtree datatypes.JSON `gorm:"column:strongest_subtree;type:jsonb" json:"strongest_subtree,omitempty"`

	TotalQuizResponses int      `gorm:"column:total_quiz_responses;not null;default:0" json:"total_quiz_responses"`
	AvgQualityScore    *float64 `gorm:"column:avg_quality_score" json:"avg_quality_score,omitempty"`
	SessionsThisPeriod int      `gorm:"column:sessions_this_period;not null;default:0" json:"sessions_this_period"`

	// TimeOfDayDistribution is a TimeOfDayBuckets object.
	TimeOfDayDistribution datatypes.JSON `gorm:"column:time_of_day_distribution;type:jsonb" json:"time_of_day_distribution,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnalyticsSnapshot) TableName() string { return "analytics_snapshot" }

// SubtreeStrength is the strongest_subtree payload: the internal node whose
// subtree (itself plus all descendants over any edge type) has the highest
// mean mastery score.
type SubtreeStrength struct {
	NodeID   uuid.UUID `json:"node_id"`
	Label    string    `json:"label"`
	AvgScore float64   `json:"avg_score"`
	Size     int       `json:"size"`
}

// TimeOfDayBuckets counts responses by local hour: morning [6,12),
// afternoon [12,18), evening [18,24) plus [0,6).
type TimeOfDayBuckets struct {
	Morning   int `json:"morning"`
	Afternoon int `json:"afternoon"`
	Evening   int `json:"evening"`
}
