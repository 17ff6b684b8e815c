package domain

import (
	"time"

	"github.com/google/uuid"
)

type FlowStatus string

const (
	FlowPending    FlowStatus = "pending"
	FlowDiagnosing FlowStatus = "diagnosing"
	FlowPlanning   FlowStatus = "planning"
	FlowTeaching   FlowStatus = "teaching"
)

// ProbeResult records one diagnostic probe as issued. InferredMastery keeps
// the caller-supplied value; the clamped seed lives on the node itself.
type ProbeResult struct {
	Quality         int     `json:"quality"`
	InferredMastery float64 `json:"inferred_mastery"`
}

// InventoryEntry is one probe candidate. DifficultyRank mirrors the node's
// depth at flow start.
type InventoryEntry struct {
	NodeID         uuid.UUID `json:"node_id"`
	Label          string    `json:"label"`
	Description    string    `json:"description,omitempty"`
	DifficultyRank int       `json:"difficulty_rank"`
}

// DiagnosticFlow is the short-lived session persisted in the external state
// store, keyed by graph id. It is serialized as JSON and every write is
// guarded by the store's optimistic version counter.
type DiagnosticFlow struct {
	GraphID      uuid.UUID                 `json:"graph_id"`
	Status       FlowStatus                `json:"status"`
	ProbesIssued int                       `json:"probes_issued"`
	Results      map[uuid.UUID]ProbeResult `json:"diagnostic_results"`
	Inventory    []InventoryEntry          `json:"concept_inventory"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// DiagnosticSummary is the result of completing a flow.
type DiagnosticSummary struct {
	GraphID              uuid.UUID      `json:"graph_id"`
	ProbedNodes          []ProbeOutcome `json:"probed_nodes"`
	UnprobedCount        int            `json:"unprobed_count"`
	InferredFrontierRank int            `json:"inferred_frontier_rank"`
}

// ProbeOutcome pairs a recorded probe with the node's status at completion time.
type ProbeOutcome struct {
	NodeID          uuid.UUID     `json:"node_id"`
	Label           string        `json:"label"`
	Quality         int           `json:"quality"`
	InferredMastery float64       `json:"inferred_mastery"`
	CurrentStatus   MasteryStatus `json:"current_status"`
}
