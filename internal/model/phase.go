package model

import "time"

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusRunning   PhaseStatus = "running"
	PhaseStatusCompleted PhaseStatus = "completed"
	PhaseStatusError     PhaseStatus = "error"
)

// PipelinePhase is one row per (product, phase_number) pair. Rows are created
// when a phase first starts and upserted on restart; they are deleted only by
// a full product reset.
type PipelinePhase struct {
	ID                 string      `json:"id"`
	ProductID          string      `json:"product_id"`
	PhaseNumber        int         `json:"phase_number"` // 1-4
	PhaseName          string      `json:"phase_name"`
	Status             PhaseStatus `json:"status"`
	ProgressPercentage int         `json:"progress_percentage"` // 0-100
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage       string      `json:"error_message,omitempty"`
}
