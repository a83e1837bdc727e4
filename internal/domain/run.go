package domain

import "time"

// RunTrigger names what kicked off a pipeline run.
type RunTrigger string

const (
	TriggerManual             RunTrigger = "MANUAL"
	TriggerScheduledPreSeason RunTrigger = "SCHEDULED_PRE_SEASON"
	TriggerScheduledPostRD    RunTrigger = "SCHEDULED_POST_RD"
)

// RunStatus is the lifecycle state of a pipeline run. Transitions are
// monotonic: RUNNING moves to exactly one of COMPLETED or FAILED.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// InstitutionOutcome summarizes one institution's acquisition inside a run.
type InstitutionOutcome struct {
	InstitutionName string `json:"institutionName"`
	Success         bool   `json:"success"`
	EssaysFound     int    `json:"essaysFound"`
	NewPrompts      int    `json:"newPrompts"`
	Error           string `json:"error,omitempty"`
}

// PipelineRun is the durable audit record of one full-catalog batch.
type PipelineRun struct {
	ID                  string
	Trigger             RunTrigger
	OperatorID          string
	ApplicationYear     int
	Status              RunStatus
	TotalInstitutions   int
	SuccessCount        int
	FailedCount         int
	NewPromptsCount     int
	ChangedPromptsCount int
	Detail              []InstitutionOutcome
	StartedAt           time.Time
	CompletedAt         *time.Time
}
