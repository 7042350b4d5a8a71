package models

import "time"

// RunStatus is the lifecycle state of a phase-orchestrated run.
type RunStatus string

const (
	// RunPending indicates the run has not started.
	RunPending RunStatus = "pending"
	// RunDividing indicates tasks are being partitioned into phases.
	RunDividing RunStatus = "dividing"
	// RunExecuting indicates phases are executing.
	RunExecuting RunStatus = "executing"
	// RunAuditing indicates completed work is being audited.
	RunAuditing RunStatus = "auditing"
	// RunCompleted indicates the run finished and passed the audit gate.
	RunCompleted RunStatus = "completed"
	// RunFailed indicates the run aborted or failed the audit gate.
	RunFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunDividing, RunExecuting, RunAuditing, RunCompleted, RunFailed:
		return true
	default:
		return false
	}
}

// RunState is the observable state of one orchestrated run.
type RunState struct {
	// ProjectID identifies the project the run belongs to.
	ProjectID string `json:"project_id"`
	// RunID is the short identifier of this run.
	RunID string `json:"run_id"`
	// Status is the run lifecycle state.
	Status RunStatus `json:"status"`
	// CurrentPhase is the index of the executing phase, -1 before execution.
	CurrentPhase int `json:"current_phase"`
	// TotalPhases is the number of phases in the run.
	TotalPhases int `json:"total_phases"`
	// TotalTasks is the number of tasks in the run.
	TotalTasks int `json:"total_tasks"`
	// CompletedTasks counts tasks that finished successfully.
	CompletedTasks int `json:"completed_tasks"`
	// AuditPassRate is the fraction of audited tasks that passed, in [0,1].
	AuditPassRate float64 `json:"audit_pass_rate"`
	// Error holds the failure text for failed runs.
	Error string `json:"error,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run reached a terminal status, if it has.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
