package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task represents a unit of work in the delivery workflow.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// EstimatedHours is the estimated effort for this task.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	// Category is the executor category this task is routed by.
	Category Category `json:"category"`
	// Phase is the phase index assigned by the dependency graph builder.
	// Nil until Divide has run.
	Phase *int `json:"phase,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedTo is the ID of the drone working on this task.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Result holds the work product once the task completes.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PhaseIndex returns the assigned phase index, or -1 if unassigned.
func (t *Task) PhaseIndex() int {
	if t.Phase == nil {
		return -1
	}
	return *t.Phase
}
