// Package orchestrator runs the phase-ordered delivery workflow: divide
// tasks into phases, fan each phase out through the hive, audit the work
// products, and gate completion on the aggregate audit pass rate.
package orchestrator

import (
	"time"
)

// EventType is the kind of lifecycle event the orchestrator publishes.
type EventType string

const (
	// EventRunStarted indicates a run has started.
	EventRunStarted EventType = "run_started"
	// EventRunCompleted indicates a run finished and passed the audit gate.
	EventRunCompleted EventType = "run_completed"
	// EventRunFailed indicates a run aborted or failed the audit gate.
	EventRunFailed EventType = "run_failed"
	// EventPhaseStarted indicates a phase began executing.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates every task in a phase finished.
	EventPhaseCompleted EventType = "phase_completed"
	// EventTaskStarted indicates a task was delegated to the hive.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task's delegation completed.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task's delegation failed or timed out.
	EventTaskFailed EventType = "task_failed"
	// EventAuditStarted indicates the audit stage began.
	EventAuditStarted EventType = "audit_started"
	// EventAuditCompleted indicates the audit stage finished.
	EventAuditCompleted EventType = "audit_completed"
)

// Event is one lifecycle notification. Payload carries the event-specific
// details; subscribers treat it as read-only.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// ProjectID identifies the project the event belongs to.
	ProjectID string
	// Payload carries event-specific details.
	Payload map[string]any
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
