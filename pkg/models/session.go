package models

import "time"

// SessionContext is the working context handed to a drone for one delegation.
type SessionContext struct {
	// WorkDir is the directory the drone operates in.
	WorkDir string `json:"work_dir,omitempty"`
	// ProjectID identifies the project this work belongs to.
	ProjectID string `json:"project_id,omitempty"`
	// TaskID is the task being delegated.
	TaskID string `json:"task_id,omitempty"`
	// Todos are outstanding items the drone should address.
	Todos []string `json:"todos,omitempty"`
	// Artifacts are references to inputs the drone may consult.
	Artifacts []string `json:"artifacts,omitempty"`
}

// HistoryEntry is a single append-only record in a session's log.
type HistoryEntry struct {
	// Role identifies who produced the entry (queen, princess, drone).
	Role string `json:"role"`
	// Content is the entry text.
	Content string `json:"content"`
	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// AgentSession is the per-delegation working state for a drone.
// A session is created for one delegation call and discarded afterwards;
// it is never reused across calls.
type AgentSession struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// DroneID is the executor this session belongs to.
	DroneID string `json:"drone_id"`
	// ParentID is the coordinating princess, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Context is the working context for the delegation.
	Context SessionContext `json:"context"`
	// History is the append-only log of session activity.
	History []HistoryEntry `json:"history"`
	// CreatedAt is when the session was allocated.
	CreatedAt time.Time `json:"created_at"`
}

// Append adds an entry to the session history.
func (s *AgentSession) Append(role, content string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// DelegationStatus is the terminal status of one delegation call.
type DelegationStatus string

const (
	// DelegationCompleted indicates the drone finished the work.
	DelegationCompleted DelegationStatus = "completed"
	// DelegationFailed indicates the drone returned an error.
	DelegationFailed DelegationStatus = "failed"
	// DelegationTimeout indicates the deadline elapsed before the drone finished.
	DelegationTimeout DelegationStatus = "timeout"
)

// DelegationRequest asks a princess to run one task through a drone.
type DelegationRequest struct {
	// Target is the princess coordinator the request is addressed to.
	Target string `json:"target"`
	// TaskID is the task being delegated.
	TaskID string `json:"task_id"`
	// Category is the executor category of the task.
	Category Category `json:"category"`
	// Payload is the task description or instruction text.
	Payload string `json:"payload,omitempty"`
	// Session is the working session for this delegation.
	Session *AgentSession `json:"session,omitempty"`
	// Timeout is the hard deadline for the delegation. Zero means no deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DelegationResponse is the outcome of one delegation call.
type DelegationResponse struct {
	// TaskID is the task the response belongs to.
	TaskID string `json:"task_id"`
	// Drone is the executor that performed the work.
	Drone string `json:"drone"`
	// Status is the terminal status of the call.
	Status DelegationStatus `json:"status"`
	// Result holds the work product on success.
	Result string `json:"result,omitempty"`
	// Error holds the failure text on failure or timeout.
	Error string `json:"error,omitempty"`
	// Elapsed is how long the delegation took.
	Elapsed time.Duration `json:"elapsed"`
}
