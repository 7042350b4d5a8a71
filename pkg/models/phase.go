package models

// PhaseStatus represents the current state of an execution phase.
type PhaseStatus string

const (
	// PhaseStatusPending indicates the phase has not started.
	PhaseStatusPending PhaseStatus = "pending"
	// PhaseStatusInProgress indicates the phase is executing.
	PhaseStatusInProgress PhaseStatus = "in_progress"
	// PhaseStatusCompleted indicates every task in the phase finished.
	PhaseStatusCompleted PhaseStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseStatusPending, PhaseStatusInProgress, PhaseStatusCompleted:
		return true
	default:
		return false
	}
}

// Phase is an ordered group of tasks that can execute together once all
// earlier phases have completed.
type Phase struct {
	// Index is the zero-based position of this phase in execution order.
	Index int `json:"index"`
	// Name is the display name for this phase.
	Name string `json:"name"`
	// Tasks are the tasks owned by this phase.
	Tasks []*Task `json:"tasks"`
	// DependsOn lists the indices of phases that must complete first.
	DependsOn []int `json:"depends_on,omitempty"`
	// EstimatedHours is the summed effort of the phase's tasks.
	EstimatedHours float64 `json:"estimated_hours"`
	// Status is the current state of the phase.
	Status PhaseStatus `json:"status"`
}

// DependencyEdge is a single dependency relationship between two tasks,
// kept for visualization and debugging.
type DependencyEdge struct {
	// From is the task that must complete first.
	From string `json:"from"`
	// To is the task that depends on From.
	To string `json:"to"`
}

// DependencyGraph is the build-once artifact of dividing a task set:
// the full node list, the explicit dependency edges, and the derived phases.
type DependencyGraph struct {
	// Nodes holds every task in the graph.
	Nodes []*Task `json:"nodes"`
	// Edges holds the explicit dependency relationships.
	Edges []DependencyEdge `json:"edges"`
	// Phases is the ordered phase partition of the nodes.
	Phases []*Phase `json:"phases"`
	// Bottlenecks lists task IDs referenced as a dependency by three
	// or more other tasks.
	Bottlenecks []string `json:"bottlenecks,omitempty"`
}
