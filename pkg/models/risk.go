package models

// Priority ranks a failure scenario from critical (P0) to minor (P3).
type Priority string

const (
	// PriorityP0 is a critical scenario that can sink the delivery.
	PriorityP0 Priority = "P0"
	// PriorityP1 is a major scenario requiring mitigation.
	PriorityP1 Priority = "P1"
	// PriorityP2 is a moderate scenario worth tracking.
	PriorityP2 Priority = "P2"
	// PriorityP3 is a minor scenario.
	PriorityP3 Priority = "P3"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	default:
		return false
	}
}

// Weight returns the multiplier used when scoring scenario risk.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityP0:
		return 3
	case PriorityP1:
		return 2
	case PriorityP2:
		return 1
	case PriorityP3:
		return 0.5
	default:
		return 0
	}
}

// HigherThan reports whether p outranks other. P0 outranks P1, and so on;
// unknown priorities never outrank known ones.
func (p Priority) HigherThan(other Priority) bool {
	rank := map[Priority]int{PriorityP0: 0, PriorityP1: 1, PriorityP2: 2, PriorityP3: 3}
	pr, ok := rank[p]
	if !ok {
		return false
	}
	or, ok := rank[other]
	if !ok {
		return true
	}
	return pr < or
}

// FailureScenario is one way the delivery could fail, proposed by a
// premortem perspective. Scenarios are produced fresh each iteration and
// superseded on merge, never mutated.
type FailureScenario struct {
	// ID is the unique identifier for this scenario.
	ID string `json:"id"`
	// Description states how the failure would happen.
	Description string `json:"description"`
	// Priority ranks the scenario.
	Priority Priority `json:"priority"`
	// Likelihood is the probability of the scenario in [0,1].
	Likelihood float64 `json:"likelihood"`
	// Impact is the damage of the scenario in [0,1].
	Impact float64 `json:"impact"`
	// Mitigation is the remediation text, if one has been synthesized.
	Mitigation string `json:"mitigation,omitempty"`
	// Perspective names the premortem perspective that proposed the scenario.
	Perspective string `json:"perspective,omitempty"`
}

// RiskScore is the contribution of this scenario to the weighted total.
func (f *FailureScenario) RiskScore() float64 {
	return f.Likelihood * f.Impact * f.Priority.Weight() * 100
}

// ConvergenceStatus is the lifecycle state of the convergence loop.
type ConvergenceStatus string

const (
	// ConvergenceRunning indicates the loop is iterating.
	ConvergenceRunning ConvergenceStatus = "running"
	// ConvergencePaused indicates the loop is paused at an iteration boundary.
	ConvergencePaused ConvergenceStatus = "paused"
	// ConvergenceCompleted indicates the failure rate met the target.
	ConvergenceCompleted ConvergenceStatus = "completed"
	// ConvergenceFailed indicates the iteration cap was reached above target.
	ConvergenceFailed ConvergenceStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ConvergenceStatus) Valid() bool {
	switch s {
	case ConvergenceRunning, ConvergencePaused, ConvergenceCompleted, ConvergenceFailed:
		return true
	default:
		return false
	}
}

// ConvergenceState is the full state of the convergence loop for a project.
type ConvergenceState struct {
	// ProjectID identifies the project this loop belongs to.
	ProjectID string `json:"project_id"`
	// Iteration is the current iteration number, starting at 0.
	Iteration int `json:"iteration"`
	// MaxIterations is the iteration budget.
	MaxIterations int `json:"max_iterations"`
	// History is the append-only record of failure rates per iteration.
	History []float64 `json:"history"`
	// FailureRate is the latest computed failure rate (0-100).
	FailureRate float64 `json:"failure_rate"`
	// TargetRate is the failure rate the loop is converging toward.
	TargetRate float64 `json:"target_rate"`
	// Status is the loop lifecycle state.
	Status ConvergenceStatus `json:"status"`
	// Spec is the living specification text mitigations are appended to.
	Spec string `json:"spec"`
	// Plan is the living plan text mitigations are appended to.
	Plan string `json:"plan"`
	// Scenarios are the surviving failure scenarios from the latest premortem.
	Scenarios []*FailureScenario `json:"scenarios,omitempty"`
}
