package models

// Category tags a task with the kind of executor work it needs.
// The hive router resolves a category to a princess and then a drone.
type Category string

const (
	// CategoryCoding is implementation work.
	CategoryCoding Category = "coding"
	// CategoryTesting is test authoring and execution work.
	CategoryTesting Category = "testing"
	// CategoryReview is code and design review work.
	CategoryReview Category = "review"
	// CategoryResearch is investigation and evidence gathering work.
	CategoryResearch Category = "research"
	// CategorySecurity is security analysis and hardening work.
	CategorySecurity Category = "security"
	// CategoryDeployment is build, release, and infrastructure work.
	CategoryDeployment Category = "deployment"
	// CategoryPlanning is coordination and planning work.
	CategoryPlanning Category = "planning"
)

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryCoding, CategoryTesting, CategoryReview, CategoryResearch,
		CategorySecurity, CategoryDeployment, CategoryPlanning:
		return true
	default:
		return false
	}
}

// PrincessState represents the availability of a princess coordinator.
// Failures never park a princess in an error state; she always returns
// to idle so the next task can be accepted.
type PrincessState string

const (
	// PrincessIdle indicates the coordinator can accept work.
	PrincessIdle PrincessState = "idle"
	// PrincessBusy indicates the coordinator has at least one active delegation.
	PrincessBusy PrincessState = "busy"
)
