package models

import "time"

// AuditStage identifies one stage of the three-stage audit pipeline.
type AuditStage string

const (
	// StageTheater is the static scan for incomplete-work markers.
	StageTheater AuditStage = "theater"
	// StageProduction executes the work product in the sandbox.
	StageProduction AuditStage = "production"
	// StageQuality runs the static analyzer over the work product.
	StageQuality AuditStage = "quality"
)

// Order returns the position of the stage in pipeline order, starting at 0.
func (s AuditStage) Order() int {
	switch s {
	case StageTheater:
		return 0
	case StageProduction:
		return 1
	case StageQuality:
		return 2
	default:
		return -1
	}
}

// AuditStatus is the outcome of a single audit stage.
type AuditStatus string

const (
	// AuditPass indicates the stage passed.
	AuditPass AuditStatus = "pass"
	// AuditFail indicates the stage failed and the pipeline stopped.
	AuditFail AuditStatus = "fail"
)

// AuditResult records the outcome of one executed audit stage.
// Stages after an early exit produce no record.
type AuditResult struct {
	// TaskID is the task whose output was audited.
	TaskID string `json:"task_id"`
	// Stage is the pipeline stage this record belongs to.
	Stage AuditStage `json:"stage"`
	// Status is the stage outcome.
	Status AuditStatus `json:"status"`
	// Score is the stage-specific numeric score.
	Score float64 `json:"score"`
	// Details holds stage-specific findings.
	Details string `json:"details,omitempty"`
	// Elapsed is how long the stage took.
	Elapsed time.Duration `json:"elapsed"`
	// RetryCount is the pipeline attempt this record was produced on.
	RetryCount int `json:"retry_count"`
}
