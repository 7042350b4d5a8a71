package state

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// InterruptedRun describes a run that was left in a non-terminal status,
// usually because the process crashed or was killed mid-run.
type InterruptedRun struct {
	ProjectID string
	RunID     string
	Status    models.RunStatus
	StartedAt time.Time
}

// RecoveryManager detects and cleans up interrupted runs on startup.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a RecoveryManager over the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted reports the run for the given project if it was left
// in a non-terminal status. It returns nil when the project has no run or
// the run finished cleanly.
func (rm *RecoveryManager) CheckForInterrupted(projectID string) (*InterruptedRun, error) {
	run, err := rm.db.LoadRun(projectID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	switch run.Status {
	case models.RunCompleted, models.RunFailed:
		return nil, nil
	}

	return &InterruptedRun{
		ProjectID: run.ProjectID,
		RunID:     run.RunID,
		Status:    run.Status,
		StartedAt: run.StartedAt,
	}, nil
}

// MarkInterrupted transitions an interrupted run to failed with an
// explanatory error so a fresh run can start cleanly.
func (rm *RecoveryManager) MarkInterrupted(projectID string) error {
	run, err := rm.db.LoadRun(projectID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("no run recorded for project %s", projectID)
	}

	now := time.Now()
	run.Status = models.RunFailed
	run.Error = "run interrupted before completion"
	run.FinishedAt = &now
	if err := rm.db.SaveRun(run); err != nil {
		return fmt.Errorf("mark interrupted: %w", err)
	}
	return nil
}
