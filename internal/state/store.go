package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// SaveRun writes the run state for a project, replacing any previous run
// for the same project id. Saving the same state twice is a no-op.
func (db *DB) SaveRun(run *models.RunState) error {
	if run == nil {
		return fmt.Errorf("save run: nil run state")
	}
	if run.ProjectID == "" {
		return fmt.Errorf("save run: missing project id")
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = formatTime(*run.FinishedAt)
	}

	_, err := db.Exec(`
		INSERT INTO runs (project_id, run_id, status, current_phase, total_phases,
			total_tasks, completed_tasks, audit_pass_rate, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			current_phase = excluded.current_phase,
			total_phases = excluded.total_phases,
			total_tasks = excluded.total_tasks,
			completed_tasks = excluded.completed_tasks,
			audit_pass_rate = excluded.audit_pass_rate,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.ProjectID, run.RunID, string(run.Status), run.CurrentPhase, run.TotalPhases,
		run.TotalTasks, run.CompletedTasks, run.AuditPassRate,
		nullableString(run.Error), formatTime(run.StartedAt), finishedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ProjectID, err)
	}
	return nil
}

// LoadRun reads the run state for a project. It returns (nil, nil) when the
// project has no recorded run.
func (db *DB) LoadRun(projectID string) (*models.RunState, error) {
	row := db.QueryRow(`
		SELECT project_id, run_id, status, current_phase, total_phases,
			total_tasks, completed_tasks, audit_pass_rate, error, started_at, finished_at
		FROM runs WHERE project_id = ?
	`, projectID)

	var run models.RunState
	var status, startedAt string
	var errText, finishedAt sql.NullString

	err := row.Scan(&run.ProjectID, &run.RunID, &status, &run.CurrentPhase,
		&run.TotalPhases, &run.TotalTasks, &run.CompletedTasks, &run.AuditPassRate,
		&errText, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", projectID, err)
	}

	run.Status = models.RunStatus(status)
	run.Error = errText.String
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("load run %s: parse started_at: %w", projectID, err)
	}
	run.FinishedAt = parseNullableTime(finishedAt)
	return &run, nil
}

// SaveConvergence writes the convergence loop state for a project, replacing
// any previous state for the same project id.
func (db *DB) SaveConvergence(state *models.ConvergenceState) error {
	if state == nil {
		return fmt.Errorf("save convergence: nil state")
	}
	if state.ProjectID == "" {
		return fmt.Errorf("save convergence: missing project id")
	}

	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("save convergence %s: marshal history: %w", state.ProjectID, err)
	}
	scenarios, err := json.Marshal(state.Scenarios)
	if err != nil {
		return fmt.Errorf("save convergence %s: marshal scenarios: %w", state.ProjectID, err)
	}

	_, err = db.Exec(`
		INSERT INTO convergence (project_id, iteration, max_iterations, history,
			failure_rate, target_rate, status, spec, plan, scenarios, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			iteration = excluded.iteration,
			max_iterations = excluded.max_iterations,
			history = excluded.history,
			failure_rate = excluded.failure_rate,
			target_rate = excluded.target_rate,
			status = excluded.status,
			spec = excluded.spec,
			plan = excluded.plan,
			scenarios = excluded.scenarios,
			updated_at = excluded.updated_at
	`, state.ProjectID, state.Iteration, state.MaxIterations, string(history),
		state.FailureRate, state.TargetRate, string(state.Status),
		state.Spec, state.Plan, string(scenarios), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save convergence %s: %w", state.ProjectID, err)
	}
	return nil
}

// LoadConvergence reads the convergence loop state for a project. It returns
// (nil, nil) when the project has no recorded state.
func (db *DB) LoadConvergence(projectID string) (*models.ConvergenceState, error) {
	row := db.QueryRow(`
		SELECT project_id, iteration, max_iterations, history, failure_rate,
			target_rate, status, spec, plan, scenarios
		FROM convergence WHERE project_id = ?
	`, projectID)

	var state models.ConvergenceState
	var status string
	var history, spec, plan, scenarios sql.NullString

	err := row.Scan(&state.ProjectID, &state.Iteration, &state.MaxIterations,
		&history, &state.FailureRate, &state.TargetRate, &status, &spec, &plan, &scenarios)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load convergence %s: %w", projectID, err)
	}

	state.Status = models.ConvergenceStatus(status)
	state.Spec = spec.String
	state.Plan = plan.String
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &state.History); err != nil {
			return nil, fmt.Errorf("load convergence %s: unmarshal history: %w", projectID, err)
		}
	}
	if scenarios.Valid && scenarios.String != "" {
		if err := json.Unmarshal([]byte(scenarios.String), &state.Scenarios); err != nil {
			return nil, fmt.Errorf("load convergence %s: unmarshal scenarios: %w", projectID, err)
		}
	}
	return &state, nil
}

// nullableString maps an empty string to NULL for storage.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
