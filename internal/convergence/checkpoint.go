package convergence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// DefaultCheckpointPath returns the per-project checkpoint database path.
func DefaultCheckpointPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".waggle", "checkpoints.db")
}

// CheckpointStore records one loop snapshot per iteration so an
// interrupted loop can resume from where it left off.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore opens (or creates) the checkpoint database at dbPath.
func NewCheckpointStore(dbPath string) (*CheckpointStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS loop_checkpoints (
			project_id TEXT NOT NULL,
			iteration INT NOT NULL,
			max_iterations INT,
			failure_rate REAL,
			target_rate REAL,
			status TEXT,
			spec TEXT,
			plan TEXT,
			history TEXT,
			scenarios TEXT,
			created_at DATETIME,
			PRIMARY KEY (project_id, iteration)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &CheckpointStore{db: db}, nil
}

// Save records a checkpoint for the state's current iteration, replacing
// any earlier snapshot of the same iteration.
func (c *CheckpointStore) Save(state *models.ConvergenceState) error {
	if state == nil || state.ProjectID == "" {
		return fmt.Errorf("checkpoint requires a project id")
	}

	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	scenarios, err := json.Marshal(state.Scenarios)
	if err != nil {
		return fmt.Errorf("marshal scenarios: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO loop_checkpoints
			(project_id, iteration, max_iterations, failure_rate, target_rate, status, spec, plan, history, scenarios, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, state.ProjectID, state.Iteration, state.MaxIterations, state.FailureRate, state.TargetRate,
		string(state.Status), state.Spec, state.Plan, string(history), string(scenarios), time.Now())
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint for a project, or (nil, nil)
// if none has been recorded.
func (c *CheckpointStore) Latest(projectID string) (*models.ConvergenceState, error) {
	row := c.db.QueryRow(`
		SELECT project_id, iteration, max_iterations, failure_rate, target_rate, status, spec, plan, history, scenarios
		FROM loop_checkpoints
		WHERE project_id = ?
		ORDER BY iteration DESC
		LIMIT 1
	`, projectID)

	var state models.ConvergenceState
	var status, history, scenarios string
	err := row.Scan(
		&state.ProjectID,
		&state.Iteration,
		&state.MaxIterations,
		&state.FailureRate,
		&state.TargetRate,
		&status,
		&state.Spec,
		&state.Plan,
		&history,
		&scenarios,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	state.Status = models.ConvergenceStatus(status)
	if history != "" {
		if err := json.Unmarshal([]byte(history), &state.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if scenarios != "" {
		if err := json.Unmarshal([]byte(scenarios), &state.Scenarios); err != nil {
			return nil, fmt.Errorf("unmarshal scenarios: %w", err)
		}
	}
	return &state, nil
}

// Clear removes all checkpoints for a project.
func (c *CheckpointStore) Clear(projectID string) error {
	if _, err := c.db.Exec(`DELETE FROM loop_checkpoints WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *CheckpointStore) Close() error {
	return c.db.Close()
}
