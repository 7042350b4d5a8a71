package state

import (
	"io"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// RunStore persists phase-run state.
type RunStore interface {
	SaveRun(run *models.RunState) error
	LoadRun(projectID string) (*models.RunState, error)
}

// ConvergenceStore persists convergence-loop state.
type ConvergenceStore interface {
	SaveConvergence(state *models.ConvergenceState) error
	LoadConvergence(projectID string) (*models.ConvergenceState, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
// This interface allows the orchestrator and the convergence loop to work
// with any state backend without depending on the concrete SQLite
// implementation. It composes focused sub-interfaces for better modularity.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
	ConvergenceStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore       = (*DB)(nil)
	_ Migrator         = (*DB)(nil)
	_ RunStore         = (*DB)(nil)
	_ ConvergenceStore = (*DB)(nil)
)
