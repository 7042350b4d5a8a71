package state

import (
	"testing"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

func sampleRun(projectID string) *models.RunState {
	return &models.RunState{
		ProjectID:      projectID,
		RunID:          "run-1",
		Status:         models.RunExecuting,
		CurrentPhase:   1,
		TotalPhases:    3,
		TotalTasks:     7,
		CompletedTasks: 2,
		StartedAt:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadRun_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	run := sampleRun("proj-1")
	if err := db.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := db.LoadRun("proj-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("LoadRun returned nil for a saved run")
	}
	if got.RunID != "run-1" || got.Status != models.RunExecuting {
		t.Errorf("loaded run = %s/%s, want run-1/executing", got.RunID, got.Status)
	}
	if got.CurrentPhase != 1 || got.TotalPhases != 3 {
		t.Errorf("phase counters = %d/%d, want 1/3", got.CurrentPhase, got.TotalPhases)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("started_at = %s, want %s", got.StartedAt, run.StartedAt)
	}
	if got.FinishedAt != nil {
		t.Errorf("unfinished run should have nil finished_at, got %v", got.FinishedAt)
	}
	if got.Error != "" {
		t.Errorf("expected empty error, got %q", got.Error)
	}
}

func TestLoadRun_MissingReturnsNilNil(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.LoadRun("proj-unknown")
	if err != nil {
		t.Fatalf("LoadRun should not error for a missing project: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil run for a missing project, got %+v", got)
	}
}

func TestSaveRun_UpsertsByProjectID(t *testing.T) {
	db := setupTestDB(t)

	run := sampleRun("proj-1")
	if err := db.SaveRun(run); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}

	finished := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	run.Status = models.RunFailed
	run.Error = "task task-3 failed"
	run.FinishedAt = &finished
	if err := db.SaveRun(run); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	got, err := db.LoadRun("proj-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "task task-3 failed" {
		t.Errorf("error = %q, want failure text", got.Error)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %s", got.FinishedAt, finished)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 1 {
		t.Errorf("upsert should keep one row per project, got %d", count)
	}
}

func TestSaveRun_Validation(t *testing.T) {
	db := setupTestDB(t)

	if err := db.SaveRun(nil); err == nil {
		t.Error("nil run should be rejected")
	}
	if err := db.SaveRun(&models.RunState{RunID: "run-1"}); err == nil {
		t.Error("run without a project id should be rejected")
	}
}

func TestSaveLoadConvergence_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	stored := &models.ConvergenceState{
		ProjectID:     "proj-1",
		Iteration:     4,
		MaxIterations: 10,
		History:       []float64{61.2, 38.4, 17.9, 8.1},
		FailureRate:   8.1,
		TargetRate:    5.0,
		Status:        models.ConvergenceRunning,
		Spec:          "spec text",
		Plan:          "plan text",
		Scenarios: []*models.FailureScenario{
			{
				ID:          "scn-1",
				Description: "database migration locks the hot table",
				Priority:    models.PriorityP1,
				Likelihood:  0.4,
				Impact:      0.9,
				Perspective: "operational",
			},
		},
	}
	if err := db.SaveConvergence(stored); err != nil {
		t.Fatalf("SaveConvergence failed: %v", err)
	}

	got, err := db.LoadConvergence("proj-1")
	if err != nil {
		t.Fatalf("LoadConvergence failed: %v", err)
	}
	if got == nil {
		t.Fatal("LoadConvergence returned nil for saved state")
	}
	if got.Iteration != 4 || got.FailureRate != 8.1 || got.Status != models.ConvergenceRunning {
		t.Errorf("loaded state = iter %d rate %.1f status %s", got.Iteration, got.FailureRate, got.Status)
	}
	if len(got.History) != 4 || got.History[3] != 8.1 {
		t.Errorf("history not preserved: %v", got.History)
	}
	if got.Spec != "spec text" || got.Plan != "plan text" {
		t.Errorf("texts not preserved: spec=%q plan=%q", got.Spec, got.Plan)
	}
	if len(got.Scenarios) != 1 || got.Scenarios[0].Priority != models.PriorityP1 {
		t.Errorf("scenarios not preserved: %+v", got.Scenarios)
	}
}

func TestLoadConvergence_MissingReturnsNilNil(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.LoadConvergence("proj-unknown")
	if err != nil {
		t.Fatalf("LoadConvergence should not error for a missing project: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil state for a missing project, got %+v", got)
	}
}

func TestSaveConvergence_UpsertsByProjectID(t *testing.T) {
	db := setupTestDB(t)

	st := &models.ConvergenceState{
		ProjectID:     "proj-1",
		Iteration:     1,
		MaxIterations: 10,
		History:       []float64{40.0},
		FailureRate:   40.0,
		TargetRate:    5.0,
		Status:        models.ConvergenceRunning,
	}
	if err := db.SaveConvergence(st); err != nil {
		t.Fatalf("first SaveConvergence failed: %v", err)
	}

	st.Iteration = 6
	st.History = append(st.History, 22.0, 12.5, 7.3, 5.8, 4.1)
	st.FailureRate = 4.1
	st.Status = models.ConvergenceCompleted
	if err := db.SaveConvergence(st); err != nil {
		t.Fatalf("second SaveConvergence failed: %v", err)
	}

	got, err := db.LoadConvergence("proj-1")
	if err != nil {
		t.Fatalf("LoadConvergence failed: %v", err)
	}
	if got.Status != models.ConvergenceCompleted || got.Iteration != 6 {
		t.Errorf("loaded state = iter %d status %s, want 6/completed", got.Iteration, got.Status)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM convergence").Scan(&count); err != nil {
		t.Fatalf("count convergence rows: %v", err)
	}
	if count != 1 {
		t.Errorf("upsert should keep one row per project, got %d", count)
	}
}
