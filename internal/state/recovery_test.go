package state

import (
	"testing"

	"github.com/ShayCichocki/waggle/pkg/models"
)

func TestCheckForInterrupted_NoRun(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	got, err := rm.CheckForInterrupted("proj-1")
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a project with no run, got %+v", got)
	}
}

func TestCheckForInterrupted_TerminalRunIsClean(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	run := sampleRun("proj-1")
	run.Status = models.RunCompleted
	if err := db.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := rm.CheckForInterrupted("proj-1")
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if got != nil {
		t.Errorf("completed run should not be reported, got %+v", got)
	}
}

func TestCheckForInterrupted_ReportsNonTerminalRun(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	if err := db.SaveRun(sampleRun("proj-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := rm.CheckForInterrupted("proj-1")
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if got == nil {
		t.Fatal("executing run should be reported as interrupted")
	}
	if got.RunID != "run-1" || got.Status != models.RunExecuting {
		t.Errorf("reported %s/%s, want run-1/executing", got.RunID, got.Status)
	}
}

func TestMarkInterrupted(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	if err := db.SaveRun(sampleRun("proj-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if err := rm.MarkInterrupted("proj-1"); err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}

	run, err := db.LoadRun("proj-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if run.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if run.Error == "" {
		t.Error("interrupted run should carry an explanatory error")
	}
	if run.FinishedAt == nil {
		t.Error("interrupted run should record a finish time")
	}

	// A second check finds nothing left to recover.
	got, err := rm.CheckForInterrupted("proj-1")
	if err != nil {
		t.Fatalf("CheckForInterrupted failed: %v", err)
	}
	if got != nil {
		t.Errorf("marked run should no longer be reported, got %+v", got)
	}
}

func TestMarkInterrupted_NoRun(t *testing.T) {
	db := setupTestDB(t)
	rm := NewRecoveryManager(db)

	if err := rm.MarkInterrupted("proj-ghost"); err == nil {
		t.Error("marking a project with no run should error")
	}
}
