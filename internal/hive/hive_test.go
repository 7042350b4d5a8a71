package hive

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/waggle/internal/config"
	"github.com/ShayCichocki/waggle/pkg/models"
)

func noopWork(ctx context.Context, req *models.DelegationRequest) (string, error) {
	return "done", nil
}

func newTestHive(t *testing.T, work WorkFunc) *Hive {
	t.Helper()
	if work == nil {
		work = noopWork
	}
	h, err := New(Config{
		Table: config.DefaultRoutingTable(),
		Work:  work,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func TestNew_RequiresTable(t *testing.T) {
	_, err := New(Config{Work: noopWork})
	if !errors.Is(err, ErrNoRoutingTable) {
		t.Errorf("expected ErrNoRoutingTable, got %v", err)
	}
}

func TestNew_RequiresWork(t *testing.T) {
	_, err := New(Config{Table: config.DefaultRoutingTable()})
	if !errors.Is(err, ErrNoWorkFunc) {
		t.Errorf("expected ErrNoWorkFunc, got %v", err)
	}
}

func TestNew_RejectsInvalidTable(t *testing.T) {
	table := config.DefaultRoutingTable()
	table.DefaultPrincess = "princess-ghost"

	_, err := New(Config{Table: table, Work: noopWork})
	if err == nil {
		t.Error("expected error for invalid routing table")
	}
}

func TestQueenToPrincess(t *testing.T) {
	h := newTestHive(t, nil)

	tests := []struct {
		category models.Category
		want     string
	}{
		{models.CategoryCoding, "princess-dev"},
		{models.CategoryTesting, "princess-qa"},
		{models.CategoryReview, "princess-qa"},
		{models.CategoryResearch, "princess-research"},
		{models.CategorySecurity, "princess-security"},
		{models.CategoryDeployment, "princess-ops"},
		{models.CategoryPlanning, "princess-research"},
		// Unmapped categories fall back to the default princess.
		{models.Category("interpretive-dance"), "princess-dev"},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := h.QueenToPrincess(tt.category); got != tt.want {
				t.Errorf("QueenToPrincess(%s) = %s, want %s", tt.category, got, tt.want)
			}
		})
	}
}

func TestPrincessToDrone(t *testing.T) {
	h := newTestHive(t, nil)

	t.Run("routed category", func(t *testing.T) {
		if got := h.PrincessToDrone("princess-qa", models.CategoryTesting); got != "drone-tester-1" {
			t.Errorf("expected drone-tester-1, got %s", got)
		}
	})

	t.Run("unrouted category falls back to first drone", func(t *testing.T) {
		if got := h.PrincessToDrone("princess-qa", models.CategoryDeployment); got != "drone-tester-1" {
			t.Errorf("expected first roster drone, got %s", got)
		}
	})

	t.Run("unknown princess falls back to default roster", func(t *testing.T) {
		if got := h.PrincessToDrone("princess-ghost", models.CategoryCoding); got != "drone-coder-1" {
			t.Errorf("expected default princess's coding drone, got %s", got)
		}
	})
}

func TestCreateSession(t *testing.T) {
	h := newTestHive(t, nil)

	sctx := models.SessionContext{
		WorkDir:   "/tmp/project",
		ProjectID: "proj-1",
		TaskID:    "task-1",
		Todos:     []string{"implement"},
	}

	session := h.CreateSession("drone-coder-1", "princess-dev", sctx)

	if session.ID == "" {
		t.Error("session should have an identity")
	}
	if session.DroneID != "drone-coder-1" {
		t.Errorf("expected drone-coder-1, got %s", session.DroneID)
	}
	if session.ParentID != "princess-dev" {
		t.Errorf("expected parent princess-dev, got %s", session.ParentID)
	}
	if len(session.History) != 0 {
		t.Errorf("new session should have empty history, got %d entries", len(session.History))
	}
	if session.Context.TaskID != "task-1" {
		t.Errorf("session context not carried: %+v", session.Context)
	}
	if session.CreatedAt.IsZero() {
		t.Error("session should record creation time")
	}

	other := h.CreateSession("drone-coder-1", "princess-dev", sctx)
	if other.ID == session.ID {
		t.Error("each session should get a fresh identity")
	}
}

func TestState_UnknownPrincessIsIdle(t *testing.T) {
	h := newTestHive(t, nil)

	if got := h.State("princess-dev"); got != models.PrincessIdle {
		t.Errorf("princess with no history should be idle, got %s", got)
	}
	if got := h.BusyCount(); got != 0 {
		t.Errorf("fresh hive should have no busy princesses, got %d", got)
	}
}
