package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTask_PhaseIndex(t *testing.T) {
	task := &Task{ID: "t1"}
	if got := task.PhaseIndex(); got != -1 {
		t.Errorf("unassigned PhaseIndex() = %d, want -1", got)
	}

	idx := 2
	task.Phase = &idx
	if got := task.PhaseIndex(); got != 2 {
		t.Errorf("PhaseIndex() = %d, want 2", got)
	}
}

func TestCategory_Valid(t *testing.T) {
	valid := []Category{
		CategoryCoding, CategoryTesting, CategoryReview, CategoryResearch,
		CategorySecurity, CategoryDeployment, CategoryPlanning,
	}
	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("Category(%q).Valid() = false, want true", c)
		}
	}
	if Category("jazz").Valid() {
		t.Error("Category(\"jazz\").Valid() = true, want false")
	}
}
