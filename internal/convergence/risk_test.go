package convergence

import (
	"math"
	"testing"

	"github.com/ShayCichocki/waggle/pkg/models"
)

func TestMergeScenarios_DistinctDescriptionsSurvive(t *testing.T) {
	in := []*models.FailureScenario{
		{ID: "1", Description: "Database migration fails", Priority: models.PriorityP1},
		{ID: "2", Description: "API rate limits hit", Priority: models.PriorityP2},
	}

	out := MergeScenarios(in)
	if len(out) != 2 {
		t.Fatalf("MergeScenarios() returned %d scenarios, want 2", len(out))
	}
	if out[0].ID != "1" || out[1].ID != "2" {
		t.Errorf("MergeScenarios() reordered scenarios: got %s, %s", out[0].ID, out[1].ID)
	}
}

func TestMergeScenarios_DuplicateKeepsHigherPriority(t *testing.T) {
	in := []*models.FailureScenario{
		{ID: "low", Description: "Deploy pipeline breaks", Priority: models.PriorityP2},
		{ID: "other", Description: "Vendor API changes", Priority: models.PriorityP3},
		{ID: "high", Description: "  deploy   PIPELINE breaks ", Priority: models.PriorityP0},
	}

	out := MergeScenarios(in)
	if len(out) != 2 {
		t.Fatalf("MergeScenarios() returned %d scenarios, want 2", len(out))
	}
	if out[0].ID != "high" {
		t.Errorf("duplicate slot holds %q, want the higher-priority scenario", out[0].ID)
	}
	if out[0].Priority != models.PriorityP0 {
		t.Errorf("merged priority = %s, want P0", out[0].Priority)
	}
	if out[1].ID != "other" {
		t.Errorf("unrelated scenario displaced: got %q at index 1", out[1].ID)
	}
}

func TestMergeScenarios_DuplicateLowerPriorityIgnored(t *testing.T) {
	in := []*models.FailureScenario{
		{ID: "first", Description: "Cache stampede", Priority: models.PriorityP1},
		{ID: "second", Description: "cache stampede", Priority: models.PriorityP3},
	}

	out := MergeScenarios(in)
	if len(out) != 1 {
		t.Fatalf("MergeScenarios() returned %d scenarios, want 1", len(out))
	}
	if out[0].ID != "first" {
		t.Errorf("kept %q, want the earlier higher-priority scenario", out[0].ID)
	}
}

func TestRiskScore_WeightedSum(t *testing.T) {
	scenarios := []*models.FailureScenario{
		{Priority: models.PriorityP0, Likelihood: 0.8, Impact: 0.9},
	}

	got := RiskScore(scenarios)
	if math.Abs(got-216) > 1e-9 {
		t.Errorf("RiskScore() = %v, want 216", got)
	}
}

func TestRiskScore_Empty(t *testing.T) {
	if got := RiskScore(nil); got != 0 {
		t.Errorf("RiskScore(nil) = %v, want 0", got)
	}
}

func TestFailureRate(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 0},
		{216, 21.6},
		{500, 50},
		{1000, 100},
		{2500, 100},
	}
	for _, tt := range tests {
		got := FailureRate(tt.score)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FailureRate(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}
