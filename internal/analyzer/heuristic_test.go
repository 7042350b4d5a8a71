package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestHeuristicAnalyzer_CleanTree(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package main\n\nfunc main() {\n}\n")
	writeSource(t, dir, "util.go", "package main\n\nfunc helper() int {\n\treturn 7\n}\n")

	report, err := NewHeuristic().Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !report.Compliant {
		t.Errorf("clean tree should be compliant: %+v", report)
	}
	if report.ComplianceScore != 100 {
		t.Errorf("expected score 100, got %v", report.ComplianceScore)
	}
	if report.GodObjectCount != 0 {
		t.Errorf("expected no god objects, got %d", report.GodObjectCount)
	}
	if report.ConnascenceIssueCount != 0 {
		t.Errorf("expected no connascence issues, got %d", report.ConnascenceIssueCount)
	}
}

func TestHeuristicAnalyzer_GodObjectByLineCount(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("package main\n")
	for i := 0; i < 600; i++ {
		sb.WriteString("// filler\n")
	}
	writeSource(t, dir, "huge.go", sb.String())

	report, err := NewHeuristic().Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if report.GodObjectCount != 1 {
		t.Fatalf("expected 1 god object, got %d", report.GodObjectCount)
	}
	if len(report.Recommendations) == 0 || !strings.Contains(report.Recommendations[0], "huge.go") {
		t.Errorf("recommendation should name the file: %v", report.Recommendations)
	}
	if report.ComplianceScore != 90 {
		t.Errorf("one god object should cost 10 points, got %v", report.ComplianceScore)
	}
}

func TestHeuristicAnalyzer_GodObjectByDeclarationCount(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("package main\n")
	for i := 0; i < 25; i++ {
		sb.WriteString("func x() {}\n")
	}
	writeSource(t, dir, "busy.go", sb.String())

	report, err := NewHeuristic().Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if report.GodObjectCount != 1 {
		t.Errorf("expected 1 god object for 25 declarations, got %d", report.GodObjectCount)
	}
}

func TestHeuristicAnalyzer_RepeatedLiterals(t *testing.T) {
	dir := t.TempDir()
	content := "package main\n\nvar a = \"postgres://db-host\"\n"
	writeSource(t, dir, "a.go", content)
	writeSource(t, dir, "b.go", content)
	writeSource(t, dir, "c.go", content)

	report, err := NewHeuristic().Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if report.ConnascenceIssueCount == 0 {
		t.Fatal("literal repeated three times should be a connascence issue")
	}

	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "postgres://db-host") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendation should name the literal: %v", report.Recommendations)
	}
}

func TestHeuristicAnalyzer_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "single.py", "def main():\n    return 1\n")

	report, err := NewHeuristic().Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !report.Compliant {
		t.Errorf("small single file should be compliant: %+v", report)
	}
}

func TestHeuristicAnalyzer_MissingPath(t *testing.T) {
	_, err := NewHeuristic().Analyze(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestHeuristicAnalyzer_SkipsVendoredCode(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "node_modules")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	var sb strings.Builder
	for i := 0; i < 700; i++ {
		sb.WriteString("// vendored\n")
	}
	writeSource(t, sub, "dep.js", sb.String())
	writeSource(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	report, err := NewHeuristic().Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.GodObjectCount != 0 {
		t.Errorf("vendored code should be skipped, got %d god objects", report.GodObjectCount)
	}
}
