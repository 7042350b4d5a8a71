package audit

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ShayCichocki/waggle/internal/sandbox"
	"github.com/ShayCichocki/waggle/pkg/models"
)

var (
	// passCountRe matches numeric pass counts ("3 passed", "12 pass").
	passCountRe = regexp.MustCompile(`(?i)(\d+)\s+pass(ed|ing)?\b`)
	// failCountRe matches numeric fail counts ("2 failed", "1 fail").
	failCountRe = regexp.MustCompile(`(?i)(\d+)\s+fail(ed|ing|ures?)?\b`)
	// passTokenRe matches bare PASS markers emitted one per test.
	passTokenRe = regexp.MustCompile(`\bPASS\b|\bok\b|✓`)
	// failTokenRe matches bare FAIL markers.
	failTokenRe = regexp.MustCompile(`\bFAIL\b|✗`)
)

// detectLanguage guesses the source language from its text.
func detectLanguage(code string) string {
	switch {
	case strings.HasPrefix(code, "#!"):
		first := code
		if idx := strings.IndexByte(code, '\n'); idx >= 0 {
			first = code[:idx]
		}
		if strings.Contains(first, "python") {
			return "python"
		}
		if strings.Contains(first, "node") {
			return "javascript"
		}
		return "shell"
	case strings.Contains(code, "package main") || strings.Contains(code, "func "):
		return "go"
	case strings.Contains(code, "def ") || strings.Contains(code, "import ") && strings.Contains(code, ":"):
		return "python"
	case strings.Contains(code, "function ") || strings.Contains(code, "console.") || strings.Contains(code, "=>"):
		return "javascript"
	case strings.Contains(code, "echo ") || strings.Contains(code, "#!/bin"):
		return "shell"
	default:
		return "python"
	}
}

// parseTestCounts extracts pass/fail counts from combined test output.
// Numeric summaries win; bare PASS/FAIL tokens are counted when no numeric
// summary is present.
func parseTestCounts(output string) (passed, failed int) {
	for _, match := range passCountRe.FindAllStringSubmatch(output, -1) {
		var n int
		fmt.Sscanf(match[1], "%d", &n)
		passed += n
	}
	for _, match := range failCountRe.FindAllStringSubmatch(output, -1) {
		var n int
		fmt.Sscanf(match[1], "%d", &n)
		failed += n
	}

	if passed == 0 && failed == 0 {
		passed = len(passTokenRe.FindAllString(output, -1))
		failed = len(failTokenRe.FindAllString(output, -1))
	}
	return passed, failed
}

// runProduction executes the production-testing stage: it runs the task's
// code in the sandbox behind the circuit breaker and parses the output for
// test results. The stage passes iff execution succeeded and at least one
// test passed.
func (p *Pipeline) runProduction(ctx context.Context, taskID, code string) *models.AuditResult {
	start := time.Now()
	result := &models.AuditResult{
		TaskID: taskID,
		Stage:  models.StageProduction,
		Status: models.AuditFail,
	}

	if err := p.breaker.Allow(); err != nil {
		result.Details = err.Error()
		result.Elapsed = time.Since(start)
		return result
	}

	execResult, err := p.sandbox.Execute(ctx, code, sandbox.ExecOptions{
		Language:    detectLanguage(code),
		Timeout:     p.sandboxTimeout,
		MemoryBytes: p.sandboxMemory,
	})
	if err != nil {
		p.breaker.RecordFailure()
		result.Details = fmt.Sprintf("sandbox execution failed: %v", err)
		result.Elapsed = time.Since(start)
		return result
	}
	p.breaker.RecordSuccess()

	passed, failed := parseTestCounts(execResult.Stdout + "\n" + execResult.Stderr)
	result.Score = float64(passed)
	result.Details = fmt.Sprintf("exit=%d passed=%d failed=%d", execResult.ExitCode, passed, failed)

	if execResult.Success && passed >= 1 {
		result.Status = models.AuditPass
	}
	result.Elapsed = time.Since(start)
	return result
}
