package audit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

const (
	// DefaultTheaterThreshold is the weighted score at or above which the
	// theater stage fails.
	DefaultTheaterThreshold = 10.0
	// MinMockOccurrences is the count below which mock/stub/fake tokens are
	// ignored; a couple of test doubles are normal, a pile of them is theater.
	MinMockOccurrences = 3

	// Severity weights per finding category.
	weightHigh   = 5.0
	weightMedium = 2.0
	weightLow    = 1.0
)

var (
	// todoRe matches deferred-work markers.
	todoRe = regexp.MustCompile(`(?i)\b(todo|fixme|hack|xxx)\b`)
	// notImplementedRe matches explicit not-implemented markers.
	notImplementedRe = regexp.MustCompile(`(?i)(not\s+implemented|notimplementederror|unimplemented|raise\s+notimplemented)`)
	// barePassRe matches Python bodies that consist of a lone pass.
	barePassRe = regexp.MustCompile(`(?m)^\s*pass\s*$`)
	// mockRe matches mock/stub/fake tokens.
	mockRe = regexp.MustCompile(`(?i)\b(mock|stub|fake)\w*`)
	// placeholderRe matches placeholder text left in the implementation.
	placeholderRe = regexp.MustCompile(`(?i)\b(placeholder|dummy)\b`)
)

// theaterScan is the outcome of one theater detection pass.
type theaterScan struct {
	// TodoCount is the number of deferred-work markers.
	TodoCount int
	// NotImplementedCount is the number of not-implemented markers,
	// including bare pass-only bodies.
	NotImplementedCount int
	// MockCount is the number of mock/stub/fake tokens.
	MockCount int
	// PlaceholderCount is the number of placeholder markers.
	PlaceholderCount int
	// Score is the weighted total.
	Score float64
}

// scanTheater counts incomplete-work markers in source text and computes
// the weighted score. Not-implemented markers weigh 5, as do mock tokens
// once they clear MinMockOccurrences; todo markers weigh 2 and placeholder
// text weighs 1, each multiplied by its occurrence count.
func scanTheater(code string) theaterScan {
	scan := theaterScan{
		TodoCount:           len(todoRe.FindAllString(code, -1)),
		NotImplementedCount: len(notImplementedRe.FindAllString(code, -1)) + len(barePassRe.FindAllString(code, -1)),
		MockCount:           len(mockRe.FindAllString(code, -1)),
		PlaceholderCount:    len(placeholderRe.FindAllString(code, -1)),
	}

	scan.Score = weightHigh*float64(scan.NotImplementedCount) +
		weightMedium*float64(scan.TodoCount) +
		weightLow*float64(scan.PlaceholderCount)
	if scan.MockCount >= MinMockOccurrences {
		scan.Score += weightHigh * float64(scan.MockCount)
	}

	return scan
}

// details renders the scan findings for the audit record.
func (s theaterScan) details() string {
	var parts []string
	if s.NotImplementedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d not-implemented markers", s.NotImplementedCount))
	}
	if s.MockCount > 0 {
		parts = append(parts, fmt.Sprintf("%d mock/stub/fake tokens", s.MockCount))
	}
	if s.TodoCount > 0 {
		parts = append(parts, fmt.Sprintf("%d todo markers", s.TodoCount))
	}
	if s.PlaceholderCount > 0 {
		parts = append(parts, fmt.Sprintf("%d placeholder markers", s.PlaceholderCount))
	}
	if len(parts) == 0 {
		return "no incomplete-work markers found"
	}
	return strings.Join(parts, ", ")
}

// runTheater executes the theater detection stage for one task.
func (p *Pipeline) runTheater(taskID, code string) *models.AuditResult {
	start := time.Now()
	scan := scanTheater(code)

	result := &models.AuditResult{
		TaskID:  taskID,
		Stage:   models.StageTheater,
		Score:   scan.Score,
		Details: scan.details(),
	}
	if scan.Score < p.theaterThreshold {
		result.Status = models.AuditPass
	} else {
		result.Status = models.AuditFail
	}
	result.Elapsed = time.Since(start)
	return result
}
