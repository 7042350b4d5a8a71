package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// runQuality executes the quality-scan stage: it delegates to the static
// analyzer and passes iff the analyzer reports compliant.
func (p *Pipeline) runQuality(ctx context.Context, taskID, path string) *models.AuditResult {
	start := time.Now()
	result := &models.AuditResult{
		TaskID: taskID,
		Stage:  models.StageQuality,
		Status: models.AuditFail,
	}

	report, err := p.analyzer.Analyze(ctx, path)
	if err != nil {
		result.Details = fmt.Sprintf("analyzer failed: %v", err)
		result.Elapsed = time.Since(start)
		return result
	}

	result.Score = report.ComplianceScore
	details := fmt.Sprintf("score=%.1f god_objects=%d connascence_issues=%d",
		report.ComplianceScore, report.GodObjectCount, report.ConnascenceIssueCount)
	if len(report.Recommendations) > 0 {
		details += "; " + strings.Join(report.Recommendations, "; ")
	}
	result.Details = details

	if report.Compliant {
		result.Status = models.AuditPass
	}
	result.Elapsed = time.Since(start)
	return result
}
