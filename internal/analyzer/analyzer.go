// Package analyzer provides the static-analysis boundary for the audit
// pipeline's quality stage. The pipeline consumes the Report contract only;
// the bundled heuristic scanner can be swapped for an external tool.
package analyzer

import "context"

// Report is the outcome of one static analysis run.
type Report struct {
	// Compliant is true when the source meets the quality bar.
	Compliant bool `json:"compliant"`
	// ComplianceScore is the overall quality score in [0,100].
	ComplianceScore float64 `json:"compliance_score"`
	// GodObjectCount is the number of oversized files or types found.
	GodObjectCount int `json:"god_object_count"`
	// ConnascenceIssueCount is the number of repeated-literal couplings found.
	ConnascenceIssueCount int `json:"connascence_issue_count"`
	// Recommendations lists suggested fixes, one per finding.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Analyzer inspects source at a path and reports on its quality.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*Report, error)
}
