package convergence

import (
	"math"
	"regexp"
	"strings"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// MergeScenarios de-duplicates scenarios on normalized description text.
// When two perspectives propose the same failure, the higher-priority copy
// survives. Input order is preserved for the survivors.
func MergeScenarios(scenarios []*models.FailureScenario) []*models.FailureScenario {
	seen := make(map[string]int)
	merged := make([]*models.FailureScenario, 0, len(scenarios))

	for _, s := range scenarios {
		key := normalizeDescription(s.Description)
		if idx, ok := seen[key]; ok {
			if s.Priority.HigherThan(merged[idx].Priority) {
				merged[idx] = s
			}
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, s)
	}
	return merged
}

// RiskScore sums the weighted risk of every scenario.
func RiskScore(scenarios []*models.FailureScenario) float64 {
	total := 0.0
	for _, s := range scenarios {
		total += s.RiskScore()
	}
	return total
}

// FailureRate normalizes a risk score to a 0-100 failure-rate estimate.
func FailureRate(riskScore float64) float64 {
	return math.Min(100, riskScore/1000*100)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeDescription lowers, trims, and collapses whitespace so textual
// duplicates merge regardless of formatting.
func normalizeDescription(desc string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(desc)), " ")
}
