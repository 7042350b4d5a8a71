package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultMaxFileLines is the line count above which a file is flagged
	// as a god object.
	DefaultMaxFileLines = 500
	// DefaultMaxFuncsPerFile is the function count above which a file is
	// flagged as a god object.
	DefaultMaxFuncsPerFile = 20
	// DefaultDuplicateThreshold is the occurrence count at which a repeated
	// literal becomes a connascence issue.
	DefaultDuplicateThreshold = 3
	// DefaultComplianceThreshold is the minimum score that still passes.
	DefaultComplianceThreshold = 70.0
)

var (
	// funcDeclRe matches function declarations across the languages the
	// sandbox runs.
	funcDeclRe = regexp.MustCompile(`^\s*(func |def |function |fn )`)
	// stringLiteralRe matches quoted literals long enough to be meaningful.
	stringLiteralRe = regexp.MustCompile(`"([^"\\]{4,})"`)
	// numberLiteralRe matches magic numbers of two or more digits.
	numberLiteralRe = regexp.MustCompile(`\b\d{2,}\b`)
)

// HeuristicAnalyzer is a filesystem scanner that approximates a structural
// quality review: oversized files and heavily repeated literals.
type HeuristicAnalyzer struct {
	// MaxFileLines flags files longer than this as god objects.
	MaxFileLines int
	// MaxFuncsPerFile flags files with more declarations than this.
	MaxFuncsPerFile int
	// DuplicateThreshold is the repeat count that makes a literal an issue.
	DuplicateThreshold int
	// ComplianceThreshold is the minimum passing score.
	ComplianceThreshold float64
}

// NewHeuristic creates a HeuristicAnalyzer with default thresholds.
func NewHeuristic() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{
		MaxFileLines:        DefaultMaxFileLines,
		MaxFuncsPerFile:     DefaultMaxFuncsPerFile,
		DuplicateThreshold:  DefaultDuplicateThreshold,
		ComplianceThreshold: DefaultComplianceThreshold,
	}
}

// Analyze scans a file or directory tree and produces a Report.
// Each god object costs 10 score points and each connascence issue 2,
// down from 100; Compliant means the score met the threshold.
func (a *HeuristicAnalyzer) Analyze(ctx context.Context, path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}

	root := path
	var files []string
	if info.IsDir() {
		files, err = collectSourceFiles(path)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
	} else {
		root = filepath.Dir(path)
		files = []string{path}
	}

	report := &Report{}
	literalCounts := make(map[string]int)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")

		funcs := 0
		for _, line := range lines {
			if funcDeclRe.MatchString(line) {
				funcs++
			}
			for _, match := range stringLiteralRe.FindAllStringSubmatch(line, -1) {
				literalCounts[match[1]]++
			}
			for _, match := range numberLiteralRe.FindAllString(line, -1) {
				literalCounts[match]++
			}
		}

		if len(lines) > a.MaxFileLines || funcs > a.MaxFuncsPerFile {
			report.GodObjectCount++
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("split %s: %d lines, %d declarations", displayPath(root, file), len(lines), funcs))
		}
	}

	// Sorted so repeated runs report issues in a stable order.
	var duplicated []string
	for literal, count := range literalCounts {
		if count >= a.DuplicateThreshold {
			duplicated = append(duplicated, literal)
		}
	}
	sort.Strings(duplicated)

	report.ConnascenceIssueCount = len(duplicated)
	for _, literal := range duplicated {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("extract a constant for %q (repeated %d times)", literal, literalCounts[literal]))
	}

	score := 100.0 - 10.0*float64(report.GodObjectCount) - 2.0*float64(report.ConnascenceIssueCount)
	if score < 0 {
		score = 0
	}
	report.ComplianceScore = score
	report.Compliant = score >= a.ComplianceThreshold

	return report, nil
}

// collectSourceFiles walks a tree gathering code files, skipping VCS and
// dependency directories.
func collectSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if info.IsDir() {
			name := info.Name()
			if name == ".git" || name == "node_modules" || name == "vendor" || name == ".waggle" {
				return filepath.SkipDir
			}
			return nil
		}
		if isCodeFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// isCodeFile checks if a file is a code file based on extension.
func isCodeFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go", ".js", ".ts", ".jsx", ".tsx", ".py", ".rb", ".java",
		".c", ".cpp", ".h", ".hpp", ".rs", ".php", ".swift", ".kt", ".sh":
		return true
	default:
		return false
	}
}

// displayPath prints file findings relative to the analyzed root when possible.
func displayPath(root, file string) string {
	if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return file
}

// Verify HeuristicAnalyzer implements Analyzer at compile time.
var _ Analyzer = (*HeuristicAnalyzer)(nil)
