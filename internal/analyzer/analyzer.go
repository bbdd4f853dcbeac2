// File path: internal/analyzer/analyzer.go
package analyzer

import (
	"fmt"
	"path"
	"strings"

	"github.com/codeproof/codeproof/internal/common/telemetry"
)

// Confidence marks how a finding was identified: an exact token shape, an
// AST/position-derived rule, or a heuristic pattern.
const (
	ConfidenceExactMatch = "exact_match"
	ConfidenceStructural = "structural"
	ConfidencePattern    = "pattern"
)

// Evidence is the verifiable payload of a finding. Snippet and Match are
// redacted before they leave the analyzer; the raw secret never escapes.
type Evidence struct {
	Snippet      string `json:"snippet"`
	PatternName  string `json:"pattern_name,omitempty"`
	Match        string `json:"match,omitempty"`
	Reason       string `json:"reason"`
	Confidence   string `json:"confidence"`
	Operation    string `json:"operation,omitempty"`
	Target       string `json:"target,omitempty"`
	Middleware   string `json:"middleware,omitempty"`
	Explanation  string `json:"explanation,omitempty"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// Finding is one high-precision result with its evidence tuple.
type Finding struct {
	Severity  Severity `json:"severity"`
	Category  Category `json:"category"`
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Evidence  Evidence `json:"evidence"`
}

const snippetMaxChars = 500

// Analyzer applies the six detectors to file contents and diffs.
type Analyzer struct {
	skipPaths []string
}

// Option mutates analyzer construction.
type Option func(*Analyzer)

// WithSkipPaths replaces the default secret-scan skiplist.
func WithSkipPaths(paths []string) Option {
	return func(a *Analyzer) {
		if len(paths) > 0 {
			a.skipPaths = append([]string(nil), paths...)
		}
	}
}

// New constructs an analyzer with the default skiplist.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{skipPaths: defaultSkipPaths}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// AnalyzeFile runs every detector over one file. addedLines, when non-nil,
// restricts line-scoped detectors to those line numbers; the file-level
// detectors (env_leaked, dependency_changed) always fire.
func (a *Analyzer) AnalyzeFile(filePath, content string, addedLines map[int]bool) []Finding {
	var findings []Finding

	findings = append(findings, a.checkDangerousFile(filePath)...)
	findings = append(findings, a.checkLockfile(filePath)...)

	if content != "" {
		findings = append(findings, a.checkSecretPatterns(filePath, content, addedLines)...)
		if isMigrationPath(filePath) {
			findings = append(findings, a.checkDestructiveMigrations(filePath, content, addedLines)...)
		}
		if isRoutePath(filePath) {
			findings = append(findings, a.checkAuthMiddlewareRemoval(filePath, content, addedLines)...)
		}
	}

	for _, f := range findings {
		telemetry.RecordFinding(string(f.Category))
	}
	return findings
}

func (a *Analyzer) checkDangerousFile(filePath string) []Finding {
	base := path.Base(filePath)
	var findings []Finding
	for _, df := range dangerousFiles {
		if !df.re.MatchString(base) {
			continue
		}
		findings = append(findings, Finding{
			Severity:  SeverityCritical,
			Category:  df.category,
			FilePath:  filePath,
			StartLine: 1,
			EndLine:   1,
			Evidence: Evidence{
				Snippet:    filePath,
				Reason:     df.name + " - this file should not be committed",
				Confidence: ConfidenceExactMatch,
			},
		})
	}
	return findings
}

func (a *Analyzer) checkLockfile(filePath string) []Finding {
	if _, ok := lockfiles[path.Base(filePath)]; !ok {
		return nil
	}
	return []Finding{{
		Severity:  SeverityInfo,
		Category:  CategoryDependencyChanged,
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   1,
		Evidence: Evidence{
			Snippet:    filePath + " was modified",
			Reason:     "Dependency lockfile changed - review for security implications",
			Confidence: ConfidenceExactMatch,
		},
	}}
}

func (a *Analyzer) checkSecretPatterns(filePath, content string, addedLines map[int]bool) []Finding {
	if a.shouldSkip(filePath) {
		return nil
	}
	var findings []Finding
	for lineNum, line := range splitLines(content) {
		number := lineNum + 1
		if addedLines != nil && !addedLines[number] {
			continue
		}
		for _, pattern := range exactPatterns {
			loc := pattern.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			match := line[loc[0]:loc[1]]
			findings = append(findings, Finding{
				Severity:  pattern.severity,
				Category:  pattern.category,
				FilePath:  filePath,
				StartLine: number,
				EndLine:   number,
				Evidence: Evidence{
					Snippet:     truncate(redactLine(line, loc[0], loc[1]), snippetMaxChars),
					PatternName: pattern.name,
					Match:       redactSecret(match),
					Reason:      pattern.name + " detected - this should not be in code",
					Confidence:  ConfidenceExactMatch,
				},
			})
		}
	}
	return findings
}

func (a *Analyzer) checkDestructiveMigrations(filePath, content string, addedLines map[int]bool) []Finding {
	var findings []Finding
	for lineNum, line := range splitLines(content) {
		number := lineNum + 1
		if addedLines != nil && !addedLines[number] {
			continue
		}
		for _, pattern := range destructiveMigrationPatterns {
			m := pattern.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			target := ""
			if pattern.target > 0 && pattern.target < len(m) {
				target = m[pattern.target]
			}
			reason := pattern.name
			if target != "" {
				reason += fmt.Sprintf(" on '%s'", target)
			}
			reason += " - this will cause data loss"
			findings = append(findings, Finding{
				Severity:  SeverityCritical,
				Category:  CategoryMigrationDestructive,
				FilePath:  filePath,
				StartLine: number,
				EndLine:   number,
				Evidence: Evidence{
					Snippet:    truncate(strings.TrimSpace(line), snippetMaxChars),
					Reason:     reason,
					Confidence: ConfidenceExactMatch,
					Operation:  pattern.name,
					Target:     target,
				},
			})
		}
	}
	return findings
}

func (a *Analyzer) checkAuthMiddlewareRemoval(filePath, content string, addedLines map[int]bool) []Finding {
	var findings []Finding
	for lineNum, line := range splitLines(content) {
		number := lineNum + 1
		if addedLines != nil && !addedLines[number] {
			continue
		}
		m := authMiddlewareRemovalRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		middleware := m[1]
		findings = append(findings, Finding{
			Severity:  SeverityCritical,
			Category:  CategoryAuthMiddlewareRemoved,
			FilePath:  filePath,
			StartLine: number,
			EndLine:   number,
			Evidence: Evidence{
				Snippet:    truncate(strings.TrimSpace(line), snippetMaxChars),
				Reason:     fmt.Sprintf("'%s' middleware is being removed - this may expose the route to unauthorized access", middleware),
				Confidence: ConfidenceStructural,
				Middleware: middleware,
			},
		})
	}
	return findings
}

func (a *Analyzer) shouldSkip(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, fragment := range a.skipPaths {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func isMigrationPath(filePath string) bool {
	return strings.Contains(strings.ToLower(filePath), "migrations/") && strings.HasSuffix(filePath, ".php")
}

func isRoutePath(filePath string) bool {
	return strings.Contains(strings.ToLower(filePath), "routes/") && strings.HasSuffix(filePath, ".php")
}

func splitLines(content string) []string {
	return strings.Split(content, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
