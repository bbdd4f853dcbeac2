// File path: internal/review/report.go
package review

import (
	"fmt"
	"strings"

	"github.com/codeproof/codeproof/internal/analyzer"
)

// RenderMarkdown formats a report for posting as a pull request comment.
// Snippets are already redacted by the analyzer.
func (r *Report) RenderMarkdown() string {
	var b strings.Builder
	b.WriteString("**CodeProof Review**\n")

	if len(r.Findings) == 0 {
		b.WriteString("\nNo high-risk issues detected.\n")
		return b.String()
	}

	criticals := r.bySeverity(analyzer.SeverityCritical)
	warnings := r.bySeverity(analyzer.SeverityWarning)
	infos := r.bySeverity(analyzer.SeverityInfo)

	if len(criticals) > 0 {
		fmt.Fprintf(&b, "\n### :red_circle: Critical (%d)\n", len(criticals))
		for _, f := range criticals {
			fmt.Fprintf(&b, "- **%s** in `%s:%d`\n", findingTitle(f), f.FilePath, f.StartLine)
			fmt.Fprintf(&b, "  %s\n", f.Evidence.Reason)
			if f.Evidence.Snippet != "" {
				fmt.Fprintf(&b, "  ```\n  %s\n  ```\n", truncateSnippet(f.Evidence.Snippet))
			}
			if f.Evidence.Explanation != "" {
				fmt.Fprintf(&b, "  **Explanation:** %s\n", f.Evidence.Explanation)
			}
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintf(&b, "\n### :yellow_circle: Warnings (%d)\n", len(warnings))
		for _, f := range warnings {
			fmt.Fprintf(&b, "- %s in `%s:%d`\n", f.Evidence.Reason, f.FilePath, f.StartLine)
		}
	}
	if len(infos) > 0 {
		fmt.Fprintf(&b, "\n### :blue_circle: Info (%d)\n", len(infos))
		fmt.Fprintf(&b, "%d informational items.\n", len(infos))
	}
	return b.String()
}

func (r *Report) bySeverity(severity analyzer.Severity) []analyzer.Finding {
	var out []analyzer.Finding
	for _, f := range r.Findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}

func findingTitle(f analyzer.Finding) string {
	if f.Evidence.PatternName != "" {
		return f.Evidence.PatternName
	}
	return string(f.Category)
}

func truncateSnippet(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200]
}
