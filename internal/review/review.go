// File path: internal/review/review.go
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeproof/codeproof/internal/analyzer"
	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/llm"
	"github.com/codeproof/codeproof/internal/model"
	"github.com/codeproof/codeproof/internal/source"
)

// Verdict is the review outcome posted back to the pull request.
const (
	VerdictRequestChanges = "request_changes"
	VerdictComment        = "comment"
)

// Report is the assembled result of one pull request review.
type Report struct {
	ID            string             `json:"id"`
	Repo          string             `json:"repo"`
	PRNumber      int                `json:"pr_number"`
	BaseCommit    string             `json:"base_commit"`
	HeadCommit    string             `json:"head_commit"`
	FilesChanged  int                `json:"files_changed"`
	FilesSkipped  []string           `json:"files_skipped,omitempty"`
	CriticalCount int                `json:"critical_count"`
	WarningCount  int                `json:"warning_count"`
	InfoCount     int                `json:"info_count"`
	Findings      []analyzer.Finding `json:"findings"`
	Verdict       string             `json:"verdict"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// Orchestrator reviews pull request diffs with the high-precision analyzer
// and optionally asks the model to phrase critical findings.
type Orchestrator struct {
	provider source.Provider
	analyzer *analyzer.Analyzer
	phraser  llm.Provider
	cfg      config.ReviewConfig
}

// New wires a review orchestrator. The phraser may be nil; explanations are
// enrichment, never a gate.
func New(provider source.Provider, a *analyzer.Analyzer, phraser llm.Provider, cfg config.ReviewConfig) *Orchestrator {
	if cfg.MaxCriticalExplanations <= 0 {
		cfg.MaxCriticalExplanations = 5
	}
	return &Orchestrator{provider: provider, analyzer: a, phraser: phraser, cfg: cfg}
}

// Review analyzes every non-removed file of a diff. File-level detectors run
// even when a patch is absent; line-scoped detectors are restricted to added
// lines.
func (o *Orchestrator) Review(ctx context.Context, repo *model.Repository, prNumber int, diff *source.Diff) (*Report, error) {
	if diff == nil {
		return nil, fmt.Errorf("review: diff required")
	}
	logger := common.Logger()
	report := &Report{
		ID:         uuid.NewString(),
		Repo:       repo.FullName(),
		PRNumber:   prNumber,
		BaseCommit: diff.BaseCommit,
		HeadCommit: diff.HeadCommit,
	}

	var findings []analyzer.Finding
	for _, file := range diff.Files {
		if file.Status == source.StatusRemoved {
			continue
		}
		report.FilesChanged++
		added := addedLines(file.Patch)

		content := ""
		data, err := o.provider.GetFile(ctx, repo.Owner, repo.Name, diff.HeadCommit, file.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// the file itself may still trip the file-level detectors
			logger.Warn("review: could not fetch file, content detectors skipped",
				"path", file.Path, "error", err)
			report.FilesSkipped = append(report.FilesSkipped, file.Path)
		} else {
			content = string(data)
		}
		findings = append(findings, o.analyzer.AnalyzeFile(file.Path, content, added)...)
	}

	report.Findings = findings
	for _, f := range findings {
		switch f.Severity {
		case analyzer.SeverityCritical:
			report.CriticalCount++
		case analyzer.SeverityWarning:
			report.WarningCount++
		case analyzer.SeverityInfo:
			report.InfoCount++
		}
	}

	if report.CriticalCount > 0 {
		report.Verdict = VerdictRequestChanges
		o.explainCriticals(ctx, report)
	} else {
		report.Verdict = VerdictComment
	}
	report.CompletedAt = time.Now().UTC()
	logger.Info("review: completed",
		"repo", report.Repo,
		"pr", prNumber,
		"critical", report.CriticalCount,
		"warning", report.WarningCount,
		"info", report.InfoCount,
		"verdict", report.Verdict,
	)
	return report, nil
}

const explainPrompt = `Explain this security finding in 2 sentences and suggest a fix in 1 sentence.

Finding: %s
File: %s
Code: %s

Be concise and actionable.`

// explainCriticals asks the model to phrase the first few critical findings.
// Failures are logged and ignored; the finding stands on its evidence alone.
func (o *Orchestrator) explainCriticals(ctx context.Context, report *Report) {
	if o.phraser == nil {
		return
	}
	logger := common.Logger()
	explained := 0
	for i := range report.Findings {
		if report.Findings[i].Severity != analyzer.SeverityCritical {
			continue
		}
		if explained == o.cfg.MaxCriticalExplanations {
			break
		}
		finding := &report.Findings[i]
		prompt := fmt.Sprintf(explainPrompt, finding.Evidence.Reason, finding.FilePath, finding.Evidence.Snippet)
		generation, err := o.phraser.Generate(ctx, prompt, 150)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("review: explanation call failed", "path", finding.FilePath, "error", err)
			continue
		}
		finding.Evidence.Explanation = generation.Text
		explained++
	}
}
