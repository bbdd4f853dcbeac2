// File path: internal/api/review_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/codeproof/codeproof/internal/metering"
	"github.com/codeproof/codeproof/internal/source"
)

type reviewRequest struct {
	PRNumber int         `json:"pr_number"`
	Diff     *inlineDiff `json:"diff,omitempty"`
}

// inlineDiff lets callers without a hosting integration post a diff
// directly; otherwise the provider is asked for the pull request.
type inlineDiff struct {
	BaseCommit string           `json:"base_commit"`
	HeadCommit string           `json:"head_commit"`
	Files      []inlineDiffFile `json:"files"`
}

type inlineDiffFile struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Patch  string `json:"patch"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepo(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var diff *source.Diff
	switch {
	case req.Diff != nil:
		diff = convertInlineDiff(req.Diff)
	case req.PRNumber > 0:
		fetched, err := s.orch.Provider().GetDiff(r.Context(), repo.Owner, repo.Name, req.PRNumber)
		if err != nil {
			var srcErr *source.Error
			if errors.As(err, &srcErr) && srcErr.Kind == source.ErrNotFound {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadGateway, err)
			return
		}
		diff = fetched
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("pr_number or diff required"))
		return
	}

	report, err := s.orch.Reviewer().Review(r.Context(), repo, req.PRNumber, diff)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	s.orch.Metering().Record(r.Context(), metering.Event{
		Event: metering.EventPRReview,
		Repo:  repo.FullName(),
		Metadata: map[string]any{
			"pr_number":     req.PRNumber,
			"verdict":       report.Verdict,
			"finding_count": len(report.Findings),
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"report":   report,
		"markdown": report.RenderMarkdown(),
	})
}

func convertInlineDiff(in *inlineDiff) *source.Diff {
	diff := &source.Diff{BaseCommit: in.BaseCommit, HeadCommit: in.HeadCommit}
	for _, f := range in.Files {
		diff.Files = append(diff.Files, source.DiffFile{
			Path:   f.Path,
			Status: source.FileStatus(f.Status),
			Patch:  f.Patch,
		})
	}
	return diff
}
