// File path: internal/api/qa_handler.go
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/metering"
	"github.com/codeproof/codeproof/internal/model"
)

type qaRequest struct {
	Question string `json:"question"`
}

// handleQA answers a natural-language question against an indexed
// repository: retrieve, phrase, validate. The "insufficient evidence" case
// is a normal 200 response with confidence none.
func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepo(w, r)
	if !ok {
		return
	}
	var req qaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("question required"))
		return
	}
	if repo.Status != model.RepoReady {
		writeError(w, http.StatusConflict, fmt.Errorf("repository is not indexed (status %s)", repo.Status))
		return
	}
	logger := common.Logger()
	logger.Info("api: question received", "repo", repo.FullName(), "question_len", len(question))

	sources, err := s.orch.Retriever().Retrieve(r.Context(), repo, question)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	answer, err := s.orch.Answerer().Answer(r.Context(), question, sources)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	s.orch.Metering().Record(r.Context(), metering.Event{
		Event:        metering.EventQuestion,
		Repo:         repo.FullName(),
		InputTokens:  answer.Usage.InputTokens,
		OutputTokens: answer.Usage.OutputTokens,
		Metadata: map[string]any{
			"confidence_tier": string(answer.ConfidenceTier),
			"source_count":    len(sources),
		},
	})
	writeJSON(w, http.StatusOK, answer)
}
