// File path: internal/api/repo_handler.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	chi "github.com/go-chi/chi/v5"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/index"
	"github.com/codeproof/codeproof/internal/model"
)

var commitRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.orch.Store().ListRepositories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

type indexRequest struct {
	Commit string `json:"commit"`
}

func (s *Server) handleIndexRepo(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")
	var req indexRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !commitRe.MatchString(req.Commit) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("commit must be a 40-hex sha"))
		return
	}
	if _, err := s.orch.Store().EnsureRepository(r.Context(), owner, name, ""); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload := map[string]any{"owner": owner, "name": name, "commit": req.Commit}
	if err := s.sched.Enqueue(TaskIndexRepo, payload); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	common.Logger().Info("api: indexing enqueued", "repo", owner+"/"+name, "commit", req.Commit)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "commit": req.Commit})
}

// runIndexTask is the scheduler handler backing TaskIndexRepo; idempotent on
// (repo, commit).
func (s *Server) runIndexTask(ctx context.Context, payload map[string]any) error {
	owner, _ := payload["owner"].(string)
	name, _ := payload["name"].(string)
	commit, _ := payload["commit"].(string)
	if owner == "" || name == "" || commit == "" {
		return fmt.Errorf("index task payload incomplete: %v", payload)
	}
	_, err := s.orch.Pipeline().Run(ctx, owner, name, commit)
	if errors.Is(err, index.ErrLeaseHeld) {
		common.Logger().Info("api: indexing already in progress", "repo", owner+"/"+name, "commit", commit)
		return nil
	}
	return err
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepo(w, r)
	if !ok {
		return
	}
	filter := index.RouteFilter{
		Method:     r.URL.Query().Get("method"),
		URIPattern: r.URL.Query().Get("uri"),
		Middleware: r.URL.Query().Get("middleware"),
	}
	routes, err := s.orch.Store().ListRoutes(r.Context(), repo.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepo(w, r)
	if !ok {
		return
	}
	migrations, err := s.orch.Store().ListMigrations(r.Context(), repo.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrations": migrations})
}

func (s *Server) loadRepo(w http.ResponseWriter, r *http.Request) (*model.Repository, bool) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")
	repo, err := s.orch.Store().Repository(r.Context(), owner, name)
	if errors.Is(err, index.ErrRepoNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return repo, true
}
