// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/data/orchestrator"
	"github.com/codeproof/codeproof/internal/scheduler"
)

// TaskIndexRepo is the scheduler task name for indexing runs.
const TaskIndexRepo = "index_repo"

// Server is the thin HTTP shell over the trust pipeline. Authentication,
// dashboards and webhook intake live outside the core.
type Server struct {
	router chi.Router
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Inline
}

// NewServer wires routes over an orchestrator and a scheduler. The indexing
// task handler is registered here so API-triggered runs and externally
// enqueued runs share one code path.
func NewServer(orch *orchestrator.Orchestrator, sched *scheduler.Inline) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if sched == nil {
		sched = scheduler.NewInline(2, 64)
	}
	s := &Server{router: chi.NewRouter(), orch: orch, sched: sched}
	sched.Register(TaskIndexRepo, s.runIndexTask)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/logs", s.handleLogs)
	s.router.Method(http.MethodGet, "/debug/vars", expvar.Handler())

	s.router.Route("/v1/repos", func(r chi.Router) {
		r.Get("/", s.handleListRepos)
		r.Route("/{owner}/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetRepo)
			r.Post("/index", s.handleIndexRepo)
			r.Get("/routes", s.handleListRoutes)
			r.Get("/migrations", s.handleListMigrations)
			r.Post("/qa", s.handleQA)
			r.Post("/reviews", s.handleReview)
		})
	})
}

// Handler exposes the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"vector_available": s.orch.Vectors() != nil && s.orch.Vectors().Available(),
		"llm_provider":     s.orch.LLM().Name(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.Logger().Error("api: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
