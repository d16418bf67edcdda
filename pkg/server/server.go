// Package server exposes the catalog pipeline over HTTP: the task endpoints
// the dispatcher replays, the manage surface for operators, and the small
// public API (search, preview, webhooks).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/webcomponents/catalog/pkg/ingest"
	"github.com/webcomponents/catalog/pkg/task"
)

// Server is the catalog HTTP server.
type Server struct {
	service    *ingest.Service
	guard      *task.Guard
	httpServer *http.Server
}

// Config holds the server configuration.
type Config struct {
	Addr    string
	Service *ingest.Service
}

// NewServer builds the route table around the pipeline service.
func NewServer(cfg Config) *Server {
	s := &Server{
		service: cfg.Service,
		guard:   task.NewGuard(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route table, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Guard exposes the admission guard so the dispatcher and tests can mint
// tokens.
func (s *Server) Guard() *task.Guard {
	return s.guard
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mutation := task.Options{Mutation: true}
	open := task.Options{}

	// Task endpoints. Every handler is an idempotent GET the dispatcher can
	// redeliver.
	mux.HandleFunc("GET /task/update/{owner}/{repo}", s.guard.Protect(mutation, s.handleUpdateLibrary))
	mux.HandleFunc("GET /task/ingest/{scope}/{package}", s.guard.Protect(mutation, s.handleIngestLibrary))
	mux.HandleFunc("GET /task/ingest/{scope}/{package}/{version}", s.guard.Protect(mutation, s.handleIngestVersion))
	mux.HandleFunc("GET /task/delete/{scope}/{package}/{version}", s.guard.Protect(mutation, s.handleDeleteVersion))
	mux.HandleFunc("GET /task/ensure/{owner}/{repo}", s.guard.Protect(mutation, s.handleEnsureLibrary))
	mux.HandleFunc("GET /task/update-indexes/{owner}/{repo}", s.guard.Protect(mutation, s.handleUpdateIndexes))
	mux.HandleFunc("GET /task/migrate/{owner}/{repo}/{scope}/{package}", s.guard.Protect(mutation, s.handleMigrateLibrary))
	mux.HandleFunc("GET /task/analyze/{scope}/{package}", s.guard.Protect(mutation, s.handleAnalyzeLibrary))
	mux.HandleFunc("GET /task/analyze/{scope}/{package}/latest", s.guard.Protect(mutation, s.handleAnalyzeLibraryLatest))
	mux.HandleFunc("GET /task/analysis/{scope}/{package}/{version}", s.guard.Protect(mutation, s.handleRequestAnalysis))
	mux.HandleFunc("GET /task/ingest-author/{name}", s.guard.Protect(mutation, s.handleIngestAuthor))
	mux.HandleFunc("GET /task/update-author/{name}", s.guard.Protect(mutation, s.handleUpdateAuthor))
	mux.HandleFunc("GET /task/ensure-author/{name}", s.guard.Protect(mutation, s.handleEnsureAuthor))
	mux.HandleFunc("GET /task/ingest-preview/{owner}/{repo}", s.guard.Protect(mutation, s.handleIngestPreview))
	mux.HandleFunc("GET /task/ingest-webhook/{owner}/{repo}", s.guard.Protect(mutation, s.handleIngestWebhook))

	// Analysis replies arrive by push.
	mux.HandleFunc("POST /_ah/push-handlers/analysis", s.guard.Protect(open, s.handleAnalysisPush))

	// Manage surface.
	mux.HandleFunc("GET /manage/token", s.guard.Protect(open, s.handleToken))
	mux.HandleFunc("GET /manage/github", s.guard.Protect(open, s.handleGithubStatus))
	mux.HandleFunc("GET /manage/add/{owner}/{repo}", s.guard.Protect(mutation, s.handleAddLibrary))
	mux.HandleFunc("GET /manage/update-all", s.guard.Protect(mutation, s.handleUpdateAll))
	mux.HandleFunc("GET /manage/analyze-all", s.guard.Protect(mutation, s.handleAnalyzeAll))
	mux.HandleFunc("GET /manage/index-all", s.guard.Protect(mutation, s.handleIndexAll))
	mux.HandleFunc("GET /manage/build-sitemaps", s.guard.Protect(mutation, s.handleBuildSitemaps))
	mux.HandleFunc("GET /manage/inspect-index/{owner}/{repo}", s.guard.Protect(open, s.handleInspectIndex))
	mux.HandleFunc("GET /manage/search", s.guard.Protect(open, s.handleSearch))
	mux.HandleFunc("GET /manage/delete/{scope}/{package}", s.guard.Protect(mutation, s.handleDeleteLibrary))
	mux.HandleFunc("GET /manage/delete_everything/yes_i_know_what_i_am_doing", s.guard.Protect(mutation, s.handleDeleteEverything))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Infof("starting catalog server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Infof("shutting down catalog server")
	return s.httpServer.Shutdown(ctx)
}
