package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Strikezor/SDMaker/internal/config"
	"github.com/Strikezor/SDMaker/internal/synth"
)

// Server is the HTTP boundary between the synthesis core and its
// front-end collaborator.
type Server struct {
	router   chi.Router
	pipeline *synth.Pipeline
	runs     *synth.Registry
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(pipeline *synth.Pipeline, runs *synth.Registry, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		pipeline: pipeline,
		runs:     runs,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.SDMakerAPIKey, s.log))

		r.Post("/api/runs", s.handleCreateRun)
		r.Get("/api/runs/{runID}", s.handleRunStatus)
		r.Post("/api/runs/{runID}/documents", s.handleUpload)
		r.Post("/api/runs/{runID}/analyze", s.handleAnalyze)
		r.Post("/api/runs/{runID}/answers", s.handleAnswers)
		r.Post("/api/runs/{runID}/synthesize", s.handleSynthesize)
		r.Post("/api/runs/{runID}/refine", s.handleRefine)
		r.Post("/api/runs/{runID}/commit", s.handleCommit)
		r.Get("/api/runs/{runID}/export", s.handleExport)

		r.Get("/api/kb", s.handleKBList)
		r.Get("/api/kb/next-cr", s.handleKBNextCR)
		r.Get("/api/kb/{crNumber}", s.handleKBGet)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
