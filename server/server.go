// Package server exposes the HTTP API: upload, status polling, results,
// streaming, samples, moment search and report export.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/config"
	"coherence/core"
	"coherence/processors"
	"coherence/storage"
)

type Server struct {
	cfg      *config.Config
	jobs     *storage.JobStore
	results  storage.ResultStore
	moments  storage.MomentIndex
	provider analysis.Provider
	runner   *processors.Runner
	auth     Authenticator
	logger   *logrus.Logger
}

func NewServer(cfg *config.Config, jobs *storage.JobStore, results storage.ResultStore, moments storage.MomentIndex, provider analysis.Provider, runner *processors.Runner, logger *logrus.Logger) *Server {
	return &Server{
		cfg:      cfg,
		jobs:     jobs,
		results:  results,
		moments:  moments,
		provider: provider,
		runner:   runner,
		auth:     NewAuthenticator(cfg),
		logger:   logger,
	}
}

// Handler builds the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/videos/upload", s.handleUpload)
	mux.HandleFunc("GET /api/videos/samples", s.handleSamplesList)
	mux.HandleFunc("GET /api/videos/samples/{id}", s.handleSample)
	// The samples routes above are more specific and win the overlap.
	mux.HandleFunc("GET /api/videos/{id}/{action}", s.handleVideoAction)
	mux.HandleFunc("POST /api/videos/{id}/report", s.handleReport)
	mux.HandleFunc("POST /api/videos/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withMiddleware(mux)
}

func (s *Server) handleVideoAction(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("action") {
	case "status":
		s.handleStatus(w, r)
	case "results":
		s.handleResults(w, r)
	case "stream":
		s.handleStream(w, r)
	default:
		core.WriteError(w, http.StatusNotFound, &core.APIError{
			Message: "Not found.", Code: core.CodeNotFound,
		})
	}
}
