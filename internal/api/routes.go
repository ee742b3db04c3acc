package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts the local API under /api/v1.
//
//	GET  /health    liveness and dependency checks
//	GET  /status    registration and broker state
//	GET  /metrics   runtime and session counters
//	POST /commands  local registration commands
//	POST /palette   palette link status from the UI
//	GET  /journal   recent cloud requests
//	GET  /ws        UI event stream
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.tagRequest,
		s.accessLog,
		s.recoverPanics,
		s.allowOrigins,
		middleware.RequestSize(maxRequestBodySize),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", s.handleHealth)
		v1.Get("/status", s.handleStatus)
		v1.Get("/metrics", s.handleMetrics)
		v1.Get("/journal", s.handleListJournal)
		v1.Get("/ws", s.handleWebSocket)

		v1.Post("/commands", s.handleCommand)
		v1.Post("/palette", s.handlePalette)
	})
	return r
}
