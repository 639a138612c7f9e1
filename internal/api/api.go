// Package api serves a small read-only JSON view of the daemon's
// state: configured boards and recent run history. It exists so an
// operator (or another tool) can check on a running boardrunner
// without shelling into its SQLite database directly.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/exampleorg/boardrunner/internal/store"
)

// Server provides the JSON status API handlers.
type Server struct {
	store store.Store
}

// NewServer creates a new API server over the given store.
func NewServer(st store.Store) *Server {
	return &Server{store: st}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/boards", s.listBoards)
	mux.HandleFunc("GET /api/v1/runs", s.listRuns)
	mux.HandleFunc("GET /healthz", s.healthz)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/boards
func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.store.ListBoards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// GET /api/v1/runs?repo=owner/repo&ticket_id=7&limit=10
//
// repo is a query parameter rather than a path segment because board
// identifiers are themselves "owner/repo" or "host/owner/repo" and
// would collide with net/http's path-segment matching.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: repo")
		return
	}

	ticketID, err := strconv.Atoi(r.URL.Query().Get("ticket_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid query parameter: ticket_id")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.store.ListRunHistory(r.Context(), repo, ticketID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
