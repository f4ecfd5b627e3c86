// Package server exposes a read-only JSON API over the gold layer: latest
// snapshot, snapshot history, and the insight annotation for a date. It reads
// from the local export store only and never touches the warehouse.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sarbstats/econ-cli/internal/store"
)

// Server serves reporting snapshots and annotations.
type Server struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Server over the given store.
func New(st store.Store) *Server {
	return &Server{
		store: st,
		log:   zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/snapshots", s.handleListSnapshots)
	r.Get("/api/snapshots/latest", s.handleLatestSnapshot)
	r.Get("/api/snapshots/{date}/insight", s.handleInsight)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.LatestSnapshot(r.Context())
	if err != nil {
		s.log.Error("latest snapshot", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no snapshots"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	snaps, err := s.store.ListSnapshots(r.Context(), limit)
	if err != nil {
		s.log.Error("list snapshots", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
		return
	}

	annotation, err := s.store.GetAnnotation(r.Context(), date)
	if err != nil {
		s.log.Error("get annotation", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	if annotation == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no insight for date"})
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
