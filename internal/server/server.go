// Package server exposes the sync pipeline over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kazewatari/anisync/internal/domain"
	"github.com/kazewatari/anisync/internal/syncer"
)

// SyncRunner is the part of the orchestrator the server drives.
type SyncRunner interface {
	Run(ctx context.Context, params syncer.Params) *syncer.Run
	CleanupCache(ctx context.Context) int
}

// Server handles the HTTP API.
type Server struct {
	runner SyncRunner
	apiKey string
	logger zerolog.Logger
}

// New creates a Server. An empty apiKey disables authentication.
func New(runner SyncRunner, apiKey string, logger zerolog.Logger) *Server {
	return &Server{
		runner: runner,
		apiKey: apiKey,
		logger: logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/sync", s.handleSync)
		r.Post("/cache/cleanup", s.handleCacheCleanup)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// requireAPIKey rejects requests whose X-Api-Key header does not match the
// configured key. Comparison is constant-time.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			key := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				s.writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type syncResponse struct {
	Success bool `json:"success"`
	*syncer.Run
	CacheRemoved *int `json:"cache_removed,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	params, cleanup, err := parseSyncQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := s.runner.Run(r.Context(), params)

	resp := syncResponse{Success: run.Succeeded(), Run: run}
	if cleanup && run.Succeeded() {
		removed := s.runner.CleanupCache(r.Context())
		resp.CacheRemoved = &removed
	}

	if !run.Succeeded() {
		s.logger.Error().Err(run.Err).
			Str("season", string(params.Season)).
			Int("year", params.Year).
			Msg("Sync request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   run.Err.Error(),
			"run":     run,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.runner.CleanupCache(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseSyncQuery extracts sync parameters. Season and year default to the
// current season when omitted, but must be given together.
func parseSyncQuery(r *http.Request) (syncer.Params, bool, error) {
	q := r.URL.Query()
	var params syncer.Params

	season, year := domain.CurrentSeason()
	if v := q.Get("season"); v != "" {
		parsed, err := domain.ParseSeason(v)
		if err != nil {
			return params, false, err
		}
		season = parsed
	}
	if v := q.Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return params, false, fmt.Errorf("invalid year: %q", v)
		}
		year = parsed
	}
	if err := domain.ValidateYear(year); err != nil {
		return params, false, err
	}

	params.Season = season
	params.Year = year
	params.ForceRefresh = parseBool(q.Get("force"))

	return params, parseBool(q.Get("cleanup")), nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
