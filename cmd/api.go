package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/alert"
	"github.com/sells-group/news-intel/internal/cache"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/monitoring"
	"github.com/sells-group/news-intel/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultDigestAge = 24 * time.Hour
)

// apiServer serves the read side of the pipeline over HTTP.
type apiServer struct {
	store      store.Store
	dispatcher *alert.Dispatcher
	cache      *cache.Cache
	monitor    *monitoring.Monitor
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(s *apiServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/articles", s.handleArticles)
	r.Get("/leads", s.handleLeads)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/alerts", s.handleUserAlerts)
		r.Get("/digest", s.handleDigest)
	})
	r.Route("/alerts/{id}", func(r chi.Router) {
		r.Post("/read", s.handleAlertAction(s.dispatcher.MarkRead))
		r.Post("/dismiss", s.handleAlertAction(s.dispatcher.Dismiss))
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if e, ok := s.cache.Peek(); ok {
		resp["cache_fetched_at"] = e.FetchedAt
		resp["cache_articles"] = len(e.Articles)
	}
	if s.monitor != nil {
		resp["runs"] = s.monitor.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleArticles serves the aggregation cache. refresh=true forces a new
// pipeline pass.
func (s *apiServer) handleArticles(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	e, err := s.cache.Get(r.Context(), force)
	if err != nil {
		zap.L().Error("api: articles", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "articles unavailable"})
		return
	}

	if company := strings.TrimSpace(r.URL.Query().Get("company")); company != "" {
		filtered := make([]model.Article, 0, len(e.Articles))
		for _, a := range e.Articles {
			for _, id := range a.CompanyIDs() {
				if id == company {
					filtered = append(filtered, a)
					break
				}
			}
		}
		e.Articles = filtered
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *apiServer) handleUserAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unread, _ := strconv.ParseBool(q.Get("unread"))
	alerts, err := s.store.ListAlerts(r.Context(), store.AlertFilter{
		UserID:     chi.URLParam(r, "id"),
		UnreadOnly: unread,
		Limit:      clampInt(q.Get("limit"), defaultListLimit, maxListLimit),
	})
	if err != nil {
		zap.L().Error("api: list alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list alerts failed"})
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *apiServer) handleAlertAction(fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "alert not found"})
				return
			}
			zap.L().Error("api: alert action", zap.String("alert_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "alert update failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *apiServer) handleLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := s.store.ListLeads(r.Context(), store.LeadFilter{
		Status: model.LeadStatus(strings.TrimSpace(q.Get("status"))),
		Limit:  clampInt(q.Get("limit"), defaultListLimit, maxListLimit),
	})
	if err != nil {
		zap.L().Error("api: list leads", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list leads failed"})
		return
	}
	if leads == nil {
		leads = []model.ProspectLead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

// handleDigest returns a user's digest. since accepts RFC3339 or a Go
// duration measured back from now.
func (s *apiServer) handleDigest(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(r.URL.Query().Get("since"), time.Now())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid since"})
		return
	}
	dg, err := s.dispatcher.Digest(r.Context(), chi.URLParam(r, "id"), since)
	if err != nil {
		zap.L().Error("api: digest", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "digest failed"})
		return
	}
	writeJSON(w, http.StatusOK, dg)
}

func parseSince(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Add(-defaultDigestAge), true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), true
	}
	return time.Time{}, false
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
