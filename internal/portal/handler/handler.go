// Package handler exposes the portal's search service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/auth/apikey"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/search"
	apperrors "github.com/shepardc348-cloud/Freshwater-Vault/pkg/errors"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/logger"
)

const maxBodyBytes = 16 << 10

type Handler struct {
	svc    *search.Service
	admin  apikey.Validator
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAdminKeys sets the validator guarding the maintenance routes. Without
// it every maintenance request is rejected.
func WithAdminKeys(v apikey.Validator) Option {
	return func(h *Handler) { h.admin = v }
}

func New(svc *search.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "portal-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.admin == nil {
		h.admin = &apikey.StaticValidator{}
	}
	return h
}

// Register adds the portal API routes to mux. Document refresh and cache
// invalidation require an admin API key.
func (h *Handler) Register(mux *http.ServeMux) {
	adminOnly := apikey.Auth(h.admin)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/sections", h.Sections)
	mux.HandleFunc("GET /api/v1/document", h.DocumentStatus)
	mux.Handle("POST /api/v1/document/refresh", adminOnly(http.HandlerFunc(h.Refresh)))
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", adminOnly(http.HandlerFunc(h.CacheInvalidate)))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	result, err := h.svc.Quick(r.Context(), query, limit)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"matches", len(result.Matches),
		"stale", result.Stale,
	)
	h.writeJSON(w, http.StatusOK, result)
}

type explainRequest struct {
	Question string `json:"question"`
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with a question field")
		return
	}

	answer, err := h.svc.Explain(r.Context(), req.Question)
	if err != nil {
		h.fail(w, r, "explain failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("explain completed",
		"found", answer.Found,
		"sources", len(answer.Sources),
		"cached", answer.Cached,
		"unavailable", answer.Unavailable,
	)
	h.writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) Sections(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Sections(r.Context())
	if err != nil {
		h.fail(w, r, "listing sections failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.DocumentStatus())
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Refresh(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("document refresh failed", "error", err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]any{
			"error":  apperrors.UserMessage(err),
			"status": status,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.InvalidateAnswers(r.Context())
	if err != nil {
		h.fail(w, r, "cache invalidation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"keys_deleted": deleted,
	})
}

// fail logs err in full and answers with a short message safe for clients.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrDocumentUnavailable) {
		log.Error(msg, "error", err)
	} else {
		log.Warn(msg, "error", err)
	}
	h.writeError(w, status, apperrors.UserMessage(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
