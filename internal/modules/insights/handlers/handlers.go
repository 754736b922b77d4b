// Package handlers provides HTTP handlers for emitted insights.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// InsightLister reads emitted insights, newest first
type InsightLister interface {
	List(ctx context.Context, limit int, symbol string) ([]domain.Insight, error)
}

// Handler handles insight HTTP requests
type Handler struct {
	repo InsightLister
	log  zerolog.Logger
}

// NewHandler creates a new insight handler
func NewHandler(repo InsightLister, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "insights").Logger(),
	}
}

// RegisterRoutes registers insight routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/insights", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{symbol}", h.HandleListBySymbol)
	})
}

// HandleList handles GET /api/insights
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, strings.ToUpper(r.URL.Query().Get("symbol")))
}

// HandleListBySymbol handles GET /api/insights/{symbol}
func (h *Handler) HandleListBySymbol(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, strings.ToUpper(chi.URLParam(r, "symbol")))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, symbol string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	items, err := h.repo.List(r.Context(), limit, symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to list insights")
		http.Error(w, "Failed to list insights", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []domain.Insight{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": items,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(items),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
