// Package handlers provides HTTP handlers for monitoring cycle records.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CycleQuerier reads recorded cycles
type CycleQuerier interface {
	List(ctx context.Context, limit int) ([]domain.CycleRunRecord, error)
	Get(ctx context.Context, id string) (*domain.CycleRunRecord, error)
}

// CycleRunner triggers an immediate cycle
type CycleRunner interface {
	RunNow(ctx context.Context) (domain.CycleRunRecord, error)
}

// Handler handles cycle HTTP requests
type Handler struct {
	repo   CycleQuerier
	runner CycleRunner
	log    zerolog.Logger
}

// NewHandler creates a new cycle handler
func NewHandler(repo CycleQuerier, runner CycleRunner, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		runner: runner,
		log:    log.With().Str("handler", "cycles").Logger(),
	}
}

// RegisterRoutes registers cycle routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cycles", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/run", h.HandleRun)
		r.Get("/{id}", h.HandleGet)
	})
}

// HandleList handles GET /api/cycles
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list cycles")
		http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": records,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(records),
		},
	})
}

// HandleGet handles GET /api/cycles/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("cycle_id", id).Msg("Failed to load cycle")
		http.Error(w, "Failed to load cycle", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Cycle not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRun handles POST /api/cycles/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	record, err := h.runner.RunNow(r.Context())
	if errors.Is(err, domain.ErrCycleInProgress) {
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Manual cycle failed to start")
		http.Error(w, "Failed to run cycle", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"duration_ms": record.Duration().Milliseconds(),
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
