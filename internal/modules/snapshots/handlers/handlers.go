// Package handlers provides HTTP handlers for snapshot history.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 20

// SnapshotQuerier is the read side of the snapshot store
type SnapshotQuerier interface {
	LatestPair(ctx context.Context) (*domain.Snapshot, *domain.Snapshot, error)
	History(ctx context.Context, limit int) ([]*domain.Snapshot, error)
	GetByID(ctx context.Context, id int64) (*domain.Snapshot, error)
	Count(ctx context.Context) (int, error)
}

// Differ computes deltas between two snapshots
type Differ interface {
	Diff(before, after *domain.Snapshot) ([]domain.Delta, error)
}

// Handler handles snapshot HTTP requests
type Handler struct {
	repo     SnapshotQuerier
	detector Differ
	log      zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(repo SnapshotQuerier, detector Differ, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		detector: detector,
		log:      log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList handles GET /api/snapshots
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	history, err := h.repo.History(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot history")
		http.Error(w, "Failed to load snapshot history", http.StatusInternalServerError)
		return
	}
	total, err := h.repo.Count(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count snapshots")
		http.Error(w, "Failed to count snapshots", http.StatusInternalServerError)
		return
	}

	summaries := make([]map[string]interface{}, 0, len(history))
	for _, s := range history {
		summaries = append(summaries, map[string]interface{}{
			"id":            s.ID,
			"taken_at":      s.TakenAt.Format(time.RFC3339),
			"source":        s.Source,
			"holding_count": s.Len(),
			"total_value":   s.TotalValue(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summaries,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"total":     total,
		},
	})
}

// HandleGetLatest handles GET /api/snapshots/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	latest, _, err := h.repo.LatestPair(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		http.Error(w, "Failed to load latest snapshot", http.StatusInternalServerError)
		return
	}
	if latest == nil {
		http.Error(w, "No snapshot available yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": latest,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetByID handles GET /api/snapshots/{id}
func (h *Handler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid snapshot id", http.StatusBadRequest)
		return
	}

	snap, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("snapshot_id", id).Msg("Failed to load snapshot")
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetChanges handles GET /api/snapshots/changes.
// Deltas are recomputed from the two newest snapshots.
func (h *Handler) HandleGetChanges(w http.ResponseWriter, r *http.Request) {
	latest, previous, err := h.repo.LatestPair(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshots")
		http.Error(w, "Failed to load snapshots", http.StatusInternalServerError)
		return
	}

	deltas := []domain.Delta{}
	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if latest != nil && previous != nil {
		deltas, err = h.detector.Diff(previous, latest)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to diff snapshots")
			http.Error(w, "Failed to diff snapshots", http.StatusInternalServerError)
			return
		}
		if deltas == nil {
			deltas = []domain.Delta{}
		}
		metadata["before_id"] = previous.ID
		metadata["after_id"] = latest.ID
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     deltas,
		"metadata": metadata,
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
