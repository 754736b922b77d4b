// Package handlers provides HTTP handlers for portfolio risk views.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/risk"
	"github.com/rs/zerolog"
)

// SnapshotReader provides the newest stored snapshot
type SnapshotReader interface {
	Latest(ctx context.Context) (*domain.Snapshot, error)
}

// Handler handles portfolio risk HTTP requests
type Handler struct {
	snapshots SnapshotReader
	log       zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(snapshots SnapshotReader, log zerolog.Logger) *Handler {
	return &Handler{
		snapshots: snapshots,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetPortfolioRisk handles GET /api/portfolio/risk
func (h *Handler) HandleGetPortfolioRisk(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}

	assessment := risk.Assess(snap)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": assessment,
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"snapshot_id": snap.ID,
			"taken_at":    snap.TakenAt.Format(time.RFC3339),
		},
	})
}

// HandleGetAllocation handles GET /api/portfolio/allocation
func (h *Handler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}

	dayChange, dayChangePct := snap.DayChange()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"total_value":    snap.TotalValue(),
			"holding_count":  snap.Len(),
			"day_change":     dayChange,
			"day_change_pct": dayChangePct,
			"sectors":        snap.SectorAllocation(),
			"alerts":         risk.ConcentrationAlerts(snap),
		},
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"snapshot_id": snap.ID,
		},
	})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*domain.Snapshot, bool) {
	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		http.Error(w, "Failed to load latest snapshot", http.StatusInternalServerError)
		return nil, false
	}
	if snap == nil {
		http.Error(w, "No snapshot available yet", http.StatusNotFound)
		return nil, false
	}
	return snap, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
