package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/storage/models"
)

// SyncRequest selects what to sync. SyncAll wins over PropertyID.
type SyncRequest struct {
	PropertyID string `json:"property_id"`
	SyncAll    bool   `json:"sync_all"`
}

// SyncResponse is returned by the sync trigger.
type SyncResponse struct {
	Success bool                `json:"success"`
	Results []models.SyncResult `json:"results"`
	Summary models.SyncSummary  `json:"summary"`
	Errors  []string            `json:"errors,omitempty"`
}

// SyncStatusResponse is returned by the sync status read.
type SyncStatusResponse struct {
	Success    bool                        `json:"success"`
	SyncStatus []models.PropertySyncStatus `json:"sync_status"`
}

// SyncHandlers serves the sync endpoints.
type SyncHandlers struct {
	sync       *calendar.SyncService
	properties *storage.PropertyRepository
	sources    *storage.SourceRepository
	log        *logger.Logger
}

// NewSyncHandlers creates the sync handlers.
func NewSyncHandlers(svc *calendar.SyncService, properties *storage.PropertyRepository, sources *storage.SourceRepository, log *logger.Logger) *SyncHandlers {
	return &SyncHandlers{sync: svc, properties: properties, sources: sources, log: log}
}

// Trigger syncs one property or every property of the caller.
func (h *SyncHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return
	}
	req.PropertyID = strings.TrimSpace(req.PropertyID)

	var results []models.SyncResult
	switch {
	case req.SyncAll:
		results = h.sync.SyncAllUserProperties(ctx, owner)

	case req.PropertyID != "":
		p, err := h.properties.GetOwned(ctx, req.PropertyID, owner)
		if err != nil {
			h.log.Error("failed to load property", "property_id", req.PropertyID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load property")
			return
		}
		if p == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}
		results = h.sync.SyncProperty(ctx, p.ID)

	default:
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Either property_id or sync_all is required")
		return
	}

	summary, errs := models.Summarize(results)
	h.log.Info("sync finished",
		"owner_id", owner,
		"property_id", req.PropertyID,
		"total_syncs", summary.TotalSyncs,
		"failed_syncs", summary.FailedSyncs,
		"new_bookings", summary.TotalNewBookings,
		"updated_bookings", summary.TotalUpdatedBookings,
	)

	middleware.WriteJSON(w, http.StatusOK, SyncResponse{
		Success: summary.FailedSyncs == 0,
		Results: results,
		Summary: summary,
		Errors:  errs,
	})
}

// Status returns the last sync state of every source of the caller.
func (h *SyncHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)

	status, err := h.sync.GetSyncStatus(ctx, owner)
	if err != nil {
		h.log.Error("failed to load sync status", "owner_id", owner, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to fetch sync status")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, SyncStatusResponse{Success: true, SyncStatus: status})
}

// SyncSource syncs a single calendar source of the caller.
func (h *SyncHandlers) SyncSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)
	id := mux.Vars(r)["id"]

	src, err := h.sources.GetOwned(ctx, id, owner)
	if err != nil {
		h.log.Error("failed to load calendar source", "source_id", id, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load calendar source")
		return
	}
	if src == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar source not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.sync.SyncSource(ctx, *src))
}
