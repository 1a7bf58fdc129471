// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the caller's view of the system.
type StatusResponse struct {
	PropertiesCount  int        `json:"properties_count"`
	SourcesCount     int        `json:"sources_count"`
	FailedSources    int        `json:"failed_sources"`
	ActiveBookings   int        `json:"active_bookings"`
	WebSocketClients int        `json:"websocket_clients"`
	NextSyncAt       *time.Time `json:"next_sync_at,omitempty"`
}

// Status returns a handler with counts scoped to the caller. scheduler may be nil.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		owner, _ := middleware.OwnerID(ctx)

		var resp StatusResponse

		counts := []struct {
			dst   *int
			query string
		}{
			{&resp.PropertiesCount, `SELECT COUNT(*) FROM properties WHERE owner_id = ?`},
			{&resp.SourcesCount, `
				SELECT COUNT(*) FROM property_icals s
				JOIN properties p ON p.id = s.property_id
				WHERE p.owner_id = ?`},
			{&resp.FailedSources, `
				SELECT COUNT(*) FROM property_icals s
				JOIN properties p ON p.id = s.property_id
				WHERE p.owner_id = ? AND s.status = 'error'`},
			{&resp.ActiveBookings, `
				SELECT COUNT(*) FROM bookings b
				JOIN properties p ON p.id = b.property_id
				WHERE p.owner_id = ? AND b.status = 'confirmed'`},
		}
		for _, c := range counts {
			if err := db.QueryRowContext(ctx, db.Rebind(c.query), owner).Scan(c.dst); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query status")
				return
			}
		}

		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			resp.NextSyncAt = scheduler.NextRun()
		}

		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}
