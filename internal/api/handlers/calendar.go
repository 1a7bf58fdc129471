package handlers

import (
	"net/http"
	"strings"

	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/logger"
)

// GetCalendar returns the caller's bookings as calendar events together
// with per-property conflicts. Optional query filters: platform, property.
func GetCalendar(svc *booking.CalendarService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		owner, _ := middleware.OwnerID(ctx)

		q := r.URL.Query()
		platform := strings.TrimSpace(q.Get("platform"))
		if platform == "" {
			platform = booking.AllPlatforms
		}
		propertyID := strings.TrimSpace(q.Get("property"))

		data, err := svc.Calendar(ctx, owner, propertyID, platform)
		if err != nil {
			log.Error("failed to build calendar", "owner_id", owner, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to fetch calendar data")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, data)
	}
}
