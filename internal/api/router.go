// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rentalsync/backend/internal/api/handlers"
	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/websocket"
)

// Services are the dependencies the router wires into handlers.
type Services struct {
	DB         *storage.DB
	Properties *storage.PropertyRepository
	Sources    *storage.SourceRepository
	Sync       *calendar.SyncService
	Calendar   *booking.CalendarService
	Hub        *websocket.Hub
	// Scheduler is nil when background sync is disabled.
	Scheduler *calendar.Scheduler
	Log       *logger.Logger
	// JWTSecret empty switches authentication to the X-Owner-ID header.
	JWTSecret string
	// SyncWriteTimeout replaces the server write timeout on sync routes.
	SyncWriteTimeout time.Duration
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(s.Log))
	r.Use(middleware.ErrorRecovery(s.Log))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods(http.MethodGet)

	// Everything below resolves the calling owner first.
	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Auth(s.JWTSecret))

	authed.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler)).Methods(http.MethodGet)
	authed.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Log)).Methods(http.MethodGet)

	props := handlers.NewPropertyHandlers(s.Properties, s.Sources, handlers.NewRequestValidator(), s.Log)
	authed.HandleFunc("/properties", props.List).Methods(http.MethodGet)
	authed.HandleFunc("/properties", props.Create).Methods(http.MethodPost)
	authed.HandleFunc("/properties/{id}", props.Delete).Methods(http.MethodDelete)
	authed.HandleFunc("/properties/{id}/icals", props.AttachSource).Methods(http.MethodPost)
	authed.HandleFunc("/properties/{id}/platforms", props.Platforms).Methods(http.MethodGet)
	authed.HandleFunc("/icals/{id}", props.DeleteSource).Methods(http.MethodDelete)

	sync := handlers.NewSyncHandlers(s.Sync, s.Properties, s.Sources, s.Log)
	slow := middleware.WriteDeadline(s.SyncWriteTimeout)
	authed.Handle("/sync", slow(http.HandlerFunc(sync.Trigger))).Methods(http.MethodPost)
	authed.HandleFunc("/sync", sync.Status).Methods(http.MethodGet)
	authed.Handle("/icals/{id}/sync", slow(http.HandlerFunc(sync.SyncSource))).Methods(http.MethodPost)

	authed.HandleFunc("/calendar", handlers.GetCalendar(s.Calendar, s.Log)).Methods(http.MethodGet)

	return r
}
