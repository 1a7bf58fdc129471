package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/storage/models"
)

// CreatePropertyRequest creates a property and, optionally, its first source.
type CreatePropertyRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Location    string `json:"location" validate:"required,min=2,max=200"`
	Rooms       int    `json:"rooms" validate:"required,min=1"`
	Platform    string `json:"platform" validate:"required_with=ICalURL,max=50"`
	ICalURL     string `json:"ical_url" validate:"omitempty,feed_url"`
}

// AttachSourceRequest binds a calendar feed to an existing property.
type AttachSourceRequest struct {
	Platform string `json:"platform" validate:"required,max=50"`
	ICalURL  string `json:"ical_url" validate:"required,feed_url"`
}

// PropertyHandlers serves the property and calendar source endpoints.
type PropertyHandlers struct {
	properties *storage.PropertyRepository
	sources    *storage.SourceRepository
	validator  *RequestValidator
	log        *logger.Logger
}

// NewPropertyHandlers creates the property handlers.
func NewPropertyHandlers(properties *storage.PropertyRepository, sources *storage.SourceRepository, v *RequestValidator, log *logger.Logger) *PropertyHandlers {
	return &PropertyHandlers{properties: properties, sources: sources, validator: v, log: log}
}

// List returns the caller's properties with their sources.
func (h *PropertyHandlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)

	props, err := h.properties.ListByOwner(ctx, owner)
	if err != nil {
		h.log.Error("failed to list properties", "owner_id", owner, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query properties")
		return
	}

	out := make([]models.PropertyWithSources, 0, len(props))
	for _, p := range props {
		sources, err := h.sources.ListByProperty(ctx, p.ID)
		if err != nil {
			h.log.Error("failed to list sources", "property_id", p.ID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendar sources")
			return
		}
		if sources == nil {
			sources = []models.CalendarSource{}
		}
		out = append(out, models.PropertyWithSources{Property: p, Sources: sources})
	}

	middleware.WriteJSON(w, http.StatusOK, out)
}

// Create adds a property owned by the caller.
func (h *PropertyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)

	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Platform = strings.TrimSpace(req.Platform)
	req.ICalURL = strings.TrimSpace(req.ICalURL)

	if problems := h.validator.Validate(req); problems != nil {
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid property", problems)
		return
	}

	p := &models.Property{
		OwnerID:     owner,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Location:    req.Location,
		Rooms:       req.Rooms,
	}
	if err := h.properties.Create(ctx, p); err != nil {
		h.log.Error("failed to create property", "owner_id", owner, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create property")
		return
	}

	resp := models.PropertyWithSources{Property: *p, Sources: []models.CalendarSource{}}
	if req.ICalURL != "" {
		src := &models.CalendarSource{PropertyID: p.ID, ICalURL: req.ICalURL, Platform: req.Platform}
		if err := h.sources.Create(ctx, src); err != nil {
			h.log.Error("failed to create calendar source", "property_id", p.ID, "error", err)
			if delErr := h.properties.Delete(ctx, p.ID, owner); delErr != nil {
				h.log.Error("failed to roll back property", "property_id", p.ID, "error", delErr)
			}
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar source")
			return
		}
		resp.Sources = append(resp.Sources, *src)
	}

	middleware.WriteJSON(w, http.StatusCreated, resp)
}

// Delete removes a property; its sources and bookings go with it.
func (h *PropertyHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)
	id := mux.Vars(r)["id"]

	if err := h.properties.Delete(ctx, id, owner); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}
		h.log.Error("failed to delete property", "property_id", id, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete property")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachSource adds a calendar source to one of the caller's properties.
func (h *PropertyHandlers) AttachSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)
	propertyID := mux.Vars(r)["id"]

	p, err := h.properties.GetOwned(ctx, propertyID, owner)
	if err != nil {
		h.log.Error("failed to load property", "property_id", propertyID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load property")
		return
	}
	if p == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		return
	}

	var req AttachSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return
	}
	req.Platform = strings.TrimSpace(req.Platform)
	req.ICalURL = strings.TrimSpace(req.ICalURL)

	if problems := h.validator.Validate(req); problems != nil {
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid calendar source", problems)
		return
	}

	src := &models.CalendarSource{PropertyID: p.ID, ICalURL: req.ICalURL, Platform: req.Platform}
	if err := h.sources.Create(ctx, src); err != nil {
		h.log.Error("failed to create calendar source", "property_id", p.ID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar source")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, src)
}

// DeleteSource detaches a calendar source. Its bookings are deleted with it.
func (h *PropertyHandlers) DeleteSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)
	id := mux.Vars(r)["id"]

	if err := h.sources.Delete(ctx, id, owner); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar source not found")
			return
		}
		h.log.Error("failed to delete calendar source", "source_id", id, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete calendar source")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Platforms lists the distinct platforms of a property's sources, led by "All".
func (h *PropertyHandlers) Platforms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := middleware.OwnerID(ctx)
	propertyID := mux.Vars(r)["id"]

	p, err := h.properties.GetOwned(ctx, propertyID, owner)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load property")
		return
	}
	if p == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		return
	}

	platforms, err := h.sources.Platforms(ctx, p.ID)
	if err != nil {
		h.log.Error("failed to list platforms", "property_id", p.ID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list platforms")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, append([]string{booking.AllPlatforms}, platforms...))
}
