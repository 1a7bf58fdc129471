package booking

import (
	"context"
	"fmt"

	"github.com/rentalsync/backend/internal/storage/models"
)

// AllPlatforms is the platform filter value that matches every platform.
const AllPlatforms = "All"

// Lister loads stored bookings.
type Lister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingWithProperty, error)
}

// CalendarService composes stored bookings with conflict detection.
type CalendarService struct {
	bookings Lister
}

// NewCalendarService creates a calendar read service.
func NewCalendarService(bookings Lister) *CalendarService {
	return &CalendarService{bookings: bookings}
}

// Calendar returns the owner's bookings as calendar events plus their
// conflicts. Platform "All" or "" disables platform filtering.
func (s *CalendarService) Calendar(ctx context.Context, ownerID, propertyID, platform string) (*models.CalendarData, error) {
	filter := models.BookingFilter{OwnerID: ownerID, PropertyID: propertyID}
	if platform != AllPlatforms {
		filter.Platform = platform
	}

	rows, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}

	return BuildCalendarData(ToCalendarEvents(rows)), nil
}

// ToCalendarEvents shapes bookings for display.
func ToCalendarEvents(rows []models.BookingWithProperty) []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0, len(rows))
	for _, b := range rows {
		events = append(events, models.CalendarEvent{
			ID:    b.ID,
			Title: "Reserved - " + b.PropertyTitle,
			Start: b.StartDate,
			End:   b.EndDate,
			Resource: models.EventResource{
				PropertyID:   b.PropertyID,
				PropertyName: b.PropertyTitle,
				Platform:     b.Platform,
				BookingUID:   b.BookingUID,
				ICalSourceID: b.ICalSourceID,
				GuestName:    b.GuestName,
			},
		})
	}
	return events
}

// BuildCalendarData runs conflict detection over events.
func BuildCalendarData(events []models.CalendarEvent) *models.CalendarData {
	conflicts := Detect(events)
	if conflicts == nil {
		conflicts = []models.ConflictDetection{}
	}
	return &models.CalendarData{
		Events:        events,
		Conflicts:     conflicts,
		TotalBookings: len(events),
		ConflictCount: ConflictCount(conflicts),
	}
}
