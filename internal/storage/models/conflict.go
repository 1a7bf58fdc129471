package models

import "time"

// CalendarEvent is a booking shaped for calendar display.
type CalendarEvent struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Resource EventResource `json:"resource"`
}

// EventResource carries the booking details behind a CalendarEvent.
type EventResource struct {
	PropertyID   string  `json:"property_id"`
	PropertyName string  `json:"property_name"`
	Platform     string  `json:"platform"`
	BookingUID   string  `json:"booking_uid"`
	ICalSourceID string  `json:"ical_source_id"`
	GuestName    *string `json:"guest_name,omitempty"`
}

// ConflictBooking is one side of a Conflict.
type ConflictBooking struct {
	Platform  string  `json:"platform"`
	Dates     string  `json:"dates"`
	GuestName *string `json:"guest_name,omitempty"`
}

// Conflict is a pair of overlapping bookings on the same property.
type Conflict struct {
	Booking1    ConflictBooking `json:"booking1"`
	Booking2    ConflictBooking `json:"booking2"`
	OverlapDays int             `json:"overlap_days"`
}

// ConflictDetection lists every conflicting pair found for one property.
type ConflictDetection struct {
	PropertyID   string     `json:"property_id"`
	PropertyName string     `json:"property_name"`
	Conflicts    []Conflict `json:"conflicts"`
}

// CalendarData is the calendar read payload.
type CalendarData struct {
	Events        []CalendarEvent     `json:"events"`
	Conflicts     []ConflictDetection `json:"conflicts"`
	TotalBookings int                 `json:"total_bookings"`
	ConflictCount int                 `json:"conflict_count"`
}
