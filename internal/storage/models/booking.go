package models

import (
	"time"
)

// Booking is the canonical reservation reconciled from feed events.
// (BookingUID, ICalSourceID) is unique.
type Booking struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	ICalSourceID string    `json:"ical_source_id"`
	BookingUID   string    `json:"booking_uid"`
	Platform     string    `json:"platform"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	GuestName    *string   `json:"guest_name,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Booking status constants
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// DateLayout is the day-granularity storage format for booking dates.
const DateLayout = "2006-01-02"

// BookingWithProperty is a booking joined with its property's title.
type BookingWithProperty struct {
	Booking
	PropertyTitle string `json:"property_title"`
}

// BookingFilter narrows a booking listing. Empty fields match everything.
type BookingFilter struct {
	OwnerID    string
	PropertyID string
	Platform   string
}
