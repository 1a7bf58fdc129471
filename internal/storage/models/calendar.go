// Package models contains the domain models for the application.
package models

import (
	"time"
)

// CalendarSource binds one external calendar feed to a property.
type CalendarSource struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	ICalURL    string     `json:"ical_url"`
	Platform   string     `json:"platform"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Source status constants
const (
	SourceStatusPending = "pending"
	SourceStatusSuccess = "success"
	SourceStatusPartial = "partial"
	SourceStatusError   = "error"
)

// ParsedEvent is a normalized VEVENT from a calendar feed.
// Start is inclusive, End is exclusive (the checkout day).
type ParsedEvent struct {
	UID         string    `json:"uid"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
}

// SyncResult reports the outcome of syncing one CalendarSource.
type SyncResult struct {
	Success           bool           `json:"success"`
	Status            string         `json:"status"`
	PropertyID        string         `json:"property_id"`
	ICalSourceID      string         `json:"ical_source_id"`
	NewBookings       int            `json:"new_bookings"`
	UpdatedBookings   int            `json:"updated_bookings"`
	CancelledBookings int            `json:"cancelled_bookings,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
	Failures          []EventFailure `json:"failures,omitempty"`
	SyncedAt          time.Time      `json:"synced_at"`
}

// EventFailure is the structured form of one entry in SyncResult.Errors.
// UID is empty for source-level failures.
type EventFailure struct {
	UID     string `json:"uid,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SyncSummary aggregates a batch of SyncResults.
type SyncSummary struct {
	TotalNewBookings       int `json:"total_new_bookings"`
	TotalUpdatedBookings   int `json:"total_updated_bookings"`
	TotalCancelledBookings int `json:"total_cancelled_bookings"`
	SuccessfulSyncs        int `json:"successful_syncs"`
	FailedSyncs            int `json:"failed_syncs"`
	TotalSyncs             int `json:"total_syncs"`
}

// Summarize folds results into a summary and the combined error list.
func Summarize(results []SyncResult) (SyncSummary, []string) {
	summary := SyncSummary{TotalSyncs: len(results)}
	var errs []string
	for _, r := range results {
		summary.TotalNewBookings += r.NewBookings
		summary.TotalUpdatedBookings += r.UpdatedBookings
		summary.TotalCancelledBookings += r.CancelledBookings
		if r.Success {
			summary.SuccessfulSyncs++
		} else {
			summary.FailedSyncs++
		}
		errs = append(errs, r.Errors...)
	}
	return summary, errs
}
