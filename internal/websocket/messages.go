package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeCalendarSyncCompleted    MessageType = "calendar.sync_completed"
	TypeCalendarSyncError        MessageType = "calendar.sync_error"
	TypeBookingConflictsDetected MessageType = "booking.conflicts_detected"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncCompletedPayload is the payload for calendar.sync_completed events.
type SyncCompletedPayload struct {
	PropertyID        string   `json:"property_id"`
	ICalSourceID      string   `json:"ical_source_id"`
	Status            string   `json:"status"`
	NewBookings       int      `json:"new_bookings"`
	UpdatedBookings   int      `json:"updated_bookings"`
	CancelledBookings int      `json:"cancelled_bookings"`
	Errors            []string `json:"errors,omitempty"`
}

// SyncErrorPayload is the payload for calendar.sync_error events.
type SyncErrorPayload struct {
	PropertyID   string `json:"property_id"`
	ICalSourceID string `json:"ical_source_id"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// ConflictsPayload is the payload for booking.conflicts_detected events.
type ConflictsPayload struct {
	ConflictCount int `json:"conflict_count"`
	Properties    any `json:"properties"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
