package websocket

import (
	"context"

	"github.com/rentalsync/backend/internal/storage/models"
)

// EventBroadcaster turns sync outcomes into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncFinished sends calendar.sync_completed, or calendar.sync_error when
// the source could not be read at all.
func (b *EventBroadcaster) SyncFinished(_ context.Context, ownerID string, result models.SyncResult) {
	if result.Status == models.SourceStatusError {
		payload := SyncErrorPayload{
			PropertyID:   result.PropertyID,
			ICalSourceID: result.ICalSourceID,
			Error:        "sync_error",
		}
		if len(result.Failures) > 0 {
			payload.Error = result.Failures[0].Code
			payload.Message = result.Failures[0].Message
		}
		b.send(ownerID, NewMessage(TypeCalendarSyncError, payload))
		return
	}

	b.send(ownerID, NewMessage(TypeCalendarSyncCompleted, SyncCompletedPayload{
		PropertyID:        result.PropertyID,
		ICalSourceID:      result.ICalSourceID,
		Status:            result.Status,
		NewBookings:       result.NewBookings,
		UpdatedBookings:   result.UpdatedBookings,
		CancelledBookings: result.CancelledBookings,
		Errors:            result.Errors,
	}))
}

// ConflictsDetected sends booking.conflicts_detected.
func (b *EventBroadcaster) ConflictsDetected(_ context.Context, ownerID string, detections []models.ConflictDetection) {
	count := 0
	for _, d := range detections {
		count += len(d.Conflicts)
	}
	b.send(ownerID, NewMessage(TypeBookingConflictsDetected, ConflictsPayload{
		ConflictCount: count,
		Properties:    detections,
	}))
}

func (b *EventBroadcaster) send(ownerID string, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.hub.log.Error("failed to encode websocket message", "type", msg.Type, "error", err)
		return
	}
	b.hub.Publish(ownerID, data)
}
