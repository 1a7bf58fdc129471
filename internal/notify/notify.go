// Package notify fans sync outcomes out to live clients and the event stream.
package notify

import (
	"context"

	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/storage/models"
)

var (
	_ calendar.Notifier = Multi(nil)
	_ calendar.Notifier = (*KafkaPublisher)(nil)
)

// Multi forwards every event to each notifier in order. Nil entries are skipped.
type Multi []calendar.Notifier

// SyncFinished implements calendar.Notifier.
func (m Multi) SyncFinished(ctx context.Context, ownerID string, result models.SyncResult) {
	for _, n := range m {
		if n != nil {
			n.SyncFinished(ctx, ownerID, result)
		}
	}
}

// ConflictsDetected implements calendar.Notifier.
func (m Multi) ConflictsDetected(ctx context.Context, ownerID string, detections []models.ConflictDetection) {
	for _, n := range m {
		if n != nil {
			n.ConflictsDetected(ctx, ownerID, detections)
		}
	}
}
