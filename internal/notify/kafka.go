package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage/models"
)

// Event types published to the stream.
const (
	EventSyncFinished      = "sync.finished"
	EventConflictsDetected = "booking.conflicts_detected"
)

// Event is the JSON value of every published message.
type Event struct {
	Type       string                     `json:"type"`
	OwnerID    string                     `json:"owner_id"`
	OccurredAt time.Time                  `json:"occurred_at"`
	Result     *models.SyncResult         `json:"result,omitempty"`
	Conflicts  []models.ConflictDetection `json:"conflicts,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes sync events keyed by calendar source id, so one
// source's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	log    *logger.Logger
}

// NewKafkaPublisher creates an async publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error("kafka writer error", "detail", msg, "args", args)
		}),
	}

	return &KafkaPublisher{writer: w, log: log}, nil
}

// SyncFinished implements calendar.Notifier.
func (p *KafkaPublisher) SyncFinished(ctx context.Context, ownerID string, result models.SyncResult) {
	r := result
	p.publish(ctx, result.ICalSourceID, Event{
		Type:       EventSyncFinished,
		OwnerID:    ownerID,
		OccurredAt: result.SyncedAt,
		Result:     &r,
	})
}

// ConflictsDetected implements calendar.Notifier.
func (p *KafkaPublisher) ConflictsDetected(ctx context.Context, ownerID string, detections []models.ConflictDetection) {
	if len(detections) == 0 {
		return
	}
	p.publish(ctx, detections[0].PropertyID, Event{
		Type:       EventConflictsDetected,
		OwnerID:    ownerID,
		OccurredAt: time.Now().UTC(),
		Conflicts:  detections,
	})
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) publish(ctx context.Context, key string, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event", "type", ev.Type, "key", key, "error", err)
	}
}
