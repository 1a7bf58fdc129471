package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type recorder struct {
	syncs     int
	conflicts int
}

func (r *recorder) SyncFinished(context.Context, string, models.SyncResult) { r.syncs++ }

func (r *recorder) ConflictsDetected(context.Context, string, []models.ConflictDetection) {
	r.conflicts++
}

func TestMulti_ForwardsAndSkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}

	m.SyncFinished(context.Background(), "o", models.SyncResult{})
	m.ConflictsDetected(context.Background(), "o", nil)

	if a.syncs != 1 || b.syncs != 1 || a.conflicts != 1 || b.conflicts != 1 {
		t.Fatalf("unexpected counts: %+v %+v", a, b)
	}
}

func TestMulti_NestsAsCalendarNotifier(t *testing.T) {
	rec := &recorder{}
	var n calendar.Notifier = Multi{Multi{rec}, rec}

	n.SyncFinished(context.Background(), "o", models.SyncResult{})
	if rec.syncs != 2 {
		t.Fatalf("expected 2 deliveries, got %d", rec.syncs)
	}
}

func TestKafkaPublisher_SyncFinished(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, log: logger.Discard()}

	synced := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p.SyncFinished(context.Background(), "owner-1", models.SyncResult{
		Success: true, PropertyID: "p1", ICalSourceID: "s1", NewBookings: 3, SyncedAt: synced,
	})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "s1" {
		t.Fatalf("message must be keyed by source id, got %q", msg.Key)
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventSyncFinished || ev.OwnerID != "owner-1" || ev.Result == nil || ev.Result.NewBookings != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.OccurredAt.Equal(synced) {
		t.Fatalf("occurred_at mismatch: %v", ev.OccurredAt)
	}
}

func TestKafkaPublisher_ConflictsAndErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, log: logger.Discard()}

	p.ConflictsDetected(context.Background(), "o", nil)
	if len(w.msgs) != 0 {
		t.Fatal("empty detections should not publish")
	}

	p.ConflictsDetected(context.Background(), "o", []models.ConflictDetection{{PropertyID: "p9"}})
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "p9" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("close not forwarded")
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "t", logger.Discard()); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, "", logger.Discard()); err == nil {
		t.Fatal("expected error without topic")
	}
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "events", logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Close()
}
