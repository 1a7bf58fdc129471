package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger.Discard())
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send():
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHub_PublishRoutesByOwner(t *testing.T) {
	hub := startHub(t)

	alice := NewClient(hub, "alice")
	bob := NewClient(hub, "bob")
	hub.Register(alice)
	hub.Register(bob)

	msg, _ := NewMessage(TypePong, nil).JSON()
	hub.Publish("alice", msg)

	if got := receive(t, alice); got.Type != TypePong {
		t.Fatalf("unexpected type %q", got.Type)
	}

	select {
	case <-bob.Send():
		t.Fatal("bob must not receive alice's events")
	case <-time.After(50 * time.Millisecond):
	}

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, "alice")
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	if c.Enqueue([]byte("x")) {
		t.Fatal("enqueue on closed client should fail")
	}
}

func TestEventBroadcaster_SyncFinished(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, "owner")
	hub.Register(c)
	b := NewEventBroadcaster(hub)

	b.SyncFinished(context.Background(), "owner", models.SyncResult{
		Success: true, Status: models.SourceStatusSuccess, PropertyID: "p", ICalSourceID: "s", NewBookings: 2,
	})
	if got := receive(t, c); got.Type != TypeCalendarSyncCompleted {
		t.Fatalf("expected sync_completed, got %q", got.Type)
	}

	b.SyncFinished(context.Background(), "owner", models.SyncResult{
		Status:   models.SourceStatusError,
		Errors:   []string{"fetch feed: unexpected status 500"},
		Failures: []models.EventFailure{{Code: "fetch_error", Message: "fetch feed: unexpected status 500"}},
	})
	got := receive(t, c)
	if got.Type != TypeCalendarSyncError {
		t.Fatalf("expected sync_error, got %q", got.Type)
	}
	payload, _ := got.Payload.(map[string]any)
	if payload["error"] != "fetch_error" {
		t.Fatalf("unexpected payload: %v", got.Payload)
	}
}

func TestEventBroadcaster_ConflictsDetected(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, "owner")
	hub.Register(c)

	NewEventBroadcaster(hub).ConflictsDetected(context.Background(), "owner", []models.ConflictDetection{
		{PropertyID: "p", Conflicts: []models.Conflict{{OverlapDays: 2}, {OverlapDays: 1}}},
	})

	got := receive(t, c)
	payload, _ := got.Payload.(map[string]any)
	if got.Type != TypeBookingConflictsDetected || payload["conflict_count"] != float64(2) {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestHub_RegisterAfterStopClosesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Discard())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient(hub, "alice")
	hub.Register(c)
	hub.Unregister(c)

	if _, ok := <-c.Send(); ok {
		t.Fatal("expected closed send channel")
	}
	if c.Enqueue([]byte("x")) {
		t.Fatal("enqueue on a closed client must fail")
	}
}
