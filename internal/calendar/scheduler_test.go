package calendar

import (
	"testing"
	"time"

	"github.com/rentalsync/backend/internal/logger"
)

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.svc, "@every 1h", time.Minute, logger.Discard())

	if s.NextRun() != nil {
		t.Fatal("next run should be nil before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	next := s.NextRun()
	if next == nil || next.Before(time.Now()) {
		t.Fatalf("unexpected next run: %v", next)
	}
}

func TestScheduler_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.svc, "not a schedule", 0, logger.Discard())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestScheduler_RunSyncsEveryOwner(t *testing.T) {
	f := newFixture(t)

	a := f.property(t, "owner-a", "A")
	b := f.property(t, "owner-b", "B")
	f.source(t, a.ID, "/a.ics", "Airbnb")
	f.source(t, b.ID, "/b.ics", "Vrbo")
	f.feeds.set("/a.ics", document("test", vevent("1", "20240101", "20240103")))
	f.feeds.set("/b.ics", document("test", vevent("2", "20240101", "20240103")))

	s := NewScheduler(f.svc, "@every 1h", time.Minute, logger.Discard())
	s.run()

	summary := s.LastSummary()
	if summary == nil {
		t.Fatal("expected a summary after run")
	}
	if summary.TotalSyncs != 2 || summary.TotalNewBookings != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
