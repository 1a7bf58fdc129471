package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/rentalsync/backend/internal/api/handlers"
	"github.com/rentalsync/backend/internal/api/middleware"
	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/storage/models"
	"github.com/rentalsync/backend/internal/websocket"
)

const airbnbFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Airbnb Inc//Hosting Calendar 0.8.8//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:res-1@airbnb.com\r\n" +
	"DTSTART;VALUE=DATE:20240601\r\n" +
	"DTEND;VALUE=DATE:20240605\r\n" +
	"SUMMARY:Reserved\r\n" +
	"LOCATION:Guest: Jane Doe\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:res-2@airbnb.com\r\n" +
	"DTSTART;VALUE=DATE:20240603\r\n" +
	"DTEND;VALUE=DATE:20240606\r\n" +
	"SUMMARY:Reserved\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type testServer struct {
	srv *httptest.Server
	t   *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/airbnb.ics" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(airbnbFeed))
	}))
	t.Cleanup(feeds.Close)

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	log := logger.Discard()
	if err := storage.RunMigrations(context.Background(), db, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	properties := storage.NewPropertyRepository(db)
	sources := storage.NewSourceRepository(db)
	bookings := storage.NewBookingRepository(db)
	syncSvc := calendar.NewSyncService(properties, sources, bookings,
		calendar.NewFetcher(feeds.URL, 2*time.Second), log).
		WithNotifier(websocket.NewEventBroadcaster(hub))

	router := NewRouter(Services{
		DB:         db,
		Properties: properties,
		Sources:    sources,
		Sync:       syncSvc,
		Calendar:   booking.NewCalendarService(bookings),
		Hub:        hub,
		Log:        log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, t: t}
}

// do sends body as JSON on behalf of owner and decodes the reply into out.
func (ts *testServer) do(method, path, owner string, body any, out any) int {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		ts.t.Fatalf("request: %v", err)
	}
	if owner != "" {
		req.Header.Set(middleware.OwnerHeader, owner)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			ts.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) createProperty(owner string, req handlers.CreatePropertyRequest) models.PropertyWithSources {
	ts.t.Helper()
	var p models.PropertyWithSources
	if code := ts.do(http.MethodPost, "/api/properties", owner, req, &p); code != http.StatusCreated {
		ts.t.Fatalf("create property: status %d", code)
	}
	return p
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)

	var h handlers.HealthResponse
	if code := ts.do(http.MethodGet, "/api/health", "", nil, &h); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	if !h.DBConnected || h.Status != "healthy" {
		t.Fatalf("unexpected health: %+v", h)
	}

	if code := ts.do(http.MethodGet, "/api/properties", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without owner, got %d", code)
	}
}

func TestCreateProperty_Validation(t *testing.T) {
	ts := newTestServer(t)

	var resp middleware.ErrorResponse
	code := ts.do(http.MethodPost, "/api/properties", "owner-1", handlers.CreatePropertyRequest{
		Title: "ab", Location: "X", Rooms: 0, ICalURL: "ftp://nope",
	}, &resp)
	if code != http.StatusBadRequest || resp.Error != middleware.ErrValidation {
		t.Fatalf("expected validation error, got %d %+v", code, resp)
	}

	details, _ := json.Marshal(resp.Details)
	for _, field := range []string{"title", "location", "rooms", "ical_url", "platform"} {
		if !strings.Contains(string(details), `"`+field+`"`) {
			t.Errorf("details missing field %q: %s", field, details)
		}
	}
}

func TestSyncAndCalendarFlow(t *testing.T) {
	ts := newTestServer(t)

	p := ts.createProperty("owner-1", handlers.CreatePropertyRequest{
		Title: "Beach House", Location: "Lisbon", Rooms: 2, Platform: "Airbnb", ICalURL: "/airbnb.ics",
	})
	if len(p.Sources) != 1 || p.Sources[0].Status != models.SourceStatusPending {
		t.Fatalf("expected one pending source, got %+v", p.Sources)
	}

	var platforms []string
	ts.do(http.MethodGet, "/api/properties/"+p.ID+"/platforms", "owner-1", nil, &platforms)
	if len(platforms) != 2 || platforms[0] != booking.AllPlatforms || platforms[1] != "Airbnb" {
		t.Fatalf("unexpected platforms: %v", platforms)
	}

	if code := ts.do(http.MethodPost, "/api/sync", "owner-1", map[string]any{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty sync request: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/sync", "owner-2", handlers.SyncRequest{PropertyID: p.ID}, nil); code != http.StatusNotFound {
		t.Fatalf("foreign property sync: %d", code)
	}

	var sync handlers.SyncResponse
	if code := ts.do(http.MethodPost, "/api/sync", "owner-1", handlers.SyncRequest{PropertyID: p.ID}, &sync); code != http.StatusOK {
		t.Fatalf("sync: %d", code)
	}
	if !sync.Success || sync.Summary.TotalNewBookings != 2 || sync.Summary.TotalSyncs != 1 {
		t.Fatalf("unexpected sync response: %+v", sync)
	}

	// Resync is idempotent.
	ts.do(http.MethodPost, "/api/sync", "owner-1", handlers.SyncRequest{PropertyID: p.ID}, &sync)
	if sync.Summary.TotalNewBookings != 0 || sync.Summary.TotalUpdatedBookings != 2 {
		t.Fatalf("unexpected resync summary: %+v", sync.Summary)
	}

	var cal models.CalendarData
	ts.do(http.MethodGet, "/api/calendar", "owner-1", nil, &cal)
	if cal.TotalBookings != 2 || len(cal.Events) != 2 {
		t.Fatalf("expected 2 events, got %+v", cal)
	}
	if cal.Events[0].Title != "Reserved - Beach House" {
		t.Fatalf("unexpected title %q", cal.Events[0].Title)
	}
	if cal.ConflictCount != 1 || len(cal.Conflicts) != 1 || cal.Conflicts[0].Conflicts[0].OverlapDays != 2 {
		t.Fatalf("expected one 2-day conflict, got %+v", cal.Conflicts)
	}

	var other models.CalendarData
	ts.do(http.MethodGet, "/api/calendar", "owner-2", nil, &other)
	if other.TotalBookings != 0 || other.Events == nil || other.Conflicts == nil {
		t.Fatalf("other owner must see an empty calendar, got %+v", other)
	}

	var filtered models.CalendarData
	ts.do(http.MethodGet, "/api/calendar?platform=Vrbo", "owner-1", nil, &filtered)
	if filtered.TotalBookings != 0 {
		t.Fatalf("platform filter ignored: %+v", filtered)
	}

	var status handlers.SyncStatusResponse
	ts.do(http.MethodGet, "/api/sync", "owner-1", nil, &status)
	if !status.Success || len(status.SyncStatus) != 1 || status.SyncStatus[0].Sources[0].Status != models.SourceStatusSuccess {
		t.Fatalf("unexpected sync status: %+v", status)
	}
	if status.SyncStatus[0].Sources[0].LastSynced == nil {
		t.Fatal("last_synced not set after success")
	}

	var one models.SyncResult
	if code := ts.do(http.MethodPost, "/api/icals/"+p.Sources[0].ID+"/sync", "owner-1", nil, &one); code != http.StatusOK {
		t.Fatalf("single source sync: %d", code)
	}
	if !one.Success || one.UpdatedBookings != 2 {
		t.Fatalf("unexpected single source result: %+v", one)
	}

	if code := ts.do(http.MethodDelete, "/api/icals/"+p.Sources[0].ID, "owner-2", nil, nil); code != http.StatusNotFound {
		t.Fatalf("foreign source delete: %d", code)
	}
	if code := ts.do(http.MethodDelete, "/api/icals/"+p.Sources[0].ID, "owner-1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("source delete: %d", code)
	}
	ts.do(http.MethodGet, "/api/calendar", "owner-1", nil, &cal)
	if cal.TotalBookings != 0 {
		t.Fatalf("bookings survived source delete: %d", cal.TotalBookings)
	}
}

func TestSyncAll_NoProperties(t *testing.T) {
	ts := newTestServer(t)

	var sync handlers.SyncResponse
	ts.do(http.MethodPost, "/api/sync", "nobody", handlers.SyncRequest{SyncAll: true}, &sync)
	if sync.Success || len(sync.Results) != 1 || sync.Summary.FailedSyncs != 1 {
		t.Fatalf("unexpected response: %+v", sync)
	}
	if len(sync.Errors) != 1 || sync.Errors[0] != calendar.ErrNoProperties.Error() {
		t.Fatalf("unexpected errors: %v", sync.Errors)
	}
}

func TestDeleteProperty(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProperty("owner-1", handlers.CreatePropertyRequest{Title: "Loft", Location: "Porto", Rooms: 1})

	var src models.CalendarSource
	code := ts.do(http.MethodPost, "/api/properties/"+p.ID+"/icals", "owner-1",
		handlers.AttachSourceRequest{Platform: "Vrbo", ICalURL: "https://example.com/feed.ics"}, &src)
	if code != http.StatusCreated || src.PropertyID != p.ID {
		t.Fatalf("attach source: %d %+v", code, src)
	}

	if code := ts.do(http.MethodDelete, "/api/properties/"+p.ID, "owner-2", nil, nil); code != http.StatusNotFound {
		t.Fatalf("foreign delete: %d", code)
	}
	if code := ts.do(http.MethodDelete, "/api/properties/"+p.ID, "owner-1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}

	var list []models.PropertyWithSources
	ts.do(http.MethodGet, "/api/properties", "owner-1", nil, &list)
	if len(list) != 0 {
		t.Fatalf("property still listed: %+v", list)
	}
}

func TestWebSocket_PingAndSyncEvents(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProperty("owner-1", handlers.CreatePropertyRequest{
		Title: "Beach House", Location: "Lisbon", Rooms: 2, Platform: "Airbnb", ICalURL: "/airbnb.ics",
	})

	header := http.Header{}
	header.Set(middleware.OwnerHeader, "owner-1")
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != websocket.TypePong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}

	ts.do(http.MethodPost, "/api/sync", "owner-1", handlers.SyncRequest{PropertyID: p.ID}, nil)

	seen := map[websocket.MessageType]bool{}
	for !seen[websocket.TypeCalendarSyncCompleted] || !seen[websocket.TypeBookingConflictsDetected] {
		var m websocket.Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read event: %v (seen %v)", err, seen)
		}
		seen[m.Type] = true
	}
}

func TestStatus_ScopedToOwner(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProperty("owner-1", handlers.CreatePropertyRequest{
		Title: "Beach House", Location: "Lisbon", Rooms: 2, Platform: "Airbnb", ICalURL: "/airbnb.ics",
	})
	ts.do(http.MethodPost, "/api/sync", "owner-1", handlers.SyncRequest{PropertyID: p.ID}, nil)

	var mine, theirs handlers.StatusResponse
	ts.do(http.MethodGet, "/api/status", "owner-1", nil, &mine)
	ts.do(http.MethodGet, "/api/status", "owner-2", nil, &theirs)

	if mine.PropertiesCount != 1 || mine.SourcesCount != 1 || mine.ActiveBookings != 2 || mine.FailedSources != 0 {
		t.Fatalf("unexpected status: %+v", mine)
	}
	if theirs.PropertiesCount != 0 || theirs.ActiveBookings != 0 {
		t.Fatalf("status leaked across owners: %+v", theirs)
	}
	if mine.NextSyncAt != nil {
		t.Fatal("no scheduler configured, next_sync_at must be empty")
	}
}

func TestSyncTrigger_SyncAllWinsOverPropertyID(t *testing.T) {
	ts := newTestServer(t)
	first := ts.createProperty("owner-1", handlers.CreatePropertyRequest{
		Title: "Beach House", Location: "Lisbon", Rooms: 2, Platform: "Airbnb", ICalURL: "/airbnb.ics",
	})
	ts.createProperty("owner-1", handlers.CreatePropertyRequest{
		Title: "Mountain Cabin", Location: "Gerês", Rooms: 3, Platform: "Airbnb", ICalURL: "/airbnb.ics",
	})

	var sync handlers.SyncResponse
	code := ts.do(http.MethodPost, "/api/sync", "owner-1",
		handlers.SyncRequest{PropertyID: first.ID, SyncAll: true}, &sync)
	if code != http.StatusOK {
		t.Fatalf("sync: %d", code)
	}
	if sync.Summary.TotalSyncs != 2 || sync.Summary.TotalNewBookings != 4 || !sync.Success {
		t.Fatalf("expected every property to sync, got %+v", sync.Summary)
	}

	synced := map[string]bool{}
	for _, r := range sync.Results {
		synced[r.PropertyID] = true
	}
	if len(synced) != 2 {
		t.Fatalf("expected results for 2 properties, got %v", synced)
	}
}
