package handlers

import (
	"encoding/json"
	"testing"

	ws "github.com/rentalsync/backend/internal/websocket"
)

func TestRequestValidator_FeedURL(t *testing.T) {
	v := NewRequestValidator()

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://www.airbnb.com/calendar/ical/1.ics?s=abc", true},
		{"http://localhost:3000/feed.ics", true},
		{"/fixtures/airbnb.ics", true},
		{"//evil.example.com/x.ics", false},
		{"ftp://example.com/x.ics", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			problems := v.Validate(AttachSourceRequest{Platform: "Airbnb", ICalURL: tt.url})
			if got := problems == nil; got != tt.valid {
				t.Fatalf("valid = %v, want %v (%+v)", got, tt.valid, problems)
			}
		})
	}
}

func TestRequestValidator_ReportsJSONNames(t *testing.T) {
	problems := NewRequestValidator().Validate(CreatePropertyRequest{Title: "Loft", Location: "Porto"})
	if len(problems) != 1 || problems[0].Field != "rooms" || problems[0].Message != "is required" {
		t.Fatalf("unexpected problems: %+v", problems)
	}
}

func TestHandleClientMessage(t *testing.T) {
	tests := []struct {
		in   string
		want ws.MessageType
	}{
		{`{"type":"ping"}`, ws.TypePong},
		{`{"type":"subscribe"}`, ws.TypeError},
		{`not json`, ws.TypeError},
	}

	for _, tt := range tests {
		var out ws.Message
		if err := json.Unmarshal(handleClientMessage([]byte(tt.in)), &out); err != nil {
			t.Fatalf("%s: decode reply: %v", tt.in, err)
		}
		if out.Type != tt.want {
			t.Errorf("%s: got %s, want %s", tt.in, out.Type, tt.want)
		}
	}
}
