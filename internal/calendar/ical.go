// Package calendar provides feed fetching, iCal parsing and booking
// reconciliation for property calendar sources.
package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/rentalsync/backend/internal/storage/models"
)

// DefaultSummary is used for events that carry no SUMMARY.
const DefaultSummary = "Reserved"

// Feed is the parsed form of one calendar document.
type Feed struct {
	ProdID string
	Events []models.ParsedEvent
	// Rejected holds VEVENTs that could not be normalized. The rest of the
	// feed is still usable.
	Rejected []*EventError
}

// Parser parses iCal/ICS calendar feeds.
type Parser struct{}

// NewParser creates a new iCal parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a whole calendar document. A document that is empty or not a
// VCALENDAR fails as a unit with *ParseError; individual bad VEVENTs end up
// in Feed.Rejected.
func (p *Parser) Parse(body []byte) (*Feed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Err: errors.New("empty calendar body")}
	}
	if !bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VCALENDAR")) {
		return nil, &ParseError{Err: errors.New("missing BEGIN:VCALENDAR")}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	feed := &Feed{}
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == string(ical.PropertyProductId) {
			feed.ProdID = prop.Value
			break
		}
	}

	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve)
		if err != nil {
			feed.Rejected = append(feed.Rejected, err)
			continue
		}
		feed.Events = append(feed.Events, ev)
	}

	return feed, nil
}

func parseEvent(ve *ical.VEvent) (models.ParsedEvent, *EventError) {
	var ev models.ParsedEvent

	ev.UID = strings.TrimSpace(propertyValue(ve.GetProperty(ical.ComponentPropertyUniqueId)))
	if ev.UID == "" {
		return ev, &EventError{Code: CodeInvalidEvent, Err: errors.New("missing UID")}
	}

	ev.Summary = unescapeText(propertyValue(ve.GetProperty(ical.ComponentPropertySummary)))
	if ev.Summary == "" {
		ev.Summary = DefaultSummary
	}
	ev.Description = unescapeText(propertyValue(ve.GetProperty(ical.ComponentPropertyDescription)))
	ev.Location = unescapeText(propertyValue(ve.GetProperty(ical.ComponentPropertyLocation)))

	startAt, allDay, err := eventTime(ve, ical.ComponentPropertyDtStart)
	if err != nil {
		return ev, &EventError{UID: ev.UID, Code: CodeInvalidEvent, Err: fmt.Errorf("DTSTART: %w", err)}
	}
	endAt, err := eventEnd(ve, startAt, allDay)
	if err != nil {
		return ev, &EventError{UID: ev.UID, Code: CodeInvalidEvent, Err: err}
	}

	start, end := calendarDate(startAt), calendarDate(endAt)
	if !start.Before(end) {
		return ev, &EventError{
			UID:  ev.UID,
			Code: CodeInvalidRange,
			Err:  fmt.Errorf("start %s is not before end %s", start.Format(models.DateLayout), end.Format(models.DateLayout)),
		}
	}

	ev.Start = start
	ev.End = end
	return ev, nil
}

// eventTime reads DTSTART or DTEND. All-day values keep their literal date
// at midnight UTC; date-times are resolved by the library (TZID aware).
func eventTime(ve *ical.VEvent, prop ical.ComponentProperty) (time.Time, bool, error) {
	p := ve.GetProperty(prop)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return time.Time{}, false, errors.New("missing value")
	}

	value := strings.TrimSpace(p.Value)
	if isAllDay(p) {
		if len(value) < 8 {
			return time.Time{}, true, fmt.Errorf("invalid date %q", value)
		}
		t, err := time.ParseInLocation("20060102", value[:8], time.UTC)
		return t, true, err
	}

	var (
		t   time.Time
		err error
	)
	if prop == ical.ComponentPropertyDtStart {
		t, err = ve.GetStartAt()
	} else {
		t, err = ve.GetEndAt()
	}
	return t, false, err
}

// eventEnd resolves the end of an event: DTEND, else DTSTART+DURATION, else
// one day for an all-day start and the start itself for a date-time start.
func eventEnd(ve *ical.VEvent, start time.Time, allDay bool) (time.Time, error) {
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && strings.TrimSpace(p.Value) != "" {
		end, _, err := eventTime(ve, ical.ComponentPropertyDtEnd)
		if err != nil {
			return time.Time{}, fmt.Errorf("DTEND: %w", err)
		}
		return end, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil && strings.TrimSpace(p.Value) != "" {
		d, err := parseDuration(p.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("DURATION: %w", err)
		}
		return d.addTo(start), nil
	}

	if allDay {
		return start.AddDate(0, 0, 1), nil
	}
	return start, nil
}

// calendarDate truncates t to its UTC calendar date.
func calendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// duration is an RFC 5545 DURATION value. Days are kept apart from the
// clock part so that adding them follows the calendar.
type duration struct {
	days  int
	clock time.Duration
}

func (d duration) addTo(t time.Time) time.Time {
	return t.AddDate(0, 0, d.days).Add(d.clock)
}

// parseDuration parses values such as P3D, P1W, PT2H30M or -P1DT12H.
func parseDuration(raw string) (duration, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	sign := 1
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return duration{}, fmt.Errorf("invalid duration %q", raw)
	}
	s = s[1:]

	var (
		d      duration
		n      int
		digits bool
		inTime bool
	)
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			n = n*10 + int(c-'0')
			digits = true
			continue
		case c == 'T' && !inTime && !digits:
			inTime = true
			continue
		}
		if !digits {
			return duration{}, fmt.Errorf("invalid duration %q", raw)
		}
		switch {
		case c == 'W' && !inTime:
			d.days += 7 * n
		case c == 'D' && !inTime:
			d.days += n
		case c == 'H' && inTime:
			d.clock += time.Duration(n) * time.Hour
		case c == 'M' && inTime:
			d.clock += time.Duration(n) * time.Minute
		case c == 'S' && inTime:
			d.clock += time.Duration(n) * time.Second
		default:
			return duration{}, fmt.Errorf("invalid duration %q", raw)
		}
		n, digits = 0, false
	}
	if digits {
		return duration{}, fmt.Errorf("invalid duration %q", raw)
	}

	d.days *= sign
	d.clock *= time.Duration(sign)
	return d, nil
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func propertyValue(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return p.Value
}

// unescapeText reverses RFC 5545 TEXT escaping.
func unescapeText(value string) string {
	value = strings.ReplaceAll(value, "\\n", "\n")
	value = strings.ReplaceAll(value, "\\N", "\n")
	value = strings.ReplaceAll(value, "\\,", ",")
	value = strings.ReplaceAll(value, "\\;", ";")
	value = strings.ReplaceAll(value, "\\\\", "\\")
	return strings.TrimSpace(value)
}
