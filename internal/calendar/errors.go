package calendar

import (
	"errors"
	"fmt"
)

// Sentinels reported through synthetic SyncResults rather than returned.
var (
	ErrNoSources    = errors.New("No iCal URLs found for this property")
	ErrNoProperties = errors.New("No properties found for this user")
)

// ErrFeedTooLarge is wrapped in a *FetchError when a feed body exceeds the
// fetcher's size limit.
var ErrFeedTooLarge = errors.New("feed too large")

// Per-event failure codes.
const (
	CodeInvalidEvent = "invalid_event"
	CodeInvalidRange = "invalid_range"
	CodeStorage      = "storage_error"
	CodeFetch        = "fetch_error"
	CodeParse        = "parse_error"
	CodeNoSources    = "no_sources"
	CodeNoProperties = "no_properties"
	CodeInternal     = "internal_error"
)

// FetchError means the feed could not be retrieved: the transport failed or
// the server answered with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch feed %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the document is not a usable calendar as a whole.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EventError is a failure confined to one VEVENT. It never aborts a sync.
type EventError struct {
	UID  string
	Code string
	Err  error
}

func (e *EventError) Error() string {
	uid := e.UID
	if uid == "" {
		uid = "<no uid>"
	}
	return fmt.Sprintf("failed to process booking %s: %v", uid, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// errorCode maps an error to its structured failure code.
func errorCode(err error) string {
	var (
		fe *FetchError
		pe *ParseError
		ee *EventError
	)
	switch {
	case errors.Is(err, ErrNoSources):
		return CodeNoSources
	case errors.Is(err, ErrNoProperties):
		return CodeNoProperties
	case errors.As(err, &ee):
		return ee.Code
	case errors.As(err, &fe):
		return CodeFetch
	case errors.As(err, &pe):
		return CodeParse
	default:
		return CodeInternal
	}
}
