package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/storage/models"
)

// Notifier receives sync outcomes. Implementations must not block for long.
type Notifier interface {
	SyncFinished(ctx context.Context, ownerID string, result models.SyncResult)
	ConflictsDetected(ctx context.Context, ownerID string, detections []models.ConflictDetection)
}

// SyncService reconciles calendar feeds into bookings.
type SyncService struct {
	properties *storage.PropertyRepository
	sources    *storage.SourceRepository
	bookings   *storage.BookingRepository
	fetcher    *Fetcher
	parser     *Parser
	notifier   Notifier
	log        *logger.Logger

	cancelMissing bool
	locks         *keyedMutex
}

// NewSyncService creates a new calendar sync service.
func NewSyncService(
	properties *storage.PropertyRepository,
	sources *storage.SourceRepository,
	bookings *storage.BookingRepository,
	fetcher *Fetcher,
	log *logger.Logger,
) *SyncService {
	return &SyncService{
		properties: properties,
		sources:    sources,
		bookings:   bookings,
		fetcher:    fetcher,
		parser:     NewParser(),
		log:        log,
		locks:      newKeyedMutex(),
	}
}

// WithNotifier sets the receiver of sync and conflict events.
func (s *SyncService) WithNotifier(n Notifier) *SyncService {
	s.notifier = n
	return s
}

// WithCancelMissing enables cancelling bookings whose UID vanished from a
// successfully fetched feed.
func (s *SyncService) WithCancelMissing(enabled bool) *SyncService {
	s.cancelMissing = enabled
	return s
}

// SyncSource fetches, parses and reconciles one calendar source. It never
// returns an error: every failure ends up in the result.
func (s *SyncService) SyncSource(ctx context.Context, src models.CalendarSource) models.SyncResult {
	unlock := s.locks.Lock(src.ID)
	defer unlock()

	result := models.SyncResult{
		PropertyID:   src.PropertyID,
		ICalSourceID: src.ID,
		SyncedAt:     time.Now().UTC(),
	}

	feed, err := s.load(ctx, src)
	if err != nil {
		addFailure(&result, err)
		result.Status = models.SourceStatusError
		s.log.Warn("calendar sync failed",
			"source_id", src.ID, "property_id", src.PropertyID,
			"code", errorCode(err), "error", err)

		if err := s.sources.UpdateSyncStatus(ctx, src.ID, models.SourceStatusError, false); err != nil {
			s.log.Error("failed to update sync status", "source_id", src.ID, "error", err)
		}
		s.notifySync(ctx, src.PropertyID, result)
		return result
	}

	seen := make(map[string]bool, len(feed.Events)+len(feed.Rejected))
	for _, rejected := range feed.Rejected {
		if rejected.UID != "" {
			seen[rejected.UID] = true
		}
		addFailure(&result, rejected)
	}

	for _, ev := range feed.Events {
		seen[ev.UID] = true

		created, err := s.upsert(ctx, ev, src, feed.ProdID)
		if err != nil {
			addFailure(&result, err)
			continue
		}
		if created {
			result.NewBookings++
		} else {
			result.UpdatedBookings++
		}
	}

	if s.cancelMissing {
		n, err := s.bookings.CancelMissing(ctx, src.ID, seen)
		if err != nil {
			addFailure(&result, &EventError{Code: CodeStorage, Err: err})
		}
		result.CancelledBookings = n
	}

	result.Success = len(result.Errors) == 0
	result.Status = models.SourceStatusSuccess
	if !result.Success {
		result.Status = models.SourceStatusPartial
	}
	if err := s.sources.UpdateSyncStatus(ctx, src.ID, result.Status, true); err != nil {
		s.log.Error("failed to update sync status", "source_id", src.ID, "error", err)
	}

	s.log.Info("calendar sync completed",
		"source_id", src.ID,
		"property_id", src.PropertyID,
		"url", redactURL(src.ICalURL),
		"events", len(feed.Events),
		"new", result.NewBookings,
		"updated", result.UpdatedBookings,
		"cancelled", result.CancelledBookings,
		"errors", len(result.Errors))

	s.notifySync(ctx, src.PropertyID, result)
	return result
}

func (s *SyncService) load(ctx context.Context, src models.CalendarSource) (*Feed, error) {
	body, err := s.fetcher.Fetch(ctx, src.ICalURL)
	if err != nil {
		return nil, err
	}
	return s.parser.Parse(body)
}

// UpsertBooking writes one parsed event as a booking of src and reports
// whether a new row was created. prodID is the feed's PRODID and feeds the
// platform heuristic.
func (s *SyncService) UpsertBooking(ctx context.Context, ev models.ParsedEvent, src models.CalendarSource, prodID string) (bool, error) {
	unlock := s.locks.Lock(src.ID)
	defer unlock()
	return s.upsert(ctx, ev, src, prodID)
}

func (s *SyncService) upsert(ctx context.Context, ev models.ParsedEvent, src models.CalendarSource, prodID string) (bool, error) {
	if ev.UID == "" {
		return false, &EventError{Code: CodeInvalidEvent, Err: errors.New("missing UID")}
	}
	if !ev.Start.Before(ev.End) {
		return false, &EventError{UID: ev.UID, Code: CodeInvalidRange, Err: errors.New("start is not before end")}
	}

	b := &models.Booking{
		PropertyID:   src.PropertyID,
		ICalSourceID: src.ID,
		BookingUID:   ev.UID,
		Platform:     DetectPlatform(ev.Description, prodID),
		StartDate:    ev.Start,
		EndDate:      ev.End,
		GuestName:    ExtractGuestName(ev),
		Status:       models.BookingStatusConfirmed,
	}

	created, err := s.bookings.Upsert(ctx, b)
	if err != nil {
		return false, &EventError{UID: ev.UID, Code: CodeStorage, Err: err}
	}
	return created, nil
}

// SyncProperty syncs every source of a property in listing order. A
// property without sources yields a single failed result.
func (s *SyncService) SyncProperty(ctx context.Context, propertyID string) []models.SyncResult {
	sources, err := s.sources.ListByProperty(ctx, propertyID)
	if err != nil {
		return []models.SyncResult{failedResult(propertyID, "", fmt.Errorf("failed to fetch iCal URLs: %w", err))}
	}
	if len(sources) == 0 {
		return []models.SyncResult{failedResult(propertyID, "", ErrNoSources)}
	}

	results := make([]models.SyncResult, 0, len(sources))
	for _, src := range sources {
		results = append(results, s.SyncSource(ctx, src))
	}

	s.reportConflicts(ctx, propertyID)
	return results
}

// SyncAllUserProperties syncs every property of ownerID. An owner without
// properties yields a single failed result.
func (s *SyncService) SyncAllUserProperties(ctx context.Context, ownerID string) []models.SyncResult {
	properties, err := s.properties.ListByOwner(ctx, ownerID)
	if err != nil {
		return []models.SyncResult{failedResult("", "", fmt.Errorf("failed to fetch user properties: %w", err))}
	}
	if len(properties) == 0 {
		return []models.SyncResult{failedResult("", "", ErrNoProperties)}
	}

	var results []models.SyncResult
	for _, p := range properties {
		results = append(results, s.SyncProperty(ctx, p.ID)...)
	}
	return results
}

// SyncAll syncs every property of every owner.
func (s *SyncService) SyncAll(ctx context.Context) ([]models.SyncResult, error) {
	properties, err := s.properties.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}

	var results []models.SyncResult
	for _, p := range properties {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, s.SyncProperty(ctx, p.ID)...)
	}
	return results, nil
}

// GetSyncStatus returns each owned property with its sources' sync state.
func (s *SyncService) GetSyncStatus(ctx context.Context, ownerID string) ([]models.PropertySyncStatus, error) {
	properties, err := s.properties.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync status: %w", err)
	}

	out := make([]models.PropertySyncStatus, 0, len(properties))
	for _, p := range properties {
		sources, err := s.sources.ListByProperty(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sync status: %w", err)
		}

		status := models.PropertySyncStatus{
			ID:      p.ID,
			Title:   p.Title,
			Sources: make([]models.SourceSyncStatus, 0, len(sources)),
		}
		for _, src := range sources {
			status.Sources = append(status.Sources, models.SourceSyncStatus{
				ID:         src.ID,
				Platform:   src.Platform,
				LastSynced: src.LastSynced,
				Status:     src.Status,
			})
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *SyncService) notifySync(ctx context.Context, propertyID string, result models.SyncResult) {
	if s.notifier == nil {
		return
	}
	ownerID, ok := s.ownerOf(ctx, propertyID)
	if !ok {
		return
	}
	s.notifier.SyncFinished(ctx, ownerID, result)
}

func (s *SyncService) reportConflicts(ctx context.Context, propertyID string) {
	if s.notifier == nil {
		return
	}

	rows, err := s.bookings.List(ctx, models.BookingFilter{PropertyID: propertyID})
	if err != nil {
		s.log.Error("failed to load bookings for conflict check", "property_id", propertyID, "error", err)
		return
	}

	detections := booking.Detect(booking.ToCalendarEvents(rows))
	if len(detections) == 0 {
		return
	}

	ownerID, ok := s.ownerOf(ctx, propertyID)
	if !ok {
		return
	}
	s.log.Info("booking conflicts detected", "property_id", propertyID, "conflicts", booking.ConflictCount(detections))
	s.notifier.ConflictsDetected(ctx, ownerID, detections)
}

func (s *SyncService) ownerOf(ctx context.Context, propertyID string) (string, bool) {
	p, err := s.properties.GetByID(ctx, propertyID)
	if err != nil || p == nil {
		if err != nil {
			s.log.Error("failed to resolve property owner", "property_id", propertyID, "error", err)
		}
		return "", false
	}
	return p.OwnerID, true
}

func failedResult(propertyID, sourceID string, err error) models.SyncResult {
	r := models.SyncResult{
		PropertyID:   propertyID,
		ICalSourceID: sourceID,
		Status:       models.SourceStatusError,
		SyncedAt:     time.Now().UTC(),
	}
	addFailure(&r, err)
	return r
}

func addFailure(r *models.SyncResult, err error) {
	f := models.EventFailure{Code: errorCode(err), Message: err.Error()}

	var ee *EventError
	if errors.As(err, &ee) {
		f.UID = ee.UID
	}

	r.Errors = append(r.Errors, f.Message)
	r.Failures = append(r.Failures, f)
	r.Success = false
}
