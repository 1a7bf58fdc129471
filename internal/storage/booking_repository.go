package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentalsync/backend/internal/storage/models"
)

// BookingRepository provides data access for reconciled bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const bookingColumns = `b.id, b.property_id, b.ical_source_id, b.booking_uid, b.platform,
	b.start_date, b.end_date, b.guest_name, b.status, b.created_at, b.updated_at`

// Upsert inserts the booking or, when (booking_uid, ical_source_id) already
// exists, overwrites its mutable fields. The statement is a single atomic
// write so concurrent syncs of the same source cannot race into a duplicate.
// It reports whether a new row was created and fills b.ID with the stored id.
func (r *BookingRepository) Upsert(ctx context.Context, b *models.Booking) (bool, error) {
	candidate := GenerateID()
	now := r.Now()
	if b.Status == "" {
		b.Status = models.BookingStatusConfirmed
	}

	var id string
	err := r.queryRow(ctx, `
		INSERT INTO bookings (
			id, property_id, ical_source_id, booking_uid, platform,
			start_date, end_date, guest_name, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (booking_uid, ical_source_id) DO UPDATE SET
			platform = excluded.platform,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			guest_name = excluded.guest_name,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		candidate, b.PropertyID, b.ICalSourceID, b.BookingUID, b.Platform,
		formatDate(b.StartDate), formatDate(b.EndDate), nullableString(b.GuestName),
		b.Status, now, now,
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("upserting booking %s: %w", b.BookingUID, err)
	}

	b.ID = id
	b.UpdatedAt = now
	created := id == candidate
	if created {
		b.CreatedAt = now
	}

	return created, nil
}

// GetByUID retrieves the booking for one feed UID. Returns nil if absent.
func (r *BookingRepository) GetByUID(ctx context.Context, sourceID, uid string) (*models.Booking, error) {
	row := r.queryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.ical_source_id = ? AND b.booking_uid = ?
	`, sourceID, uid)

	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}
	return b, nil
}

// ListBySource retrieves every booking imported from one source.
func (r *BookingRepository) ListBySource(ctx context.Context, sourceID string) ([]models.Booking, error) {
	rows, err := r.query(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.ical_source_id = ?
		ORDER BY b.start_date, b.booking_uid
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// CancelMissing marks confirmed bookings of a source as cancelled when their
// UID is not in seen. Returns the number of bookings cancelled.
func (r *BookingRepository) CancelMissing(ctx context.Context, sourceID string, seen map[string]bool) (int, error) {
	existing, err := r.ListBySource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, b := range existing {
		if b.Status == models.BookingStatusConfirmed && !seen[b.BookingUID] {
			stale = append(stale, b.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	now := r.Now()
	err = r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, r.DB().Rebind(`
				UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?
			`), models.BookingStatusCancelled, now, id); err != nil {
				return fmt.Errorf("cancelling booking %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(stale), nil
}

// List retrieves confirmed bookings joined with their property title.
// Cancelled bookings are never returned.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingWithProperty, error) {
	var (
		where = []string{"b.status = ?"}
		args  = []any{models.BookingStatusConfirmed}
	)
	if filter.OwnerID != "" {
		where = append(where, "p.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.PropertyID != "" {
		where = append(where, "b.property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if filter.Platform != "" {
		where = append(where, "b.platform = ?")
		args = append(args, filter.Platform)
	}

	rows, err := r.query(ctx, `
		SELECT `+bookingColumns+`, p.title
		FROM bookings b
		JOIN properties p ON p.id = b.property_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY b.start_date, b.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var out []models.BookingWithProperty
	for rows.Next() {
		var (
			bw         models.BookingWithProperty
			start, end string
			guest      sql.NullString
		)
		if err := rows.Scan(
			&bw.ID, &bw.PropertyID, &bw.ICalSourceID, &bw.BookingUID, &bw.Platform,
			&start, &end, &guest, &bw.Status, &bw.CreatedAt, &bw.UpdatedAt,
			&bw.PropertyTitle,
		); err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		if err := fillBookingDates(&bw.Booking, start, end, guest); err != nil {
			return nil, err
		}
		out = append(out, bw)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		guest      sql.NullString
	)
	if err := row.Scan(
		&b.ID, &b.PropertyID, &b.ICalSourceID, &b.BookingUID, &b.Platform,
		&start, &end, &guest, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fillBookingDates(&b, start, end, guest); err != nil {
		return nil, err
	}
	return &b, nil
}

func fillBookingDates(b *models.Booking, start, end string, guest sql.NullString) error {
	var err error
	if b.StartDate, err = parseDate(start); err != nil {
		return fmt.Errorf("booking %s start_date: %w", b.ID, err)
	}
	if b.EndDate, err = parseDate(end); err != nil {
		return fmt.Errorf("booking %s end_date: %w", b.ID, err)
	}
	if guest.Valid {
		g := guest.String
		b.GuestName = &g
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, s, time.UTC)
}
