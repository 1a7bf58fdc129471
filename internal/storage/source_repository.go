package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rentalsync/backend/internal/storage/models"
)

// SourceRepository provides data access for property calendar feeds.
type SourceRepository struct {
	BaseRepository
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const sourceColumns = `s.id, s.property_id, s.ical_url, s.platform, s.last_synced, s.status, s.created_at, s.updated_at`

// Create inserts a new calendar source in pending state.
func (r *SourceRepository) Create(ctx context.Context, src *models.CalendarSource) error {
	src.ID = GenerateID()
	src.CreatedAt = r.Now()
	src.UpdatedAt = src.CreatedAt
	src.Status = models.SourceStatusPending
	src.LastSynced = nil

	_, err := r.exec(ctx, `
		INSERT INTO property_icals (
			id, property_id, ical_url, platform, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		src.ID, src.PropertyID, src.ICalURL, src.Platform, src.Status, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar source: %w", err)
	}

	return nil
}

// GetByID retrieves a source by its ID. Returns nil if it does not exist.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.CalendarSource, error) {
	return r.scanOne(r.queryRow(ctx, `
		SELECT `+sourceColumns+` FROM property_icals s WHERE s.id = ?
	`, id))
}

// GetOwned retrieves a source only if its property belongs to ownerID.
func (r *SourceRepository) GetOwned(ctx context.Context, id, ownerID string) (*models.CalendarSource, error) {
	return r.scanOne(r.queryRow(ctx, `
		SELECT `+sourceColumns+`
		FROM property_icals s
		JOIN properties p ON p.id = s.property_id
		WHERE s.id = ? AND p.owner_id = ?
	`, id, ownerID))
}

// ListByProperty retrieves all sources of one property.
func (r *SourceRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.CalendarSource, error) {
	rows, err := r.query(ctx, `
		SELECT `+sourceColumns+`
		FROM property_icals s
		WHERE s.property_id = ?
		ORDER BY s.created_at, s.id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying calendar sources: %w", err)
	}
	defer rows.Close()

	var sources []models.CalendarSource
	for rows.Next() {
		var src models.CalendarSource
		if err := rows.Scan(
			&src.ID, &src.PropertyID, &src.ICalURL, &src.Platform,
			&src.LastSynced, &src.Status, &src.CreatedAt, &src.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calendar source: %w", err)
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// Platforms returns the distinct declared platforms of a property's sources.
func (r *SourceRepository) Platforms(ctx context.Context, propertyID string) ([]string, error) {
	rows, err := r.query(ctx, `
		SELECT DISTINCT platform FROM property_icals
		WHERE property_id = ?
		ORDER BY platform
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying platforms: %w", err)
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning platform: %w", err)
		}
		platforms = append(platforms, p)
	}

	return platforms, rows.Err()
}

// UpdateSyncStatus records the outcome of a sync. last_synced only moves
// forward when the feed was actually processed.
func (r *SourceRepository) UpdateSyncStatus(ctx context.Context, id, status string, processed bool) error {
	now := r.Now()
	var lastSynced *time.Time
	if processed {
		lastSynced = &now
	}

	_, err := r.exec(ctx, `
		UPDATE property_icals SET
			status = ?, last_synced = COALESCE(?, last_synced), updated_at = ?
		WHERE id = ?
	`, status, lastSynced, now, id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

// Delete removes a source owned (through its property) by ownerID.
// Bookings imported from it cascade.
func (r *SourceRepository) Delete(ctx context.Context, id, ownerID string) error {
	result, err := r.exec(ctx, `
		DELETE FROM property_icals
		WHERE id = ? AND property_id IN (SELECT id FROM properties WHERE owner_id = ?)
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting calendar source: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("calendar source %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *SourceRepository) scanOne(row *sql.Row) (*models.CalendarSource, error) {
	src := &models.CalendarSource{}
	err := row.Scan(
		&src.ID, &src.PropertyID, &src.ICalURL, &src.Platform,
		&src.LastSynced, &src.Status, &src.CreatedAt, &src.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar source: %w", err)
	}
	return src, nil
}
