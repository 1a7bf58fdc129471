package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rentalsync/backend/internal/storage/models"
)

// PropertyRepository provides data access for properties.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const propertyColumns = `id, owner_id, title, description, location, rooms, created_at, updated_at`

// Create inserts a new property.
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	p.ID = GenerateID()
	p.CreatedAt = r.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.exec(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.OwnerID, p.Title, p.Description, p.Location, p.Rooms, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}

	return nil
}

// GetByID retrieves a property by its ID. Returns nil if it does not exist.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	return r.scanOne(r.queryRow(ctx, `
		SELECT `+propertyColumns+` FROM properties WHERE id = ?
	`, id))
}

// GetOwned retrieves a property only if it belongs to ownerID.
func (r *PropertyRepository) GetOwned(ctx context.Context, id, ownerID string) (*models.Property, error) {
	return r.scanOne(r.queryRow(ctx, `
		SELECT `+propertyColumns+` FROM properties WHERE id = ? AND owner_id = ?
	`, id, ownerID))
}

// ListByOwner retrieves all properties of one owner.
func (r *PropertyRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Property, error) {
	rows, err := r.query(ctx, `
		SELECT `+propertyColumns+` FROM properties
		WHERE owner_id = ?
		ORDER BY title, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	return scanProperties(rows)
}

// ListAll retrieves every property regardless of owner.
func (r *PropertyRepository) ListAll(ctx context.Context) ([]models.Property, error) {
	rows, err := r.query(ctx, `
		SELECT `+propertyColumns+` FROM properties ORDER BY owner_id, title, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	return scanProperties(rows)
}

// Delete removes an owned property. Its sources and bookings cascade.
func (r *PropertyRepository) Delete(ctx context.Context, id, ownerID string) error {
	result, err := r.exec(ctx, "DELETE FROM properties WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting property: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("property %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *PropertyRepository) scanOne(row *sql.Row) (*models.Property, error) {
	p := &models.Property{}
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Location, &p.Rooms,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}
	return p, nil
}

func scanProperties(rows *sql.Rows) ([]models.Property, error) {
	var properties []models.Property
	for rows.Next() {
		var p models.Property
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Location, &p.Rooms,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}
