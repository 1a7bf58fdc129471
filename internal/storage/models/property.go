package models

import "time"

// Property is a rental unit owned by a landlord.
type Property struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Rooms       int       `json:"rooms"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PropertyWithSources combines a property with its calendar sources.
type PropertyWithSources struct {
	Property
	Sources []CalendarSource `json:"property_icals"`
}

// SourceSyncStatus is the read-only sync projection of one source.
type SourceSyncStatus struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	Status     string     `json:"status"`
}

// PropertySyncStatus is the sync projection of a property and its sources.
type PropertySyncStatus struct {
	ID      string             `json:"id"`
	Title   string             `json:"title"`
	Sources []SourceSyncStatus `json:"property_icals"`
}
