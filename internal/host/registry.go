package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// maxEntityIDSuffix bounds the search for a free entity ID.
const maxEntityIDSuffix = 1000

// RegistryEntry is the persistent record of one entity.
type RegistryEntry struct {
	ID        string    `json:"id"`
	UniqueID  string    `json:"unique_id"`
	EntityID  string    `json:"entity_id"`
	DeviceID  string    `json:"device_id"`
	Domain    string    `json:"domain"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityRegistry persists the unique_id → entity_id assignment so entity
// IDs stay stable across restarts, even if derivation rules change.
type EntityRegistry struct {
	db *sql.DB
}

// NewEntityRegistry creates a registry backed by the entity_registry table.
func NewEntityRegistry(db *sql.DB) *EntityRegistry {
	return &EntityRegistry{db: db}
}

// Register returns the stored entry for entry.UniqueID, creating it if
// needed. An existing entry keeps its entity ID; only device, domain and
// platform are refreshed. A new entry whose entity ID is already taken
// gets a numeric suffix ("sensor.x_2").
func (r *EntityRegistry) Register(ctx context.Context, entry RegistryEntry) (RegistryEntry, error) {
	if entry.UniqueID == "" || entry.EntityID == "" {
		return RegistryEntry{}, fmt.Errorf("%w: unique_id and entity_id are required", ErrInvalidEntry)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return RegistryEntry{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := scanEntry(tx.QueryRowContext(ctx, selectEntry+" WHERE unique_id = ?", entry.UniqueID))
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			"UPDATE entity_registry SET device_id = ?, domain = ?, platform = ?, updated_at = ? WHERE unique_id = ?",
			entry.DeviceID, entry.Domain, entry.Platform, now, entry.UniqueID,
		); err != nil {
			return RegistryEntry{}, fmt.Errorf("updating registry entry: %w", err)
		}
		existing.DeviceID = entry.DeviceID
		existing.Domain = entry.Domain
		existing.Platform = entry.Platform
		if err := tx.Commit(); err != nil {
			return RegistryEntry{}, fmt.Errorf("committing registry entry: %w", err)
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return RegistryEntry{}, err
	}

	entityID, err := freeEntityID(ctx, tx, entry.EntityID)
	if err != nil {
		return RegistryEntry{}, err
	}

	entry.ID = uuid.NewString()
	entry.EntityID = entityID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entity_registry (unique_id, id, entity_id, device_id, domain, platform, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UniqueID, entry.ID, entry.EntityID, entry.DeviceID, entry.Domain, entry.Platform, now, now,
	); err != nil {
		return RegistryEntry{}, fmt.Errorf("inserting registry entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return RegistryEntry{}, fmt.Errorf("committing registry entry: %w", err)
	}

	entry.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is ours
	entry.UpdatedAt = entry.CreatedAt
	return entry, nil
}

// freeEntityID returns want, or want_N for the smallest free N >= 2.
func freeEntityID(ctx context.Context, tx *sql.Tx, want string) (string, error) {
	candidate := want
	for n := 2; n <= maxEntityIDSuffix; n++ {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM entity_registry WHERE entity_id = ?", candidate,
		).Scan(&count); err != nil {
			return "", fmt.Errorf("checking entity id: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = want + "_" + strconv.Itoa(n)
	}
	return "", fmt.Errorf("%w: no free entity id for %s", ErrInvalidEntry, want)
}

// Get returns the entry for uniqueID.
func (r *EntityRegistry) Get(ctx context.Context, uniqueID string) (RegistryEntry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+" WHERE unique_id = ?", uniqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return RegistryEntry{}, fmt.Errorf("%w: %s", ErrEntityNotFound, uniqueID)
	}
	return entry, err
}

// List returns all entries ordered by entity ID.
func (r *EntityRegistry) List(ctx context.Context) ([]RegistryEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+" ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("querying registry: %w", err)
	}
	defer rows.Close()

	var entries []RegistryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registry: %w", err)
	}
	return entries, nil
}

// Remove deletes the entry for uniqueID, freeing its entity ID.
func (r *EntityRegistry) Remove(ctx context.Context, uniqueID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM entity_registry WHERE unique_id = ?", uniqueID)
	if err != nil {
		return fmt.Errorf("deleting registry entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return fmt.Errorf("%w: %s", ErrEntityNotFound, uniqueID)
	}
	return nil
}

const selectEntry = `SELECT unique_id, id, entity_id, device_id, domain, platform, created_at, updated_at
	FROM entity_registry`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (RegistryEntry, error) {
	var e RegistryEntry
	var created, updated string
	if err := row.Scan(&e.UniqueID, &e.ID, &e.EntityID, &e.DeviceID, &e.Domain, &e.Platform, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RegistryEntry{}, err
		}
		return RegistryEntry{}, fmt.Errorf("scanning registry entry: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created) //nolint:errcheck // format is ours
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // format is ours
	return e, nil
}
