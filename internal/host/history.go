package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so created_at sorts as text.
	historyTimeFormat = "2006-01-02T15:04:05.000000Z"
)

// HistoryState is the JSON snapshot stored per state change.
type HistoryState struct {
	State      any            `json:"state"`
	Unit       string         `json:"unit,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// HistoryEntry is one recorded entity state change.
type HistoryEntry struct {
	ID        int64        `json:"id"`
	UniqueID  string       `json:"unique_id"`
	EntityID  string       `json:"entity_id"`
	State     HistoryState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// HistoryStore keeps a local log of entity state changes in SQLite, so
// recent history is available even without InfluxDB.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a store backed by the entity_state_history table.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record appends a state change for an entity.
func (s *HistoryStore) Record(ctx context.Context, uniqueID, entityID string, state HistoryState, at time.Time) error {
	if uniqueID == "" {
		return fmt.Errorf("unique id is required")
	}
	if at.IsZero() {
		at = time.Now()
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO entity_state_history (unique_id, entity_id, state, created_at) VALUES (?, ?, ?, ?)",
		uniqueID, entityID, string(stateJSON), at.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// History returns recent entries for uniqueID, newest first. limit is
// clamped to [1, 200] with 50 as the default; a non-zero since drops
// entries at or before it.
func (s *HistoryStore) History(ctx context.Context, uniqueID string, limit int, since time.Time) ([]HistoryEntry, error) {
	if uniqueID == "" {
		return nil, fmt.Errorf("unique id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unique_id, entity_id, state, created_at
		 FROM entity_state_history
		 WHERE unique_id = ? AND created_at > ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		uniqueID, since.UTC().Format(historyTimeFormat), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var stateJSON, createdAt string
		if err := rows.Scan(&entry.ID, &entry.UniqueID, &entry.EntityID, &stateJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		createdTime, err := time.Parse(historyTimeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.CreatedAt = createdTime
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many went.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := s.db.ExecContext(ctx, "DELETE FROM entity_state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Delete removes every entry recorded for uniqueID.
func (s *HistoryStore) Delete(ctx context.Context, uniqueID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entity_state_history WHERE unique_id = ?", uniqueID); err != nil {
		return fmt.Errorf("deleting state history: %w", err)
	}
	return nil
}
