package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	restoreEnc cbor.EncMode
	restoreDec cbor.DecMode
)

func init() {
	var err error

	restoreEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("restore: creating CBOR encoder mode: %v", err))
	}

	// Nested maps come back as map[string]any and integers as int64, so
	// restored values compare equal to what the behaviours stored.
	restoreDec, err = cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("restore: creating CBOR decoder mode: %v", err))
	}
}

// RestoreStore persists each entity's extra restore data as a CBOR blob.
type RestoreStore struct {
	db *sql.DB
}

// NewRestoreStore creates a store backed by the entity_restore_state table.
func NewRestoreStore(db *sql.DB) *RestoreStore {
	return &RestoreStore{db: db}
}

// Save replaces the stored data for uniqueID.
func (s *RestoreStore) Save(ctx context.Context, uniqueID string, data map[string]any) error {
	blob, err := restoreEnc.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding restore data for %s: %w", uniqueID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_restore_state (unique_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(unique_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		uniqueID, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving restore data for %s: %w", uniqueID, err)
	}
	return nil
}

// Load returns the stored data for uniqueID, or nil when none exists.
func (s *RestoreStore) Load(ctx context.Context, uniqueID string) (map[string]any, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM entity_restore_state WHERE unique_id = ?", uniqueID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading restore data for %s: %w", uniqueID, err)
	}

	var data map[string]any
	if err := restoreDec.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("decoding restore data for %s: %w", uniqueID, err)
	}
	return data, nil
}

// Delete removes stored data for uniqueID. Deleting a missing row is not an error.
func (s *RestoreStore) Delete(ctx context.Context, uniqueID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM entity_restore_state WHERE unique_id = ?", uniqueID,
	); err != nil {
		return fmt.Errorf("deleting restore data for %s: %w", uniqueID, err)
	}
	return nil
}
