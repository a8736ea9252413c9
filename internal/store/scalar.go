package store

import (
	"database/sql"

	beaconerrors "github.com/beaconlabs/beacon/internal/errors"
)

// Scalar state keys. Each key is owned by exactly one component: the
// sequencer owns the counter, the session manager owns session/time fields,
// the upload engine owns backoff fields.
const (
	KeyDeviceID          = "device_id"
	KeyUserID            = "user_id"
	KeyOptOut            = "opt_out"
	KeyPreviousSessionID = "previous_session_id"
	KeyLastEventTime     = "last_event_time"
	KeyLastEventID       = "last_event_id"
	KeyLastIdentifyID    = "last_identify_id"
	KeySequenceNumber    = "sequence_number"
	KeyBackoffBatchSize  = "backoff_batch_size"
)

// GetString reads a string scalar. The second return value reports whether
// the key exists.
func (s *Store) GetString(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM store WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to read scalar", err)
	}
	return value.String, value.Valid, nil
}

// SetString durably writes a string scalar.
func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO store (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeAppendFailed, "failed to write scalar", err)
	}
	return nil
}

// DeleteString removes a string scalar.
func (s *Store) DeleteString(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM store WHERE key = ?", key); err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to delete scalar", err)
	}
	return nil
}

// GetLong reads an integer scalar. The second return value reports whether
// the key exists.
func (s *Store) GetLong(key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLongLocked(key)
}

func (s *Store) getLongLocked(key string) (int64, bool, error) {
	var value sql.NullInt64
	err := s.db.QueryRow("SELECT value FROM long_store WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to read long scalar", err)
	}
	return value.Int64, value.Valid, nil
}

// SetLong durably writes an integer scalar.
func (s *Store) SetLong(key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLongLocked(key, value)
}

func (s *Store) setLongLocked(key string, value int64) error {
	_, err := s.db.Exec(
		"INSERT INTO long_store (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeAppendFailed, "failed to write long scalar", err)
	}
	return nil
}

// DeleteLong removes an integer scalar.
func (s *Store) DeleteLong(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM long_store WHERE key = ?", key); err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to delete long scalar", err)
	}
	return nil
}

// NextSequenceNumber increments and persists the global sequence counter
// and returns the new value. The read-increment-write runs under the store
// lock so no two records can be assigned the same number; callers must
// invoke it on the same execution context as the write it orders.
func (s *Store) NextSequenceNumber() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _, err := s.getLongLocked(KeySequenceNumber)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.setLongLocked(KeySequenceNumber, next); err != nil {
		return 0, err
	}
	return next, nil
}
