package store

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/golang/snappy"

	beaconerrors "github.com/beaconlabs/beacon/internal/errors"
	"github.com/beaconlabs/beacon/pkg/types"
)

// Append durably writes a record and returns its storage-assigned row id.
// If the table is at the row cap, the oldest 10% of rows (minimum 1) are
// evicted before the insert.
func (s *Store) Append(kind types.Kind, ev *types.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := tableFor(kind)

	count, err := s.countLocked(table)
	if err != nil {
		return 0, err
	}
	if s.maxRows > 0 && count >= s.maxRows {
		if err := s.evictOldestLocked(table); err != nil {
			return 0, err
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, beaconerrors.NewStorageError(beaconerrors.CodeAppendFailed, "failed to serialize record", err)
	}

	res, err := s.db.Exec(
		fmt.Sprintf("INSERT INTO %s (data) VALUES (?)", table),
		snappy.Encode(nil, payload),
	)
	if err != nil {
		return 0, beaconerrors.NewStorageError(beaconerrors.CodeAppendFailed, "failed to insert record", err)
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, beaconerrors.NewStorageError(beaconerrors.CodeAppendFailed, "failed to read row id", err)
	}
	return rowID, nil
}

// evictOldestLocked removes the oldest 10% of rows (minimum 1) from the
// table. This is the bounded-storage guarantee: the cap is enforced before
// every insert, never more than the cap is removed. Caller must hold s.mu.
func (s *Store) evictOldestLocked(table string) error {
	evict := s.maxRows / 10
	if evict < 1 {
		evict = 1
	}

	_, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT id FROM %s ORDER BY id ASC LIMIT ?)", table, table),
		evict,
	)
	if err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to evict oldest rows", err)
	}
	log.Printf("store: evicted %d oldest rows from %s (cap %d)", evict, table, s.maxRows)
	return nil
}

// Read returns rows of the given kind in row-id order. upToID limits the
// scan to rows with id <= upToID (pass -1 for no bound); limit caps the
// number of rows returned (pass -1 for no cap).
func (s *Store) Read(kind types.Kind, upToID int64, limit int64) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := tableFor(kind)

	query := fmt.Sprintf("SELECT id, data FROM %s", table)
	args := []interface{}{}
	if upToID >= 0 {
		query += " WHERE id <= ?"
		args = append(args, upToID)
	}
	query += " ORDER BY id ASC"
	if limit >= 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to read rows", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var rowID int64
		var blob []byte
		if err := rows.Scan(&rowID, &blob); err != nil {
			return nil, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to scan row", err)
		}

		payload, err := snappy.Decode(nil, blob)
		if err != nil {
			// A corrupt blob cannot be replayed; skip it rather than wedge
			// the upload pipeline on one bad row.
			log.Printf("store: skipping corrupt row %d in %s: %v", rowID, table, err)
			continue
		}

		var ev types.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("store: skipping unreadable row %d in %s: %v", rowID, table, err)
			continue
		}
		ev.RowID = rowID
		ev.Kind = kind
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "error iterating rows", err)
	}

	return out, nil
}

// DeleteUpTo removes all rows of the given kind with id <= rowID. Used to
// clear acknowledged rows after a successful upload.
func (s *Store) DeleteUpTo(kind types.Kind, rowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id <= ?", tableFor(kind)),
		rowID,
	)
	if err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to delete acknowledged rows", err)
	}
	return nil
}

// DeleteByID removes a single row. Used for poison-pill removal when a
// single-row batch is rejected as too large.
func (s *Store) DeleteByID(kind types.Kind, rowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", tableFor(kind)),
		rowID,
	)
	if err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to delete row", err)
	}
	return nil
}

// Count returns the number of pending rows of the given kind.
func (s *Store) Count(kind types.Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(tableFor(kind))
}

// TotalCount returns the number of pending rows across both kinds.
func (s *Store) TotalCount() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.countLocked("events")
	if err != nil {
		return 0, err
	}
	identifys, err := s.countLocked("identifys")
	if err != nil {
		return 0, err
	}
	return events + identifys, nil
}

func (s *Store) countLocked(table string) (int64, error) {
	var count int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, beaconerrors.NewStorageError(beaconerrors.CodeQueryFailed, "failed to count rows", err)
	}
	return count, nil
}
