// Package store provides the durable local queue backing the Beacon
// collector: append-only event and identify tables, a scalar key/value
// store, and the global sequence counter.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	beaconerrors "github.com/beaconlabs/beacon/internal/errors"
	"github.com/beaconlabs/beacon/pkg/types"
)

// Schema version tracking:
// 1 - events table + store (string kv)
// 2 - identifys table + long_store (integer kv)
const currentSchemaVersion = 2

// Store is the SQLite-backed durable store. A single write connection is
// shared by the write and upload queues; all operations take the store
// lock because the two queues run on separate execution contexts.
type Store struct {
	db       *sql.DB
	path     string
	maxRows  int64
	mu       sync.Mutex
}

// Open creates or opens the durable store at the given path. maxRows caps
// the pending row count per kind; when an append would exceed it, the
// oldest 10% of rows (minimum 1) are evicted first.
func Open(path string, maxRows int64) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, maxRows: maxRows}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, beaconerrors.NewStorageError(beaconerrors.CodeStoreCorrupt, "failed to open database", err)
	}

	// SQLite supports one writer at a time; keep a single connection so the
	// store lock is the only serialization point.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, beaconerrors.NewStorageError(beaconerrors.CodeStoreCorrupt, "failed to connect to database", err)
	}

	return db, nil
}

// migrate applies additive schema migrations based on PRAGMA user_version.
// A failed statement degrades only the table it targets: the failure is
// logged and migration continues, so initialization never aborts.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return beaconerrors.NewStorageError(beaconerrors.CodeMigrationFailed, "failed to read user_version", err)
	}

	if version < 1 {
		s.execTolerant(`CREATE TABLE IF NOT EXISTS events
			(id INTEGER PRIMARY KEY AUTOINCREMENT, data BLOB NOT NULL)`)
		s.execTolerant(`CREATE TABLE IF NOT EXISTS store
			(key TEXT PRIMARY KEY NOT NULL, value TEXT)`)
	}

	if version < 2 {
		s.execTolerant(`CREATE TABLE IF NOT EXISTS identifys
			(id INTEGER PRIMARY KEY AUTOINCREMENT, data BLOB NOT NULL)`)
		s.execTolerant(`CREATE TABLE IF NOT EXISTS long_store
			(key TEXT PRIMARY KEY NOT NULL, value INTEGER)`)
	}

	if version < currentSchemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return beaconerrors.NewStorageError(beaconerrors.CodeMigrationFailed, "failed to set user_version", err)
		}
	}

	return nil
}

// execTolerant runs a migration statement, logging failures instead of
// propagating them. The affected table is left unusable until the next
// migration attempt.
func (s *Store) execTolerant(stmt string) {
	if _, err := s.db.Exec(stmt); err != nil {
		log.Printf("store: migration statement failed (table degraded): %v", err)
	}
}

// Recreate discards the store file and reopens it from scratch. Used when
// the underlying storage is corrupt; unsent rows are lost by design so a
// stuck local store never blocks the host application.
func (s *Store) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("store: failed to remove %s%s during recreate: %v", s.path, suffix, err)
		}
	}

	db, err := openDB(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// tableFor maps a row kind to its table. Each kind has an independent
// auto-increment space.
func tableFor(kind types.Kind) string {
	if kind == types.KindIdentify {
		return "identifys"
	}
	return "events"
}
