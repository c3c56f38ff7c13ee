// Package sqlindex maintains a SQLite index of persisted layer records
// under the indexes/ namespace. The index survives process exit so a later
// replay run can resolve record ids without scanning the layers directory.
package sqlindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

// Index is a SQLite-backed record index.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index database at dbPath.
func Open(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	ix := &Index{db: db}
	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	return ix, nil
}

func (ix *Index) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			layer TEXT NOT NULL,
			operation TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := ix.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts a ledger entry. Re-appending the same record id is an error.
func (ix *Index) Append(ctx context.Context, entry *domain.IndexEntry) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO records (id, session_id, layer, operation, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RecordID, entry.SessionID, entry.Layer, string(entry.Operation),
		entry.FilePath, entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.ErrStorageIO("index_append", err).WithEntity(entry.RecordID)
	}
	return nil
}

// Lookup resolves a record id to its ledger entry.
func (ix *Index) Lookup(ctx context.Context, recordID string) (*domain.IndexEntry, error) {
	row := ix.db.QueryRowContext(ctx,
		`SELECT id, session_id, layer, operation, path, created_at
		 FROM records WHERE id = ?`, recordID)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordNotFound(recordID)
	}
	if err != nil {
		return nil, domain.ErrStorageIO("index_lookup", err).WithEntity(recordID)
	}
	return entry, nil
}

// BySession returns all ledger entries of a session ordered by capture time.
func (ix *Index) BySession(ctx context.Context, sessionID string) ([]*domain.IndexEntry, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, session_id, layer, operation, path, created_at
		 FROM records WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, domain.ErrStorageIO("index_by_session", err).WithEntity(sessionID)
	}
	defer rows.Close()

	var entries []*domain.IndexEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, domain.ErrStorageIO("index_by_session", err).WithEntity(sessionID)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStorageIO("index_by_session", err).WithEntity(sessionID)
	}
	return entries, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.IndexEntry, error) {
	var entry domain.IndexEntry
	var op, createdAt string
	if err := row.Scan(&entry.RecordID, &entry.SessionID, &entry.Layer, &op, &entry.FilePath, &createdAt); err != nil {
		return nil, err
	}
	entry.Operation = domain.Operation(op)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = ts
	return &entry, nil
}
