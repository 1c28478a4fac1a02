// ABOUTME: SQLite-backed BlobStorage, a reference implementation of the container's external storage collaborator.
// ABOUTME: This is the subsystem's only persistence engine. The collection itself never reads a BlobStorage: remote stores load only the blobs inlined in their attach snapshot.

package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrBlobNotFound is returned when no blob with the given id exists.
var ErrBlobNotFound = errors.New("blob not found")

// Store is a SQL-backed implementation of dstore.BlobStorage.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens a SQLite-backed blob store at path. Parent
// directories are created if needed; ":memory:" opens an ephemeral
// in-process database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating blob store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "blobstore")}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating blob schema: %w", err)
	}
	return nil
}

// WriteBlob stores content under id, overwriting any prior content.
func (s *Store) WriteBlob(ctx context.Context, id string, content []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO blobs(id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id, content)
	if err != nil {
		return fmt.Errorf("writing blob %q: %w", id, err)
	}
	return nil
}

// ReadBlob implements dstore.BlobStorage.
func (s *Store) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %q: %w", id, err)
	}
	return data, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
