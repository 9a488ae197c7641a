// Package journal keeps a local sqlite record of every print job.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

//go:embed schema.sql
var schema string

// Status is the outcome of a print job.
type Status string

const (
	StatusPrinted   Status = "printed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one journaled print job.
type Entry struct {
	ID         string
	Kind       string
	CustomerID string
	Amount     int64
	Number     string // receipt number, empty for non-receipt jobs
	Bytes      int
	Chunks     int
	Status     Status
	Error      string
	Digest     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the job took.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a sqlite-backed journal.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the journal database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path))
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: initialising schema: %w", err)
	}
	log.Debug("[JOURNAL] opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e, replacing any entry with the same ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("journal: entry has no id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO print_job
		  (id, kind, customer_id, amount, number, bytes, chunks, status, error, digest, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.CustomerID, e.Amount, e.Number, e.Bytes, e.Chunks,
		string(e.Status), e.Error, e.Digest, e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.ID, err)
	}
	s.log.Debug("[JOURNAL] recorded", zap.String("id", e.ID), zap.String("status", string(e.Status)))
	return nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns
// every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, customer_id, amount, number, bytes, chunks, status, error, digest, started_at, finished_at
		FROM print_job
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var status string
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.CustomerID, &e.Amount, &e.Number, &e.Bytes, &e.Chunks,
			&status, &e.Error, &e.Digest, &started, &finished); err != nil {
			return nil, fmt.Errorf("journal: scanning row: %w", err)
		}
		e.Status = Status(status)
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating rows: %w", err)
	}
	return entries, nil
}

// Digest fingerprints a command stream so reprints of identical output
// can be recognised.
func Digest(stream []byte) string {
	sum := blake2b.Sum256(stream)
	return hex.EncodeToString(sum[:16])
}
