// Package history keeps a local record of completed retrievals. Uses
// SQLite so past runs survive across invocations without any server-side
// state.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Retrieval is one completed retrieve run.
type Retrieval struct {
	ID          string
	CreatedAt   time.Time
	Profiles    []string
	MemberCount int
	OutputDir   string
}

// Store provides durable storage for retrieval history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at the given path. Applies
// required pragmas and the schema automatically; safe to call repeatedly.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one completed retrieval.
func (s *Store) Record(ctx context.Context, r Retrieval) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retrievals (id, created_at, profiles, member_count, output_dir)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		strings.Join(r.Profiles, ","),
		r.MemberCount,
		r.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("record retrieval: %w", err)
	}
	return nil
}

// List returns the most recent retrievals, newest first, up to limit.
// A non-positive limit returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Retrieval, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats negative LIMIT as unlimited
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, profiles, member_count, output_dir
		 FROM retrievals
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list retrievals: %w", err)
	}
	defer rows.Close()

	var retrievals []Retrieval
	for rows.Next() {
		var r Retrieval
		var createdAt, profiles string
		if err := rows.Scan(&r.ID, &createdAt, &profiles, &r.MemberCount, &r.OutputDir); err != nil {
			return nil, fmt.Errorf("scan retrieval: %w", err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		if profiles != "" {
			r.Profiles = strings.Split(profiles, ",")
		}
		retrievals = append(retrievals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retrievals: %w", err)
	}
	return retrievals, nil
}
