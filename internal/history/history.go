// Package history keeps a local log of imports submitted to gateways.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 50

// timeLayout has a fixed width so stored stamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry records one import.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	BaseURL      string    `json:"base_url"`
	SourceName   string    `json:"source_name,omitempty"`
	Sections     []string  `json:"sections"`
	Associations int       `json:"associations"`
	Replacements int       `json:"replacements"`
	Unmatched    []string  `json:"unmatched,omitempty"`
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is a SQLite-backed import log.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "history_store").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("history database initialized")
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS imports (
			id TEXT PRIMARY KEY,
			base_url TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			sections TEXT NOT NULL,
			associations INTEGER NOT NULL DEFAULT 0,
			replacements INTEGER NOT NULL DEFAULT 0,
			unmatched TEXT NOT NULL DEFAULT '[]',
			success INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_imports_created_at ON imports(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores e. A zero ID or CreatedAt is filled in.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	sections, err := json.Marshal(nonNil(e.Sections))
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	unmatched, err := json.Marshal(nonNil(e.Unmatched))
	if err != nil {
		return fmt.Errorf("marshal unmatched: %w", err)
	}

	query := `
		INSERT INTO imports (id, base_url, source_name, sections, associations, replacements, unmatched, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID.String(),
		e.BaseURL,
		e.SourceName,
		string(sections),
		e.Associations,
		e.Replacements,
		string(unmatched),
		e.Success,
		e.Message,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

// List returns the most recent entries first.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_url, source_name, sections, associations, replacements, unmatched, success, message, created_at
		FROM imports
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                              Entry
			id, sections, unmatched, stamp string
		)
		if err := rows.Scan(&id, &e.BaseURL, &e.SourceName, &sections, &e.Associations, &e.Replacements, &unmatched, &e.Success, &e.Message, &stamp); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse import id: %w", err)
		}
		if err := json.Unmarshal([]byte(sections), &e.Sections); err != nil {
			return nil, fmt.Errorf("unmarshal sections: %w", err)
		}
		if err := json.Unmarshal([]byte(unmatched), &e.Unmatched); err != nil {
			return nil, fmt.Errorf("unmarshal unmatched: %w", err)
		}
		if len(e.Unmatched) == 0 {
			e.Unmatched = nil
		}
		if e.CreatedAt, err = time.Parse(timeLayout, stamp); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
