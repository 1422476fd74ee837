// Package sqlite persists the sequence record of headless runs in a local
// SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Store is a record.Sink backed by SQLite in WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
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

// AppendEntry inserts one entry.
func (s *Store) AppendEntry(ctx context.Context, e record.Entry) error {
	var name any
	if e.NodeName != "" {
		name = e.NodeName
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sequence_log (run_id, seq, node_id, node_name, kind, depth, cancelled, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Seq, e.NodeID, name, string(e.Kind), e.Depth, e.Cancelled, e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}
	return nil
}

// Run returns the entries of one run in sequence order.
func (s *Store) Run(ctx context.Context, runID string) ([]record.Entry, error) {
	return s.query(ctx, `
		SELECT run_id, seq, node_id, node_name, kind, depth, cancelled, at
		FROM sequence_log WHERE run_id = ? ORDER BY seq`, runID)
}

// Runs returns the distinct run ids, oldest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM sequence_log GROUP BY run_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]record.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []record.Entry
	for rows.Next() {
		var (
			e    record.Entry
			name sql.NullString
			kind string
			at   string
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &e.NodeID, &name, &kind, &e.Depth, &e.Cancelled, &at); err != nil {
			return nil, err
		}
		e.NodeName = name.String
		e.Kind = narrative.NodeKind(kind)
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
