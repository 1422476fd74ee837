package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/NarrativeEngine/internal/config"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Engine    string                 `json:"engine"`
	RunID     *string                `json:"run_id,omitempty"`
}

// Client stores diagnostic events and the sequence log of one engine.
type Client struct {
	db     *sql.DB
	engine string
}

// DSN builds the lib/pq connection string for cfg.
func DSN(cfg config.PostgresConfig) string {
	parts := []string{
		"host=" + cfg.Host,
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + cfg.User,
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	parts = append(parts, "dbname="+cfg.Database, "sslmode="+cfg.SSLMode)
	return strings.Join(parts, " ")
}

// New connects and creates the tables if needed. Callers treat an error as
// "no durable storage" and keep running.
func New(ctx context.Context, cfg config.PostgresConfig, engine string) (*Client, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	client := &Client{db: db, engine: engine}
	if err := client.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return client, nil
}

func (c *Client) createTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			engine   TEXT NOT NULL,
			run_id   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_engine ON events(engine);

		CREATE TABLE IF NOT EXISTS sequence_log (
			id        BIGSERIAL PRIMARY KEY,
			engine    TEXT NOT NULL,
			run_id    TEXT NOT NULL,
			seq       BIGINT NOT NULL,
			node_id   TEXT NOT NULL,
			node_name TEXT,
			kind      TEXT NOT NULL,
			depth     INTEGER NOT NULL,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			at        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sequence_log_run ON sequence_log(run_id, seq);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Append inserts an event. It satisfies events.Appender.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, engine, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, nullable(msg), fieldsJSON, c.engine, nullable(runID))
	return err
}

// AppendEntry inserts one sequence record entry. It satisfies record.Sink.
func (c *Client) AppendEntry(ctx context.Context, e record.Entry) error {
	query := `
		INSERT INTO sequence_log (engine, run_id, seq, node_id, node_name, kind, depth, cancelled, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, query,
		c.engine, e.RunID, e.Seq, e.NodeID, nullable(e.NodeName), string(e.Kind), e.Depth, e.Cancelled, e.At)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ClampLimit bounds a caller supplied row limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

// Query returns the last N events in descending order by timestamp.
func (c *Client) Query(ctx context.Context, limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, engine, run_id
		FROM events
		WHERE engine = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.engine, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, runID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Engine, &runID); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if runID.Valid {
			e.RunID = &runID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// History returns the newest sequence log entries across runs, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]record.Entry, error) {
	query := `
		SELECT run_id, seq, node_id, node_name, kind, depth, cancelled, at
		FROM sequence_log
		WHERE engine = $1
		ORDER BY at DESC, seq DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.engine, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []record.Entry
	for rows.Next() {
		var e record.Entry
		var name sql.NullString
		var kind string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.NodeID, &name, &kind, &e.Depth, &e.Cancelled, &e.At); err != nil {
			return nil, err
		}
		e.NodeName = name.String
		e.Kind = narrative.NodeKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
