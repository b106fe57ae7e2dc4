// Package store provides durable automaton.Store implementations backed by
// SQLite and Badger.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/monkeygold/automaton"
)

// SQLiteStore implements automaton.Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

var _ automaton.Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates a SQLite database at the given path and
// creates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	return s, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS children (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		address             TEXT NOT NULL DEFAULT '',
		sandbox_id          TEXT NOT NULL,
		genesis_prompt      TEXT NOT NULL DEFAULT '',
		creator_message     TEXT NOT NULL DEFAULT '',
		funded_amount_cents INTEGER NOT NULL DEFAULT 0,
		status              TEXT NOT NULL,
		created_at          TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS modifications (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		type        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reversible  INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_children_status ON children(status);
	CREATE INDEX IF NOT EXISTS idx_modifications_timestamp ON modifications(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Children returns every child ordered by id (creation order).
func (s *SQLiteStore) Children(ctx context.Context) ([]automaton.ChildRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, sandbox_id, genesis_prompt, creator_message,
		        funded_amount_cents, status, created_at
		 FROM children ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []automaton.ChildRecord
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

// Child returns the child with the given id.
func (s *SQLiteStore) Child(ctx context.Context, id string) (*automaton.ChildRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, sandbox_id, genesis_prompt, creator_message,
		        funded_amount_cents, status, created_at
		 FROM children WHERE id = ?`, id,
	)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, automaton.ErrChildNotFound
	}
	return c, err
}

// InsertChild persists a new child record.
func (s *SQLiteStore) InsertChild(ctx context.Context, c automaton.ChildRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO children
		 (id, name, address, sandbox_id, genesis_prompt, creator_message, funded_amount_cents, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Address, c.SandboxID, c.GenesisPrompt, c.CreatorMessage,
		c.FundedAmountCents, string(c.Status), formatTime(c.CreatedAt),
	)
	return err
}

// UpdateChildStatus sets the status of an existing child.
func (s *SQLiteStore) UpdateChildStatus(ctx context.Context, id string, status automaton.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE children SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return automaton.ErrChildNotFound
	}
	return nil
}

// InsertModification appends an audit log entry.
func (s *SQLiteStore) InsertModification(ctx context.Context, m automaton.ModificationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO modifications (id, timestamp, type, description, reversible)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, formatTime(m.Timestamp), m.Type, m.Description, m.Reversible,
	)
	return err
}

// Modifications returns the audit log, oldest first.
func (s *SQLiteStore) Modifications(ctx context.Context) ([]automaton.ModificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, type, description, reversible
		 FROM modifications ORDER BY timestamp, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []automaton.ModificationRecord
	for rows.Next() {
		var m automaton.ModificationRecord
		var ts string
		if err := rows.Scan(&m.ID, &ts, &m.Type, &m.Description, &m.Reversible); err != nil {
			return nil, err
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChild(row scanner) (*automaton.ChildRecord, error) {
	var c automaton.ChildRecord
	var status, createdAt string
	if err := row.Scan(
		&c.ID, &c.Name, &c.Address, &c.SandboxID, &c.GenesisPrompt, &c.CreatorMessage,
		&c.FundedAmountCents, &status, &createdAt,
	); err != nil {
		return nil, err
	}
	c.Status = automaton.Status(status)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Timestamps are stored as fixed-width UTC RFC 3339 text so that they sort
// lexically and keep nanosecond precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
