// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records harvest sessions, harvested identifiers and download
// outcomes in a SQLite database, so a later run can report progress or
// resolve links from identifiers harvested earlier.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// Ledger is the harvest database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and creates the schema if it
// does not exist.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Download workers write concurrently; SQLite takes one writer.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			set_spec TEXT NOT NULL,
			topic TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			error TEXT
		)`,
		identifiersTable,
		`CREATE TABLE IF NOT EXISTS outcomes (
			url TEXT PRIMARY KEY,
			identifier TEXT,
			kind TEXT NOT NULL,
			path TEXT,
			attempts INTEGER NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			last TEXT,
			error TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_kind ON outcomes(kind)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return l.migrateIdentifiers()
}

// identifiersTable keys identifiers by set: one record is listed under
// every set it belongs to.
const identifiersTable = `CREATE TABLE IF NOT EXISTS identifiers (
	id TEXT NOT NULL,
	set_spec TEXT NOT NULL,
	batch INTEGER NOT NULL,
	session_id INTEGER REFERENCES sessions(id),
	harvested_at TEXT NOT NULL,
	PRIMARY KEY (set_spec, id)
)`

// migrateIdentifiers rebuilds an identifiers table keyed by id alone.
func (l *Ledger) migrateIdentifiers() error {
	var ddl string
	err := l.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'identifiers'`).Scan(&ddl)
	if err != nil {
		return fmt.Errorf("reading identifiers schema: %w", err)
	}
	if strings.Contains(ddl, "PRIMARY KEY (set_spec, id)") {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_identifiers_set`,
		`ALTER TABLE identifiers RENAME TO identifiers_old`,
		identifiersTable,
		`INSERT INTO identifiers (id, set_spec, batch, session_id, harvested_at)
		 SELECT id, set_spec, batch, session_id, harvested_at FROM identifiers_old ORDER BY rowid`,
		`DROP TABLE identifiers_old`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrating identifiers: %w", err)
		}
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Session statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// BeginSession records the start of a harvest of set and returns its id.
func (l *Ledger) BeginSession(ctx context.Context, set, topic string) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (set_spec, topic, started_at, status) VALUES (?, ?, ?, ?)`,
		set, topic, now(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	return res.LastInsertId()
}

// EndSession marks a session complete, or failed with cause when cause is
// non-nil.
func (l *Ledger) EndSession(ctx context.Context, id int64, cause error) error {
	status, msg := StatusComplete, ""
	if cause != nil {
		status, msg = StatusFailed, cause.Error()
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		now(), status, msg, id)
	if err != nil {
		return fmt.Errorf("updating session %d: %w", id, err)
	}
	return nil
}

// RecordBatch stores the identifiers of one batch of set. Identifiers seen
// before in the same set keep their first batch.
func (l *Ledger) RecordBatch(ctx context.Context, session int64, set string, index int, batch types.Batch) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO identifiers (id, set_spec, batch, session_id, harvested_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	var sessionID any
	if session > 0 {
		sessionID = session
	}
	for _, id := range batch {
		if _, err := stmt.ExecContext(ctx, string(id), set, index, sessionID, ts); err != nil {
			return fmt.Errorf("inserting identifier %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Identifiers returns the identifiers harvested for set, in harvest order.
func (l *Ledger) Identifiers(ctx context.Context, set string) ([]types.Identifier, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id FROM identifiers WHERE set_spec = ? ORDER BY batch, rowid`, set)
	if err != nil {
		return nil, fmt.Errorf("querying identifiers: %w", err)
	}
	defer rows.Close()

	var ids []types.Identifier
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identifier: %w", err)
		}
		ids = append(ids, types.Identifier(id))
	}
	return ids, rows.Err()
}

// RecordOutcome stores the latest outcome for the link's URL.
func (l *Ledger) RecordOutcome(ctx context.Context, link types.DownloadLink, out types.DownloadOutcome) error {
	var identifier, errMsg string
	if link.Entry != nil {
		identifier = string(link.Entry.ID)
	}
	if out.Err != nil {
		errMsg = out.Err.Error()
	}

	// A skipped save carries no size or attempt count worth keeping.
	if out.Kind == types.OutcomeSaved && out.Skipped {
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO outcomes (url, identifier, kind, path, attempts, size, last, error, updated_at)
			 VALUES (?, ?, ?, ?, 0, 0, '', '', ?)
			 ON CONFLICT(url) DO UPDATE SET kind = excluded.kind, path = excluded.path`,
			link.URL, identifier, string(out.Kind), out.Path, now())
		if err != nil {
			return fmt.Errorf("recording outcome for %s: %w", link.URL, err)
		}
		return nil
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO outcomes (url, identifier, kind, path, attempts, size, last, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			identifier = excluded.identifier,
			kind = excluded.kind,
			path = excluded.path,
			attempts = excluded.attempts,
			size = excluded.size,
			last = excluded.last,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		link.URL, identifier, string(out.Kind), out.Path, out.Attempts, out.Size, out.Last, errMsg, now())
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", link.URL, err)
	}
	return nil
}

// OutcomeRecord is one row of the outcomes table.
type OutcomeRecord struct {
	URL        string    `yaml:"url" json:"url"`
	Identifier string    `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Kind       string    `yaml:"kind" json:"kind"`
	Path       string    `yaml:"path,omitempty" json:"path,omitempty"`
	Attempts   int       `yaml:"attempts" json:"attempts"`
	Size       int64     `yaml:"size" json:"size"`
	Last       string    `yaml:"last,omitempty" json:"last,omitempty"`
	Error      string    `yaml:"error,omitempty" json:"error,omitempty"`
	UpdatedAt  time.Time `yaml:"updated_at" json:"updated_at"`
}

// ErrNotFound is returned by Outcome for a URL with no recorded outcome.
var ErrNotFound = errors.New("not found")

// Outcome returns the recorded outcome for url.
func (l *Ledger) Outcome(ctx context.Context, url string) (*OutcomeRecord, error) {
	var (
		r       OutcomeRecord
		updated string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT url, COALESCE(identifier, ''), kind, COALESCE(path, ''), attempts, size,
		        COALESCE(last, ''), COALESCE(error, ''), updated_at
		 FROM outcomes WHERE url = ?`, url).
		Scan(&r.URL, &r.Identifier, &r.Kind, &r.Path, &r.Attempts, &r.Size, &r.Last, &r.Error, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outcome for %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying outcome: %w", err)
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &r, nil
}

// Failures returns outcomes that did not end in a saved or declared
// unavailable document, most recent first.
func (l *Ledger) Failures(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT url, COALESCE(identifier, ''), kind, COALESCE(path, ''), attempts, size,
		        COALESCE(last, ''), COALESCE(error, ''), updated_at
		 FROM outcomes WHERE kind NOT IN (?, ?)
		 ORDER BY updated_at DESC LIMIT ?`,
		string(types.OutcomeSaved), string(types.OutcomeDeclaredUnavailable), limit)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			r       OutcomeRecord
			updated string
		)
		if err := rows.Scan(&r.URL, &r.Identifier, &r.Kind, &r.Path, &r.Attempts, &r.Size, &r.Last, &r.Error, &updated); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}
