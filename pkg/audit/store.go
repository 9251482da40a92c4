package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Outcome classifies the terminal result of a dispatch attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomeExpired Outcome = "expired"
)

// Record is one immutable audit entry. Every dispatch attempt produces
// exactly one record, including attempts blocked before any module ran.
type Record struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Requester  string                 `json:"requester"`
	Capability string                 `json:"capability"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Outcome    Outcome                `json:"outcome"`
	Error      string                 `json:"error,omitempty"`
	Result     string                 `json:"result,omitempty"`
}

// Note is a free-text note saved by the owner.
type Note struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Store is the append-only audit log backed by SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds audit store configuration.
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// NewStore opens (or creates) the audit database. An unreachable
// database is a startup failure, not a runtime degradation.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("audit database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite allows a single writer; serialize through one connection
	// so concurrent appends queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// WAL mode for concurrent appends from independent requests.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "audit").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		requester TEXT NOT NULL,
		capability TEXT NOT NULL,
		params TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		result TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_requester ON audit_log(requester, timestamp DESC);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

// Append writes one record. The record ID and timestamp are filled in
// when absent. Records are never updated or deleted except by retention.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var paramsJSON []byte
	if rec.Params != nil {
		var err error
		paramsJSON, err = json.Marshal(rec.Params)
		if err != nil {
			return rec, fmt.Errorf("failed to serialize audit params: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, requester, capability, params, outcome, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UnixNano(),
		rec.Requester,
		rec.Capability,
		string(paramsJSON),
		string(rec.Outcome),
		rec.Error,
		rec.Result,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to append audit record: %w", err)
	}

	s.logger.Info().
		Str("record_id", rec.ID).
		Str("requester", rec.Requester).
		Str("capability", rec.Capability).
		Str("outcome", string(rec.Outcome)).
		Msg("Audit record written")

	return rec, nil
}

// Recent returns the latest n records, most recent first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, requester, capability, params, outcome, error, result
		FROM audit_log ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		var paramsJSON string
		if err := rows.Scan(&rec.ID, &ts, &rec.Requester, &rec.Capability, &paramsJSON, &rec.Outcome, &rec.Error, &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		if paramsJSON != "" {
			_ = json.Unmarshal([]byte(paramsJSON), &rec.Params)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes records older than the cutoff and returns the
// number removed. Used by the retention sweep.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE timestamp < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}
	return res.RowsAffected()
}

// AddNote saves a free-text note.
func (s *Store) AddNote(ctx context.Context, content string) (int64, error) {
	if content == "" {
		return 0, errors.New("note content is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (timestamp, content) VALUES (?, ?)`,
		time.Now().UnixNano(), content)
	if err != nil {
		return 0, fmt.Errorf("failed to save note: %w", err)
	}
	return res.LastInsertId()
}

// Notes returns the latest n notes, most recent first.
func (s *Store) Notes(ctx context.Context, n int) ([]Note, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, content FROM notes ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var note Note
		var ts int64
		if err := rows.Scan(&note.ID, &ts, &note.Content); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		note.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, note)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
