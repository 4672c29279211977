// Package audit keeps a SQLite log of completion calls. It stores hashes and
// counts only; message text never reaches the database.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Entry struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	PersonaID    string    `json:"persona_id"`
	Mode         string    `json:"mode"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Deployment   string    `json:"deployment"`
	Provider     string    `json:"provider"`
	InputHash    string    `json:"input_hash"`
	OutputHash   string    `json:"output_hash"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMS    int64     `json:"latency_ms"`
	Fallback     bool      `json:"fallback"`
	Error        string    `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS persona_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT,
	session_id TEXT,
	persona_id TEXT NOT NULL,
	mode TEXT,
	timestamp DATETIME NOT NULL,
	model TEXT NOT NULL,
	deployment TEXT,
	provider TEXT,
	input_hash TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	input_tokens INTEGER,
	output_tokens INTEGER,
	latency_ms INTEGER,
	fallback INTEGER NOT NULL DEFAULT 0,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_session ON persona_audit(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON persona_audit(timestamp);
`

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	log.Printf("[AUDIT] Audit database ready at %s", path)
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persona_audit (
			request_id, session_id, persona_id, mode, timestamp,
			model, deployment, provider, input_hash, output_hash,
			input_tokens, output_tokens, latency_ms, fallback, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.SessionID, e.PersonaID, e.Mode, e.Timestamp.UTC(),
		e.Model, e.Deployment, e.Provider, e.InputHash, e.OutputHash,
		e.InputTokens, e.OutputTokens, e.LatencyMS, e.Fallback, e.Error)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, session_id, persona_id, mode, timestamp,
		       model, deployment, provider, input_hash, output_hash,
		       input_tokens, output_tokens, latency_ms, fallback, error
		FROM persona_audit
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.SessionID, &e.PersonaID, &e.Mode, &e.Timestamp,
			&e.Model, &e.Deployment, &e.Provider, &e.InputHash, &e.OutputHash,
			&e.InputTokens, &e.OutputTokens, &e.LatencyMS, &e.Fallback, &errText,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded calls.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persona_audit`).Scan(&n)
	return n, err
}

// Hash returns a short content fingerprint.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:16]
}
