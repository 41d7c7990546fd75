package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/pkg/domain"
)

// schema matches spec.md §6's reference column layout: one row per
// persisted event, a tagged JSON payload, and a UNIQUE constraint that
// makes a duplicate sequence number within a session a constraint
// violation rather than a silent overwrite. ON DELETE CASCADE is what
// lets DeleteSession remove a session's events with a single statement.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS events (
	session_id   TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	sequence_num INTEGER NOT NULL,
	event_type   TEXT NOT NULL,
	event_data   BLOB NOT NULL,
	created_at   INTEGER NOT NULL DEFAULT (unixepoch()),
	UNIQUE(session_id, sequence_num)
);

CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, sequence_num);
`

// SQLiteStore is the reference EventStore implementation: a single
// modernc.org/sqlite connection under WAL journaling, serializing
// appends through a transaction that reads the session's current max
// sequence number before inserting the next one.
//
// Grounded on the teacher's internal/storage package (atomic
// write-then-rename JSON files under a per-path lock) generalized from
// a single-value-per-file store to an append-only relational log; the
// transactional read-max-then-insert pattern is spec.md §5's named
// reference design for a single-connection deployment.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed event store
// at path, enabling WAL journaling and foreign keys, and applies the
// schema migration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, path, err)
	}
	// A single connection keeps the per-session max-seq-then-insert
	// transaction serialized without an explicit mutex, matching
	// spec.md §5's "single connection with WAL journaling" reference.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrConnection, p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigration, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session domain.SessionID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id) VALUES (?) ON CONFLICT(session_id) DO NOTHING`,
		session.String())
	if err != nil {
		return fmt.Errorf("%w: create session: %v", ErrDatabase, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, session domain.SessionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, session.String())
	if err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrDatabase, err)
	}
	return nil
}

func (s *SQLiteStore) SessionExists(ctx context.Context, session domain.SessionID) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE session_id = ?`, session.String()).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: session exists: %v", ErrDatabase, err)
	}
	return true, nil
}

func (s *SQLiteStore) ListSessionIDs(ctx context.Context) ([]domain.SessionID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrDatabase, err)
	}
	defer rows.Close()

	var ids []domain.SessionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: list sessions: %v", ErrDatabase, err)
		}
		ids = append(ids, domain.SessionID(id))
	}
	return ids, rows.Err()
}

// Append serializes against concurrent appends for the same session by
// reading the current max sequence number and inserting the next one
// inside a single transaction; the UNIQUE(session_id, sequence_num)
// constraint turns a lost race into a surfaced error rather than a
// silently skipped sequence number.
func (s *SQLiteStore) Append(ctx context.Context, session domain.SessionID, evt event.SessionEvent) (uint64, error) {
	data, err := event.Marshal(evt)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal %s: %v", ErrSerialization, evt.Kind(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin append tx: %v", ErrDatabase, err)
	}
	defer tx.Rollback()

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE session_id = ?`, session.String()).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: check session: %v", ErrDatabase, err)
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence_num) FROM events WHERE session_id = ?`, session.String(),
	).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("%w: read max sequence: %v", ErrDatabase, err)
	}

	var seq uint64
	if maxSeq.Valid {
		seq = uint64(maxSeq.Int64) + 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, sequence_num, event_type, event_data) VALUES (?, ?, ?, ?)`,
		session.String(), seq, evt.Kind(), data,
	); err != nil {
		return 0, fmt.Errorf("%w: insert event: %v", ErrDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit append: %v", ErrDatabase, err)
	}

	return seq, nil
}

func (s *SQLiteStore) LoadEvents(ctx context.Context, session domain.SessionID) ([]Envelope, error) {
	return s.query(ctx, `SELECT sequence_num, event_data FROM events WHERE session_id = ? ORDER BY sequence_num`, session.String())
}

func (s *SQLiteStore) LoadEventsAfter(ctx context.Context, session domain.SessionID, after uint64) ([]Envelope, error) {
	return s.query(ctx,
		`SELECT sequence_num, event_data FROM events WHERE session_id = ? AND sequence_num > ? ORDER BY sequence_num`,
		session.String(), after)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: load events: %v", ErrDatabase, err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var seq uint64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrDatabase, err)
		}
		evt, err := event.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		out = append(out, Envelope{Sequence: seq, Event: evt})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestSequence(ctx context.Context, session domain.SessionID) (uint64, bool, error) {
	var maxSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence_num) FROM events WHERE session_id = ?`, session.String(),
	).Scan(&maxSeq)
	if err != nil {
		return 0, false, fmt.Errorf("%w: latest sequence: %v", ErrDatabase, err)
	}
	if !maxSeq.Valid {
		return 0, false, nil
	}
	return uint64(maxSeq.Int64), true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
