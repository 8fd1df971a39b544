package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	track       TEXT NOT NULL,
	session     TEXT NOT NULL,
	turns       INTEGER NOT NULL,
	document    BLOB NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	submission  BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS preferences_session ON preferences(session_id, seq);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	status          TEXT NOT NULL,
	result          BLOB,
	error           TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := sqliteOptions{journalMode: "WAL", busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", o.journalMode),
		fmt.Sprintf("PRAGMA busy_timeout=%d", o.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) (err error) {
	defer observe("save_session", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidRecord)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, track, session, turns, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   track = excluded.track, session = excluded.session, turns = excluded.turns,
		   document = excluded.document, created_at = excluded.created_at`,
		rec.ID, rec.Track, rec.Session, rec.Turns, rec.Document, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err == nil {
		metrics.UpdateSessionCount(n)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (rec SessionRecord, err error) {
	defer observe("get_session", time.Now(), &err)
	var created string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, track, session, turns, document, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Track, &rec.Session, &rec.Turns, &rec.Document, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("query session: %w", err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) (out []SessionSummary, err error) {
	defer observe("list_sessions", time.Now(), &err)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track, session, turns, created_at FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out = []SessionSummary{}
	for rows.Next() {
		var (
			sum     SessionSummary
			created string
		)
		if err := rows.Scan(&sum.ID, &sum.Track, &sum.Session, &sum.Turns, &created); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SavePreferences(ctx context.Context, rec PreferenceRecord) (err error) {
	defer observe("save_preferences", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty preference id", ErrInvalidRecord)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, rec.SessionID).Scan(&exists); err != nil {
		return fmt.Errorf("query session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("session %q: %w", rec.SessionID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO preferences (id, session_id, submission, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Submission, formatTime(rec.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestPreferences(ctx context.Context, sessionID string) (rec PreferenceRecord, err error) {
	defer observe("latest_preferences", time.Now(), &err)
	var created string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, session_id, submission, created_at FROM preferences
		 WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID,
	).Scan(&rec.ID, &rec.SessionID, &rec.Submission, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return PreferenceRecord{}, fmt.Errorf("preferences for %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return PreferenceRecord{}, fmt.Errorf("query preferences: %w", err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return PreferenceRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, rec JobRecord) (err error) {
	defer observe("save_job", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidRecord)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, session_id, idempotency_key, status, result, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, result = excluded.result,
		   error = excluded.error, updated_at = excluded.updated_at`,
		rec.ID, rec.SessionID, rec.IdempotencyKey, string(rec.Status), rec.Result, rec.Error,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (rec JobRecord, err error) {
	defer observe("get_job", time.Now(), &err)
	var (
		status           string
		created, updated string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, session_id, idempotency_key, status, result, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.SessionID, &rec.IdempotencyKey, &status, &rec.Result, &rec.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("query job: %w", err)
	}
	rec.Status = model.JobStatus(status)
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return JobRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return JobRecord{}, err
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
