// Package repository persists session documents, preference submissions and
// optimization jobs.
package repository

import (
	"context"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// SessionRecord is a stored session document. Document holds the raw JSON so
// every read decodes a fresh copy.
type SessionRecord struct {
	ID        string
	Track     string
	Session   string
	Turns     int
	Document  []byte
	CreatedAt time.Time
}

// SessionSummary is a session without its document.
type SessionSummary struct {
	ID        string    `json:"id"`
	Track     string    `json:"track"`
	Session   string    `json:"session"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary drops the document.
func (r SessionRecord) Summary() SessionSummary {
	return SessionSummary{ID: r.ID, Track: r.Track, Session: r.Session, Turns: r.Turns, CreatedAt: r.CreatedAt}
}

// PreferenceRecord is one questionnaire submission for a session.
type PreferenceRecord struct {
	ID         string
	SessionID  string
	Submission []byte
	CreatedAt  time.Time
}

// JobRecord tracks an asynchronous optimization.
type JobRecord struct {
	ID             string
	SessionID      string
	IdempotencyKey string
	Status         model.JobStatus
	Result         []byte
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store provides access to sessions, preferences and jobs.
type Store interface {
	// SaveSession inserts or replaces a session.
	SaveSession(ctx context.Context, rec SessionRecord) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	// ListSessions returns summaries ordered by creation time, then id.
	ListSessions(ctx context.Context) ([]SessionSummary, error)

	// SavePreferences appends a submission. The session must exist.
	SavePreferences(ctx context.Context, rec PreferenceRecord) error
	// LatestPreferences returns the newest submission for a session, or ErrNotFound.
	LatestPreferences(ctx context.Context, sessionID string) (PreferenceRecord, error)

	// SaveJob inserts or replaces a job.
	SaveJob(ctx context.Context, rec JobRecord) error
	// GetJob returns ErrNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (JobRecord, error)

	Close() error
}
