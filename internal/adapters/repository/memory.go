package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitwall/pkg/metrics"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out, so callers never share buffers with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]SessionRecord
	preferences map[string][]PreferenceRecord
	jobs        map[string]JobRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]SessionRecord),
		preferences: make(map[string][]PreferenceRecord),
		jobs:        make(map[string]JobRecord),
	}
}

func (s *MemoryStore) SaveSession(_ context.Context, rec SessionRecord) (err error) {
	defer observe("save_session", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidRecord)
	}
	rec.Document = slices.Clone(rec.Document)

	s.mu.Lock()
	s.sessions[rec.ID] = rec
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.UpdateSessionCount(n)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (rec SessionRecord, err error) {
	defer observe("get_session", time.Now(), &err)
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return SessionRecord{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	rec.Document = slices.Clone(rec.Document)
	return rec, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) (out []SessionSummary, err error) {
	defer observe("list_sessions", time.Now(), &err)
	s.mu.RLock()
	out = make([]SessionSummary, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.Summary())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b SessionSummary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) SavePreferences(_ context.Context, rec PreferenceRecord) (err error) {
	defer observe("save_preferences", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty preference id", ErrInvalidRecord)
	}
	rec.Submission = slices.Clone(rec.Submission)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.SessionID]; !ok {
		return fmt.Errorf("session %q: %w", rec.SessionID, ErrNotFound)
	}
	s.preferences[rec.SessionID] = append(s.preferences[rec.SessionID], rec)
	return nil
}

func (s *MemoryStore) LatestPreferences(_ context.Context, sessionID string) (rec PreferenceRecord, err error) {
	defer observe("latest_preferences", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.preferences[sessionID]
	if len(list) == 0 {
		return PreferenceRecord{}, fmt.Errorf("preferences for %q: %w", sessionID, ErrNotFound)
	}
	rec = list[len(list)-1]
	rec.Submission = slices.Clone(rec.Submission)
	return rec, nil
}

func (s *MemoryStore) SaveJob(_ context.Context, rec JobRecord) (err error) {
	defer observe("save_job", time.Now(), &err)
	if rec.ID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidRecord)
	}
	rec.Result = slices.Clone(rec.Result)

	s.mu.Lock()
	s.jobs[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (rec JobRecord, err error) {
	defer observe("get_job", time.Now(), &err)
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return JobRecord{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	rec.Result = slices.Clone(rec.Result)
	return rec, nil
}

func (s *MemoryStore) Close() error { return nil }
