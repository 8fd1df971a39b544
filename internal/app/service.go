// Package service provides the core business service that implements
// the dependencies required by the HTTP API, the job workers and the
// session inbox.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitwall/internal/adapters/http/api"
	"github.com/okian/pitwall/internal/adapters/inbox"
	jobqueue "github.com/okian/pitwall/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitwall/internal/adapters/mq/worker"
	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/idempotency"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/optimizer"
	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/recovery"
	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// ErrNotStarted is returned by store-backed operations before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the setup optimizer.
type Service struct {
	lifecycle sync.Mutex
	mu        sync.RWMutex

	// Core components
	engine *optimizer.Engine
	store  repository.Store
	jobs   *jobqueue.InMemoryQueue
	pool   *workerpool.Pool
	keys   idempotency.Keys
	inbox  *inbox.Watcher

	// Configuration
	storeDriver     string
	sqlitePath      string
	workerCount     int
	queueSize       int
	idempotencySize int
	turnParallelism int
	inboxDir        string
	now             func() time.Time

	// State
	started   bool
	ownsStore bool
	cancel    context.CancelFunc
	inboxDone chan struct{}

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:     "memory",
		workerCount:     4,
		queueSize:       1_000,
		idempotencySize: 10_000,
		turnParallelism: 4,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine = optimizer.New(optimizer.WithParallelism(s.turnParallelism))
	return s
}

// Start opens the store and starts the job workers and, when configured, the
// inbox watcher.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting setup optimizer service...")

	if s.store == nil {
		store, err := repository.Open(ctx, s.storeDriver, s.sqlitePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	keys, err := idempotency.NewLRU(idempotency.WithMaxSize(s.idempotencySize))
	if err != nil {
		s.closeStore(ctx)
		return err
	}
	s.keys = keys

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.jobs, s, s.store,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithClock(s.now),
	)
	s.pool.Start(runCtx)

	if s.inboxDir != "" {
		s.inbox = inbox.New(s.inboxDir, s, inbox.WithLogger(s.logger.Named("inbox")))
		s.inboxDone = make(chan struct{})
		go func(w *inbox.Watcher, done chan struct{}) {
			defer close(done)
			if err := w.Run(runCtx); err != nil {
				metrics.RecordErrorByComponent("inbox", "run")
				s.logger.Error(runCtx, "inbox watcher stopped", logger.Error(err))
			}
		}(s.inbox, s.inboxDone)
	}

	s.started = true
	s.logger.Info(ctx, "setup optimizer service started",
		logger.String("store", s.storeDriver),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("idempotencySize", s.idempotencySize),
		logger.Int("turnParallelism", s.turnParallelism),
		logger.String("inbox", s.inboxDir),
	)

	return nil
}

// Stop drains queued jobs, stops the inbox watcher and closes the store. Jobs
// still running when ctx expires are abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	started, pool, cancel, inboxDone := s.started, s.pool, s.cancel, s.inboxDone
	s.mu.RUnlock()
	if !started {
		return nil
	}

	s.logger.Info(ctx, "stopping setup optimizer service...")

	// Workers read the store through deps() while draining, so mu is not
	// held here.
	var errs []error
	if err := pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	cancel()
	if inboxDone != nil {
		<-inboxDone
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
		s.ownsStore = false
	}
	s.inboxDone = nil
	s.started = false
	s.logger.Info(ctx, "setup optimizer service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeStore(ctx context.Context) {
	if !s.ownsStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "close store", logger.Error(err))
	}
	s.store = nil
	s.ownsStore = false
}

// deps returns the started components or ErrNotStarted.
func (s *Service) deps() (repository.Store, idempotency.Keys, *jobqueue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.store, s.keys, s.jobs, nil
}

// Optimize runs the engine on an inline document. A non-empty prefs overlays
// the preferences derived from the document.
func (s *Service) Optimize(ctx context.Context, raw []byte, isYAML bool, prefs []byte) (*optimizer.Result, error) {
	doc, err := session.Load(raw, isYAML)
	if err != nil {
		metrics.RecordOptimization(outcome(err), 0, 0)
		return nil, err
	}
	p := preferences.FromDocument(doc)
	if len(prefs) > 0 {
		if p, err = preferences.ApplySubmission(p, prefs); err != nil {
			return nil, err
		}
	}
	return s.run(ctx, "inline", doc, &p)
}

// OptimizeSession runs the engine on a stored session with its most recent
// preference submission, if any.
func (s *Service) OptimizeSession(ctx context.Context, sessionID string) (*optimizer.Result, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return nil, err
	}
	rec, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	doc, err := session.Decode(rec.Document)
	if err != nil {
		return nil, err
	}

	p := preferences.FromDocument(doc)
	latest, err := store.LatestPreferences(ctx, sessionID)
	switch {
	case err == nil:
		if p, err = preferences.ApplySubmission(p, latest.Submission); err != nil {
			return nil, fmt.Errorf("stored preferences %s: %w", latest.ID, err)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return s.run(ctx, sessionID, doc, &p)
}

func (s *Service) run(ctx context.Context, label string, doc *session.Document, p *preferences.UserPreferences) (*optimizer.Result, error) {
	start := time.Now()
	res, err := s.engine.Optimize(ctx, doc, p)
	took := time.Since(start)
	if err != nil {
		metrics.RecordOptimization(outcome(err), float64(took.Microseconds())/1000, len(doc.Turns))
		s.log().Warn(ctx, "optimization rejected",
			logger.String("session", label),
			logger.Error(err),
		)
		return nil, err
	}

	fired := 0
	for _, t := range res.Diagnostics.Turns {
		fired += len(t.FiredRules)
		for _, rule := range t.FiredRules {
			metrics.RecordRuleFiring(rule)
		}
	}
	for _, c := range res.Diagnostics.Clamps {
		metrics.RecordClamp(string(c.Param))
	}
	metrics.RecordOptimization("ok", float64(took.Microseconds())/1000, len(doc.Turns))

	s.log().Info(ctx, "optimization complete",
		logger.String("session", label),
		logger.Int("turns", len(doc.Turns)),
		logger.Int("firedRules", fired),
		logger.Int("clamps", len(res.Diagnostics.Clamps)),
		logger.Duration("took", took),
	)
	return res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, session.ErrSchema):
		return "schema_error"
	case errors.Is(err, session.ErrMalformedTurn):
		return "malformed_turn"
	default:
		return "error"
	}
}

// CreateSession validates and stores a new session under a generated id.
func (s *Service) CreateSession(ctx context.Context, raw []byte, isYAML bool) (repository.SessionSummary, error) {
	rec, err := s.saveSession(ctx, uuid.NewString(), raw, isYAML)
	if err != nil {
		return repository.SessionSummary{}, err
	}
	return rec.Summary(), nil
}

// ImportSession stores a session dropped into the inbox. An existing session
// with the same id is replaced.
func (s *Service) ImportSession(ctx context.Context, id string, raw []byte, isYAML bool) error {
	_, err := s.saveSession(ctx, id, raw, isYAML)
	return err
}

func (s *Service) saveSession(ctx context.Context, id string, raw []byte, isYAML bool) (repository.SessionRecord, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return repository.SessionRecord{}, err
	}
	doc, err := session.Load(raw, isYAML)
	if err != nil {
		return repository.SessionRecord{}, err
	}
	if isYAML {
		if raw, err = session.YAMLToJSON(raw); err != nil {
			return repository.SessionRecord{}, err
		}
	}

	rec := repository.SessionRecord{
		ID:        id,
		Track:     doc.Metadata.Track,
		Session:   doc.Metadata.Session,
		Turns:     len(doc.Turns),
		Document:  raw,
		CreatedAt: s.now().UTC(),
	}
	if err := store.SaveSession(ctx, rec); err != nil {
		return repository.SessionRecord{}, err
	}
	s.log().Info(ctx, "session stored",
		logger.String("session", id),
		logger.String("track", rec.Track),
		logger.Int("turns", rec.Turns),
	)
	return rec, nil
}

// ListSessions returns every stored session without documents.
func (s *Service) ListSessions(ctx context.Context) ([]repository.SessionSummary, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return nil, err
	}
	return store.ListSessions(ctx)
}

// GetSession returns a stored session.
func (s *Service) GetSession(ctx context.Context, id string) (repository.SessionRecord, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return repository.SessionRecord{}, err
	}
	return store.GetSession(ctx, id)
}

// SubmitPreferences stores a questionnaire for a session and returns the
// preferences it resolves to against that session.
func (s *Service) SubmitPreferences(ctx context.Context, sessionID string, raw []byte) (api.PreferenceReceipt, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return api.PreferenceReceipt{}, err
	}
	rec, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return api.PreferenceReceipt{}, err
	}
	doc, err := session.Decode(rec.Document)
	if err != nil {
		return api.PreferenceReceipt{}, err
	}
	p, err := preferences.ApplySubmission(preferences.FromDocument(doc), raw)
	if err != nil {
		return api.PreferenceReceipt{}, err
	}

	pref := repository.PreferenceRecord{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Submission: raw,
		CreatedAt:  s.now().UTC(),
	}
	if err := store.SavePreferences(ctx, pref); err != nil {
		return api.PreferenceReceipt{}, err
	}
	return api.PreferenceReceipt{ID: pref.ID, SessionID: sessionID, Preferences: p}, nil
}

// SubmitJob queues an optimization of a stored session. A repeated
// idempotency key returns the job created the first time.
func (s *Service) SubmitJob(ctx context.Context, sessionID, key string) (api.JobReceipt, error) {
	store, keys, jobs, err := s.deps()
	if err != nil {
		return api.JobReceipt{}, err
	}
	if _, err := store.GetSession(ctx, sessionID); err != nil {
		return api.JobReceipt{}, err
	}

	id := uuid.NewString()
	if key != "" {
		if existing, seen := keys.Remember(ctx, key, id); seen {
			metrics.RecordJobDuplicate()
			status := model.JobQueued
			rec, err := store.GetJob(ctx, existing)
			switch {
			case err == nil:
				status = rec.Status
			case errors.Is(err, repository.ErrNotFound):
				// The first submission has claimed the key but not saved yet.
			default:
				return api.JobReceipt{}, err
			}
			s.log().Debug(ctx, "duplicate job submission",
				logger.String("job", existing),
				logger.String("idempotencyKey", key),
			)
			return api.JobReceipt{JobID: existing, Status: status, Duplicate: true}, nil
		}
	}

	now := s.now().UTC()
	rec := repository.JobRecord{
		ID:             id,
		SessionID:      sessionID,
		IdempotencyKey: key,
		Status:         model.JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.SaveJob(ctx, rec); err != nil {
		if key != "" {
			keys.Forget(ctx, key)
		}
		return api.JobReceipt{}, err
	}

	job := model.Job{ID: id, SessionID: sessionID, IdempotencyKey: key, EnqueuedAt: now}
	if !jobs.Enqueue(ctx, job) {
		if key != "" {
			keys.Forget(ctx, key)
		}
		rec.Status = model.JobFailed
		rec.Error = "rejected: job queue full"
		rec.UpdatedAt = s.now().UTC()
		if err := store.SaveJob(ctx, rec); err != nil {
			s.log().Warn(ctx, "record rejected job", logger.String("job", id), logger.Error(err))
		}
		return api.JobReceipt{}, api.NewKind("service.submit_job", api.ErrBackpressure)
	}
	metrics.UpdateQueueSize(jobs.Len(ctx))

	return api.JobReceipt{JobID: id, Status: model.JobQueued}, nil
}

// GetJob returns a job and, once finished, its result.
func (s *Service) GetJob(ctx context.Context, id string) (repository.JobRecord, error) {
	store, _, _, err := s.deps()
	if err != nil {
		return repository.JobRecord{}, err
	}
	return store.GetJob(ctx, id)
}

// RecoveryReport builds a recovery plan from race load estimates.
func (s *Service) RecoveryReport(ctx context.Context, raw []byte) (recovery.Report, error) {
	data, err := recovery.Decode(raw)
	if err != nil {
		return recovery.Report{}, err
	}
	report := recovery.Generate(data)
	for _, f := range report.PriorityRecoveryPlan {
		metrics.RecordRecoveryFinding(f.FocusArea, f.Severity)
	}
	s.log().Info(ctx, "recovery report generated",
		logger.String("driver", report.DriverID),
		logger.String("track", report.TrackName),
	)
	return report, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"store":           s.storeDriver,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"idempotencySize": s.idempotencySize,
		"turnParallelism": s.turnParallelism,
		"inboxDir":        s.inboxDir,
	}

	if s.started {
		queueLen := s.jobs.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workers"] = s.pool.Size()
		stats["idempotencyKeys"] = s.keys.Len()
		if sessions, err := s.store.ListSessions(ctx); err == nil {
			stats["sessions"] = len(sessions)
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Nop()
	}
	return s.logger
}
