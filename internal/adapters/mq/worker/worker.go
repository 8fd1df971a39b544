// Package worker runs queued optimization jobs and records their outcome.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/adapters/mq/queue"
	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/optimizer"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Runner optimizes a stored session using its latest stored preferences.
type Runner interface {
	OptimizeSession(ctx context.Context, sessionID string) (*optimizer.Result, error)
}

// JobStore persists job state.
type JobStore interface {
	GetJob(ctx context.Context, id string) (repository.JobRecord, error)
	SaveJob(ctx context.Context, rec repository.JobRecord) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes or it is shut down.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	store  JobStore
	name   string
	now    func() time.Time

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, runner Runner, store JobStore, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		runner:   runner,
		store:    store,
		name:     "worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, j); err != nil {
				w.logger.Error(ctx, "job failed", logger.String("job_id", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after the job in flight, if any.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// processJob moves a job through running to succeeded or failed.
func (w *InMemoryWorker) processJob(ctx context.Context, j queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	rec, err := w.store.GetJob(ctx, j.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		rec = repository.JobRecord{ID: j.ID, SessionID: j.SessionID, IdempotencyKey: j.IdempotencyKey, CreatedAt: j.EnqueuedAt}
	case err != nil:
		metrics.RecordWorkerError()
		return fmt.Errorf("load job %s: %w", j.ID, err)
	}
	if rec.Status.Terminal() {
		w.logger.Debug(ctx, "job already finished", logger.String("job_id", j.ID))
		return nil
	}

	rec.Status = model.JobRunning
	rec.UpdatedAt = w.now()
	if err := w.store.SaveJob(ctx, rec); err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("mark job %s running: %w", j.ID, err)
	}

	result, err := w.runner.OptimizeSession(ctx, j.SessionID)
	if err == nil {
		rec.Result, err = json.Marshal(result)
	}
	rec.UpdatedAt = w.now()
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "optimize")
		rec.Status = model.JobFailed
		rec.Error = err.Error()
		rec.Result = nil
		if serr := w.store.SaveJob(ctx, rec); serr != nil {
			return fmt.Errorf("mark job %s failed: %w", j.ID, errors.Join(err, serr))
		}
		return fmt.Errorf("optimize session %s: %w", j.SessionID, err)
	}

	rec.Status = model.JobSucceeded
	if err := w.store.SaveJob(ctx, rec); err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("mark job %s succeeded: %w", j.ID, err)
	}
	w.logger.Debug(ctx, "job succeeded",
		logger.String("job_id", j.ID),
		logger.String("session_id", j.SessionID),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool. A count below 1 uses runtime.NumCPU().
func NewPool(workerCount int, q Queue, runner Runner, store JobStore, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, runner, store, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx expires are told to stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			w.stop()
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
