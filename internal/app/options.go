package service

import (
	"time"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of job worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencySize sets how many idempotency keys are remembered.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
	}
}

// WithTurnParallelism bounds per-turn fan-out inside one optimization.
func WithTurnParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.turnParallelism = n
		}
	}
}

// WithStoreDriver selects the store opened by Start: "memory" or "sqlite".
// sqlitePath is only used by the sqlite driver.
func WithStoreDriver(driver, sqlitePath string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		s.sqlitePath = sqlitePath
	}
}

// WithStore uses an already opened store. The caller keeps ownership and
// closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.storeDriver = "external"
		}
	}
}

// WithInboxDir enables the session inbox watcher on dir.
func WithInboxDir(dir string) Option {
	return func(s *Service) {
		s.inboxDir = dir
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for stored records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
