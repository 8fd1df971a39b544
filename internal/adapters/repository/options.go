package repository

import "time"

type sqliteOptions struct {
	journalMode string
	busyTimeout time.Duration
}

// Option applies a configuration option to the SQLite store.
type Option func(*sqliteOptions)

// WithJournalMode sets the SQLite journal mode (WAL by default).
func WithJournalMode(mode string) Option {
	return func(o *sqliteOptions) {
		if mode != "" {
			o.journalMode = mode
		}
	}
}

// WithBusyTimeout sets how long a writer waits for a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *sqliteOptions) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}
