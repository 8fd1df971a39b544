package repository

import (
	"context"
	"fmt"
)

// Open returns the Store selected by driver ("memory" or "sqlite").
func Open(ctx context.Context, driver, sqlitePath string, opts ...Option) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, sqlitePath, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
