// Package idempotency maps client idempotency keys to the job they created.
package idempotency

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 10_000

// Keys records idempotency keys so a retried submission returns the job it
// created the first time.
type Keys interface {
	// Remember atomically returns the job recorded for key, or records jobID
	// if key is new. seen is true when an earlier job exists.
	Remember(ctx context.Context, key, jobID string) (existing string, seen bool)

	// Forget drops key so a failed submission can be retried.
	Forget(ctx context.Context, key string)

	Len() int
}

// lruKeys keeps the most recently used keys; the oldest are evicted once the
// cache is full.
type lruKeys struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

// NewLRU creates an LRU-bounded key store.
func NewLRU(opts ...Option) (Keys, error) {
	o := options{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, string](o.maxSize)
	if err != nil {
		return nil, fmt.Errorf("create idempotency cache: %w", err)
	}
	return &lruKeys{cache: cache}, nil
}

func (k *lruKeys) Remember(_ context.Context, key, jobID string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.cache.Get(key); ok {
		return existing, true
	}
	k.cache.Add(key, jobID)
	return "", false
}

func (k *lruKeys) Forget(_ context.Context, key string) {
	k.cache.Remove(key)
}

func (k *lruKeys) Len() int {
	return k.cache.Len()
}
