// Package inbox imports session documents dropped into a directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

var defaultExtensions = []string{".json", ".yaml", ".yml"}

// Sink stores an imported session document under id.
type Sink interface {
	ImportSession(ctx context.Context, id string, raw []byte, isYAML bool) error
}

// Watcher imports every session file already in a directory and then every
// file created or rewritten there.
type Watcher struct {
	dir        string
	sink       Sink
	extensions []string
	logger     logger.Logger
	ready      chan struct{}
}

// New creates a Watcher for dir.
func New(dir string, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		dir:        dir,
		sink:       sink,
		extensions: defaultExtensions,
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("inbox")
	}
	return w
}

// Ready is closed once the directory is watched and its existing files have
// been imported.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info(ctx, "watching inbox", logger.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.watched(ev.Name) {
				continue
			}
			w.importFile(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			metrics.RecordErrorByComponent("inbox", "watch")
			w.logger.Warn(ctx, "inbox watch error", logger.Error(err))
		}
	}
}

// Scan imports the files currently in the directory and returns how many were
// stored.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox %s: %w", w.dir, err)
	}
	stored := 0
	for _, e := range entries {
		if e.IsDir() || !w.watched(e.Name()) {
			continue
		}
		if w.importFile(ctx, filepath.Join(w.dir, e.Name())) {
			stored++
		}
	}
	return stored, nil
}

func (w *Watcher) importFile(ctx context.Context, path string) bool {
	log := w.logger.With(logger.String("file", filepath.Base(path)))

	raw, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordInboxFile("error")
		log.Warn(ctx, "cannot read inbox file", logger.Error(err))
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	id := SessionID(path)

	err = w.sink.ImportSession(ctx, id, raw, ext == ".yaml" || ext == ".yml")
	switch {
	case err == nil:
		metrics.RecordInboxFile("stored")
		log.Info(ctx, "session imported", logger.String("session_id", id))
		return true
	case errors.Is(err, session.ErrSchema), errors.Is(err, session.ErrMalformedTurn):
		metrics.RecordInboxFile("invalid")
		log.Warn(ctx, "skipping invalid session document", logger.Error(err))
	default:
		metrics.RecordInboxFile("error")
		log.Error(ctx, "session import failed", logger.Error(err))
	}
	return false
}

func (w *Watcher) watched(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// SessionID derives a session id from a file name: cota_fp2.yaml -> cota_fp2.
func SessionID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
