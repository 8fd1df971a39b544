package inbox

import (
	"strings"

	"github.com/okian/pitwall/pkg/logger"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExtensions replaces the watched file extensions (".json", ".yaml", ".yml").
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) == 0 {
			return
		}
		w.extensions = make([]string, len(exts))
		for i, e := range exts {
			w.extensions[i] = strings.ToLower(e)
		}
	}
}
