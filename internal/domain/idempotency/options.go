package idempotency

type options struct {
	maxSize int
}

// Option configures NewLRU.
type Option func(*options)

// WithMaxSize sets how many keys are kept. Non-positive values keep the default.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		if maxSize > 0 {
			o.maxSize = maxSize
		}
	}
}
