package repository

import (
	"errors"
	"time"

	"github.com/okian/pitwall/pkg/metrics"
)

// observe records the latency and result of one store call.
func observe(op string, start time.Time, err *error) {
	result := "ok"
	switch {
	case *err == nil:
	case errors.Is(*err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
		metrics.RecordErrorByComponent("repository", op)
	}
	metrics.RecordStoreOperation(op, result, float64(time.Since(start).Microseconds())/1000)
}
