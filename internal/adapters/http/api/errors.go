package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// opError ties an operation name to an error kind and, optionally, the cause.
type opError struct {
	op    string
	kind  error
	cause error
}

func (e *opError) Error() string {
	switch {
	case e.kind == nil:
		return fmt.Sprintf("%s: %v", e.op, e.cause)
	case e.cause == nil:
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	default:
		return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.cause)
	}
}

func (e *opError) Unwrap() []error {
	var errs []error
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// NewKind returns an error of the given kind raised by op.
func NewKind(op string, kind error) error {
	return &opError{op: op, kind: kind}
}

// WrapKind attaches a kind to cause.
func WrapKind(op string, kind, cause error) error {
	return &opError{op: op, kind: kind, cause: cause}
}

// Wrap prefixes cause with op and keeps its kind.
func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &opError{op: op, cause: cause}
}
