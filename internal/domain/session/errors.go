package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks a document that does not have the required shape.
	ErrSchema = errors.New("schema error")
	// ErrMalformedTurn marks a turn missing a telemetry field the engine reads.
	ErrMalformedTurn = errors.New("malformed turn")
)

// SchemaError reports a missing or mistyped document key.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error: %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// MalformedTurnError reports the first unreadable field of a turn. Index is
// -1 when the turn position is not known.
type MalformedTurnError struct {
	Index  int
	TurnID string
	Field  string
}

func (e *MalformedTurnError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("malformed turn: bad field %s", e.Field)
	case e.TurnID != "":
		return fmt.Sprintf("malformed turn %d (%s): missing %s", e.Index, e.TurnID, e.Field)
	default:
		return fmt.Sprintf("malformed turn %d: missing %s", e.Index, e.Field)
	}
}

func (e *MalformedTurnError) Unwrap() error { return ErrMalformedTurn }

func missing(path string) error {
	return &SchemaError{Path: path, Reason: "missing required key"}
}
