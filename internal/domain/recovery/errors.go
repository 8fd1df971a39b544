package recovery

import "errors"

// ErrInvalidRaceData is returned when race data cannot be decoded.
var ErrInvalidRaceData = errors.New("invalid race data")
