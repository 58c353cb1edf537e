package allocation

import "errors"

// ErrNotFound is returned when an offer, candidate, position or slot id is unknown.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when an operation would move an entity out
// of a state that does not allow it (e.g. accepting a resolved offer).
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidationError describes a malformed record. Records that fail validation
// are skipped or defaulted, never fatal.
type ValidationError struct {
	Record string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Record == "" {
		return e.Msg
	}
	return e.Record + ": " + e.Msg
}
