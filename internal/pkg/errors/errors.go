package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel for a graph/node/edge reference that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrValidation is the sentinel for input that fails range/enum/limit checks.
	ErrValidation = errors.New("validation failed")
	// ErrStructural is the sentinel for self-loops, cycles, and cross-graph edges.
	ErrStructural = errors.New("structural violation")
	// ErrIllegalTransition is the sentinel for status changes outside the allowed tables.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrVersionConflict is returned by the state store when a compare-and-set loses.
	ErrVersionConflict = errors.New("version conflict")
)

// The constructors below wrap their sentinel so callers can test with errors.Is
// while the message carries the offending value.

func NotFoundf(format string, args ...interface{}) error {
	return wrapf(ErrNotFound, format, args...)
}

func Validationf(format string, args ...interface{}) error {
	return wrapf(ErrValidation, format, args...)
}

func Structuralf(format string, args ...interface{}) error {
	return wrapf(ErrStructural, format, args...)
}

func Transitionf(format string, args ...interface{}) error {
	return wrapf(ErrIllegalTransition, format, args...)
}

func wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
