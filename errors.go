package quizmaster

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict is returned by stores when an answer for the same
	// (session, question) pair already exists.
	ErrConflict     = errors.New("conflict")
	ErrInvalidDraft = errors.New("invalid draft")
)

// ValidationError names the part of a draft that failed a check.
// Index is the question position, or -1 for draft level fields.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("draft %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("question %d %s: %s", e.Index+1, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDraft }

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
