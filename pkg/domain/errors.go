package domain

import (
	"errors"
	"fmt"
)

// Sentinel error classes. Concrete errors match them through errors.Is so
// callers can tell "fix your input" from "pick another target" from "gone".
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
)

// ValidationError is a caller-correctable input error. Reason is meant to be
// shown to the user verbatim.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// Is reports whether target is ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalidf builds a ValidationError from a format string.
func Invalidf(format string, args ...any) error {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports that the request is well formed but the current state
// does not allow it. Deficit carries the missing quantity for stock shortfalls.
type ConflictError struct {
	Reason  string
	Deficit float64
}

func (e ConflictError) Error() string { return e.Reason }

// Is reports whether target is ErrConflict.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }
