// Package apperrors defines the typed error taxonomy shared across the
// ingestion, review and statistics services. Callers classify failures
// with errors.Is/errors.As rather than matching message text.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel categories. Concrete errors wrap one of these so callers can
// branch on the category without knowing the specific failure.
var (
	// ErrValidation marks bad input; no mutation was performed.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks a recoverable storage failure (lock timeout,
	// connection blip); safe to retry.
	ErrTransient = errors.New("transient storage error")
	// ErrConsistency marks an operation that would violate ledger
	// consistency, e.g. a double transition. Never retried.
	ErrConsistency = errors.New("consistency error")
	// ErrNotFound marks a missing scene or component.
	ErrNotFound = errors.New("not found")
)

// ErrMissingNotes is returned when a rejection carries no reviewer notes.
var ErrMissingNotes = fmt.Errorf("%w: rejection notes are required", ErrValidation)

// ErrDetectorUnavailable is returned when the external detector cannot
// be reached; the scene is not created.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// CategoryMismatchError reports a component type that is not valid for
// its scene's category.
type CategoryMismatchError struct {
	Category   string
	Type       string
	ValidTypes []string
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("component type %q not valid for category %q (valid: %v)", e.Type, e.Category, e.ValidTypes)
}

func (e *CategoryMismatchError) Unwrap() error { return ErrValidation }

// IllegalTransitionError reports an attempt to transition a component
// that has already left the pending state.
type IllegalTransitionError struct {
	ComponentID int64
	From        string
	To          string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("component %d: illegal transition %s -> %s", e.ComponentID, e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrConsistency }

// NotFoundError reports a missing entity by kind and id.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LockTimeoutError reports a lock wait that exceeded the configured
// timeout on a contested row. Retryable.
type LockTimeoutError struct {
	Op  string
	Err error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%s: lock wait timed out: %v", e.Op, e.Err)
}

func (e *LockTimeoutError) Unwrap() error { return ErrTransient }

// RefreshFailedError is surfaced after the refresh coordinator has
// exhausted its retry budget.
type RefreshFailedError struct {
	Scope    string
	Attempts int
	Err      error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("refresh %s failed after %d attempt(s): %v", e.Scope, e.Attempts, e.Err)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// ComponentProcessingError tags a partial ingestion failure: the scene
// row was preserved but its component batch was rolled back.
type ComponentProcessingError struct {
	SceneID int64
	Err     error
}

func (e *ComponentProcessingError) Error() string {
	return fmt.Sprintf("component processing failed for scene %d: %v", e.SceneID, e.Err)
}

func (e *ComponentProcessingError) Unwrap() error { return e.Err }

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
