package posts

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every failure leaving a repository or the service matches
// exactly one of these through errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("post not found")
	ErrConflict   = errors.New("conflicting write")
	ErrTransient  = errors.New("store temporarily unavailable")
	ErrInternal   = errors.New("internal error")
)

// ValidationError describes the first offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a backend failure with its kind. The driver error stays
// reachable for errors.As and logging but must not be shown to API callers.
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func NewStoreError(op string, kind, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify maps any error to one of the kind sentinels. Deadline overruns are
// transient; anything unknown is internal.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	default:
		return ErrInternal
	}
}

// NotFound builds the error returned for a missing post id.
func NotFound(op string, id int64) error {
	return NewStoreError(op, ErrNotFound, fmt.Errorf("id %d", id))
}
