package order

import "errors"

// Error kinds. Use errors.Is to classify; the concrete error carries the
// message shown to the caller.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("concurrent modification")
)

// Error is a classified business error.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func NewValidationError(msg string) error { return &Error{kind: ErrValidation, msg: msg} }

func NewNotFoundError(msg string) error { return &Error{kind: ErrNotFound, msg: msg} }

func NewConflictError(msg string) error { return &Error{kind: ErrConflict, msg: msg} }

func newTransitionError(msg string) error { return &Error{kind: ErrInvalidTransition, msg: msg} }

// errOrderNotFound is returned for missing and foreign orders alike.
func errOrderNotFound() error { return NewNotFoundError("order not found") }
