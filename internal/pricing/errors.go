package pricing

import (
	"errors"
	"fmt"
)

// Failure kinds. Match with errors.Is; the concrete error is usually an *Error
// carrying a caller-facing message.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnconfigured     = errors.New("unconfigured")
	ErrConflict         = errors.New("conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error is a failure of one of the kinds above with a message safe to return
// to API callers.
type Error struct {
	Kind    error
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing message of err: the *Error message if err
// wraps one, err.Error() otherwise.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
