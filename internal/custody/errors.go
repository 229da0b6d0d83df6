package custody

import (
	"errors"
	"fmt"
)

// Error kinds returned by custody operations. Match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrExpired    = errors.New("expired")
	ErrTimeLocked = errors.New("time locked")
)

// Error is a classified failure whose message is safe to show to callers
// and to record in the audit log.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func permissionError(format string, args ...any) error {
	return newError(ErrPermission, format, args...)
}

func notFoundError(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

// publicMessage is what the audit log records for a failed attempt.
func publicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}

// commitThenFail asks the unit of work to commit what fn already wrote and
// then report err. Used when detecting a deadline must persist the expiry.
type commitThenFail struct {
	err error
}

func (c *commitThenFail) Error() string {
	return c.err.Error()
}

func (c *commitThenFail) Unwrap() error {
	return c.err
}
