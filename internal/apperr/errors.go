package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers at the HTTP boundary
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindGone       Kind = "gone"
	KindBadRequest Kind = "bad_request"
	KindInternal   Kind = "internal"
)

// Error is a classified application error. Details carries machine-readable
// context such as the seat numbers that could not be taken.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports an unknown trip, reservation, token or lock
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports cross-provider access
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: fmt.Sprintf(format, args...)}
}

// Conflict reports contention on shared inventory
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: fmt.Sprintf(format, args...)}
}

// Gone reports an expired lock or form
func Gone(format string, args ...interface{}) *Error {
	return &Error{Kind: KindGone, Code: "GONE", Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports a validation failure
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Code: "BAD_REQUEST", Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a storage or transaction failure
func Internal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: fmt.Sprintf(format, args...), Err: err}
}

// SeatNotAvailable lists the seat numbers that could not be taken
func SeatNotAvailable(seatNumbers []string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    "SEAT_NOT_AVAILABLE",
		Message: fmt.Sprintf("seats not available: %s", strings.Join(seatNumbers, ", ")),
		Details: map[string]interface{}{"seats": seatNumbers},
	}
}

// InsufficientSeats reports a quantity request larger than remaining capacity
func InsufficientSeats(required, available int) *Error {
	return &Error{
		Kind:    KindBadRequest,
		Code:    "INSUFFICIENT_SEATS",
		Message: fmt.Sprintf("insufficient seats: required %d, available %d", required, available),
		Details: map[string]interface{}{"required": required, "available": available},
	}
}

// WithDetail attaches a detail value and returns the same error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of err, treating unclassified errors as internal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
