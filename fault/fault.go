// Package fault defines the machine-readable error envelope shared by
// every core operation. Handlers map a Code to an HTTP status; callers
// branch on Code, never on message text.
package fault

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeOrdinance         Code = "ORDINANCE_VIOLATION"
	CodeNegativeBalance   Code = "NEGATIVE_BALANCE_REJECTED"
	CodeNoBalance         Code = "NO_BALANCE"
	CodeConflict          Code = "CONFLICT"
	CodeUpstream          Code = "UPSTREAM"
)

// Error carries a code plus, for transition rejections, the current and
// attempted statuses so the caller can resync.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Current   string `json:"current_status,omitempty"`
	Attempted string `json:"attempted_status,omitempty"`
}

func (e *Error) Error() string {
	if e.Current != "" || e.Attempted != "" {
		return fmt.Sprintf("%s: %s (current=%s attempted=%s)", e.Code, e.Message, e.Current, e.Attempted)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transition builds an INVALID_TRANSITION rejection carrying both sides.
func Transition(current, attempted string) *Error {
	return &Error{
		Code:      CodeInvalidTransition,
		Message:   fmt.Sprintf("cannot move from %q to %q", current, attempted),
		Current:   current,
		Attempted: attempted,
	}
}

// Upstream wraps a store or network failure. These are safe to retry
// because every core operation is atomic.
func Upstream(err error) *Error {
	return &Error{Code: CodeUpstream, Message: err.Error()}
}

// CodeOf extracts the code from err, or UPSTREAM for untyped errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUpstream
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
