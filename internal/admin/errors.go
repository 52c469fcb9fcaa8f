// ABOUTME: Error taxonomy for admin identity and approval operations
// ABOUTME: Kinds are sentinels matched with errors.Is; Error carries the user-facing message

package admin

import (
	"errors"
	"fmt"

	"github.com/safespace/safespace-admin/internal/backend"
)

// Error kinds.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountNotFound      = errors.New("admin account not found")
	ErrPendingApproval      = errors.New("account pending approval")
	ErrAuthorizationDenied  = errors.New("authorization denied")
	ErrNotFound             = errors.New("not found")
	ErrRemoteUnavailable    = errors.New("remote unavailable")
	ErrValidationFailed     = errors.New("validation failed")

	// ErrRemote is a backend failure with no specific mapping. The message
	// is the backend's own.
	ErrRemote = errors.New("remote error")

	// ErrPartialSignup means an identity was created but its admin row was
	// not, and the identity could not be removed again.
	ErrPartialSignup = errors.New("partial signup")
)

// Error is returned by every admin operation.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func denied(msg string) *Error {
	return newError(ErrAuthorizationDenied, msg)
}

func invalid(msg string) *Error {
	return newError(ErrValidationFailed, msg)
}

// fromRemote classifies a backend error. what names the operation for the
// fallback message.
func fromRemote(err error, what string) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		return &Error{Kind: ErrRemoteUnavailable, Message: "Unable to reach the server. Please try again.", Err: err}
	case backend.IsNotFound(err):
		return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s: not found", what), Err: err}
	case backend.IsUnauthorized(err):
		return &Error{Kind: ErrAuthorizationDenied, Message: "Your session has expired. Please sign in again.", Err: err}
	}
	msg := backend.Message(err)
	if msg == "" {
		msg = what + " failed"
	}
	return &Error{Kind: ErrRemote, Message: msg, Err: err}
}

// KindOf returns the kind of err, or nil when err is not an *Error.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}
