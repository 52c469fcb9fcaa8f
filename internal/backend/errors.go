// ABOUTME: Backend error type and classification helpers
// ABOUTME: Maps backend error codes (PGRST116, 42P01, 23505) to predicates

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Backend error codes the console reacts to.
const (
	CodeNoRows          = "PGRST116"
	CodeJWTInvalid      = "PGRST301"
	CodeUndefinedTable  = "42P01"
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
	CodeUnknownFunction = "PGRST202"
	CodeUnknownColumn   = "PGRST204"
	CodeObjectNotFound  = "not_found"
	CodeDuplicateObject = "Duplicate"
	CodeUserExists      = "user_already_exists"
	CodeInvalidLogin    = "invalid_credentials"
)

// ErrUnavailable wraps transport failures: the backend could not be reached or
// returned something that is not a backend response.
var ErrUnavailable = errors.New("backend unavailable")

// ErrServiceKeyRequired is returned by operations that need the service-role key.
var ErrServiceKeyRequired = errors.New("service role key required")

// Error is a failure reported by the backend.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Message returns the human-readable backend message for err, or err.Error()
// when err is not a backend error.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func asError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsNoRows reports whether err is a single-row select that matched nothing.
func IsNoRows(err error) bool {
	be, ok := asError(err)
	return ok && be.Code == CodeNoRows
}

// IsNotFound reports whether err means the row or object does not exist.
func IsNotFound(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	if be.Code == CodeNoRows || be.Code == CodeObjectNotFound || be.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(be.Message), "not found")
}

// IsUnauthorized reports whether the backend rejected the session token.
func IsUnauthorized(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Status == http.StatusUnauthorized || be.Code == CodeJWTInvalid
}

// IsUndefinedTable reports whether the table has not been created.
func IsUndefinedTable(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Code == CodeUndefinedTable || strings.Contains(be.Message, "does not exist")
}

// IsUniqueViolation reports whether err is a duplicate key or duplicate identity.
func IsUniqueViolation(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Code == CodeUniqueViolation || be.Code == CodeUserExists ||
		strings.Contains(be.Message, "already registered")
}
