// ABOUTME: Tests for backend error classification helpers
// ABOUTME: Covers wrapped errors, status-based and code-based matches

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNoRows(t *testing.T) {
	err := &Error{Status: http.StatusNotAcceptable, Code: CodeNoRows, Message: "JSON object requested, multiple (or no) rows returned"}

	assert.True(t, IsNoRows(err))
	assert.True(t, IsNoRows(fmt.Errorf("fetching admin: %w", err)))
	assert.False(t, IsNoRows(&Error{Code: CodeUniqueViolation}))
	assert.False(t, IsNoRows(errors.New("PGRST116")))
	assert.False(t, IsNoRows(nil))
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no rows", &Error{Code: CodeNoRows}, true},
		{"object code", &Error{Code: CodeObjectNotFound, Message: "Object not found"}, true},
		{"status 404", &Error{Status: http.StatusNotFound}, true},
		{"message only", &Error{Status: http.StatusBadRequest, Message: "File not found"}, true},
		{"other", &Error{Status: http.StatusBadRequest, Message: "bad request"}, false},
		{"plain error", errors.New("not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&Error{Status: http.StatusUnauthorized}))
	assert.True(t, IsUnauthorized(&Error{Status: http.StatusForbidden, Code: CodeJWTInvalid}))
	assert.False(t, IsUnauthorized(&Error{Status: http.StatusForbidden}))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(&Error{Code: CodeUndefinedTable}))
	assert.True(t, IsUndefinedTable(&Error{Message: `relation "public.user_roles" does not exist`}))
	assert.False(t, IsUndefinedTable(&Error{Code: CodeNoRows}))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&Error{Code: CodeUniqueViolation}))
	assert.True(t, IsUniqueViolation(&Error{Code: CodeUserExists}))
	assert.True(t, IsUniqueViolation(&Error{Message: "User already registered"}))
	assert.False(t, IsUniqueViolation(&Error{Code: CodeNoRows}))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Invalid login credentials", Message(fmt.Errorf("signing in: %w", &Error{Message: "Invalid login credentials", Code: CodeInvalidLogin})))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "", Message(nil))
}

func TestError_String(t *testing.T) {
	assert.Equal(t, "duplicate key (23505)", (&Error{Code: CodeUniqueViolation, Message: "duplicate key"}).Error())
	assert.Equal(t, "plain", (&Error{Message: "plain"}).Error())
}
