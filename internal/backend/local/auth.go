// ABOUTME: Email and password identities with JWT sessions for the embedded backend
// ABOUTME: Sessions are rows in auth_sessions so sign-out revokes them server side

package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/safespace/safespace-admin/internal/auth"
	"github.com/safespace/safespace-admin/internal/backend"
)

const minPasswordLength = 6

var errInvalidLogin = &backend.Error{
	Status:  http.StatusBadRequest,
	Code:    backend.CodeInvalidLogin,
	Message: "Invalid login credentials",
}

// SignIn authenticates with email and password and persists the session.
func (s *Store) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	var id, storedEmail, hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash FROM auth_users WHERE email = ?",
		strings.TrimSpace(email),
	).Scan(&id, &storedEmail, &hash)

	if errors.Is(err, sql.ErrNoRows) {
		_ = auth.CheckPassword("", password)
		return nil, errInvalidLogin
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, errInvalidLogin
	}

	sessionID := uuid.New().String()
	token, expiresAt, err := s.tokens.Generate(id, storedEmail, sessionID, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sessionID, id, s.timestamp(), expiresAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	session := &backend.Session{
		AccessToken: token,
		UserID:      id,
		Email:       storedEmail,
		ExpiresAt:   expiresAt,
	}
	if err := s.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	s.logger.Debug("signed in", "user_id", id)
	return session, nil
}

// SignUp creates a new identity. No session is created.
func (s *Store) SignUp(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &backend.Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Email is required"}
	}
	if len(password) < minPasswordLength {
		return nil, &backend.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    "weak_password",
			Message: fmt.Sprintf("Password should be at least %d characters.", minPasswordLength),
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	var metadata any
	if len(attrs) > 0 {
		buf, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = string(buf)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO auth_users (id, email, password_hash, metadata_json, created_at) VALUES (?, ?, ?, ?, ?)",
		id, email, hash, metadata, s.timestamp(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: backend.CodeUserExists, Message: "User already registered"}
		}
		return nil, fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Info("created identity", "user_id", id)
	return &backend.Identity{UserID: id, Email: email}, nil
}

// SignOut revokes the current session and always clears it locally.
func (s *Store) SignOut(ctx context.Context) error {
	session, loadErr := s.sessions.Load()
	clearErr := s.sessions.Clear()
	if loadErr != nil {
		s.logger.Warn("discarding unreadable session", "error", loadErr)
	}

	if session != nil {
		claims, err := s.tokens.Verify(session.AccessToken)
		if err == nil {
			if _, err := s.db.ExecContext(ctx,
				"UPDATE auth_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
				s.timestamp(), claims.SessionID,
			); err != nil {
				return fmt.Errorf("revoking session: %w", err)
			}
		}
	}

	if clearErr != nil {
		return fmt.Errorf("clearing session: %w", clearErr)
	}
	return nil
}

// CurrentSession returns the persisted session when its token still verifies
// and it has not been revoked. Anything else clears it and returns nil.
func (s *Store) CurrentSession(ctx context.Context) (*backend.Session, error) {
	session, err := s.sessions.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	claims, err := s.tokens.Verify(session.AccessToken)
	if err != nil {
		s.logger.Debug("discarding session", "reason", err)
		_ = s.sessions.Clear()
		return nil, nil
	}

	var revoked sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT revoked_at FROM auth_sessions WHERE id = ? AND user_id = ?",
		claims.SessionID, claims.Subject,
	).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && revoked.Valid) {
		_ = s.sessions.Clear()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// DeleteIdentity removes an identity and its sessions.
func (s *Store) DeleteIdentity(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM auth_users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &backend.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	s.logger.Info("deleted identity", "user_id", userID)
	return nil
}

// FindIdentity returns the identity registered for email, or nil.
func (s *Store) FindIdentity(ctx context.Context, email string) (*backend.Identity, error) {
	var id, stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email FROM auth_users WHERE email = ? COLLATE NOCASE",
		strings.TrimSpace(email),
	).Scan(&id, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return &backend.Identity{UserID: id, Email: stored}, nil
}

// CreateIdentity creates an identity. Local identities need no confirmation
// and signup never opens a session, so this is SignUp.
func (s *Store) CreateIdentity(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	return s.SignUp(ctx, email, password, attrs)
}
