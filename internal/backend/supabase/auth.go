// ABOUTME: Password sign-in, signup, sign-out and session refresh against the auth service
// ABOUTME: Sessions are persisted through the configured backend.SessionStore

package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/safespace/safespace-admin/internal/auth"
	"github.com/safespace/safespace-admin/internal/backend"
)

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	User         *authUser `json:"user"`
}

func (c *Client) sessionFrom(tr *tokenResponse) (*backend.Session, error) {
	if tr.AccessToken == "" || tr.User == nil || tr.User.ID == "" {
		return nil, fmt.Errorf("%w: token response missing session", backend.ErrUnavailable)
	}
	s := &backend.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	default:
		if claims, err := auth.ParseUnverified(tr.AccessToken); err == nil {
			s.ExpiresAt = claims.ExpiresAt
		}
	}
	return s, nil
}

// SignIn authenticates with email and password and persists the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
		auth:   authAnon,
	})
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %v", backend.ErrUnavailable, err)
	}
	s, err := c.sessionFrom(&tr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sessions.Save(s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return s, nil
}

// SignUp creates a new identity. When the backend confirms the email
// immediately it also returns a session, which is persisted like a sign-in.
func (c *Client) SignUp(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	body := map[string]any{"email": email, "password": password}
	if len(attrs) > 0 {
		body["data"] = attrs
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   body,
		auth:   authAnon,
	})
	if err != nil {
		return nil, err
	}

	// Either a bare user or a token response with a nested user.
	var out struct {
		authUser
		tokenResponse
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding signup response: %v", backend.ErrUnavailable, err)
	}

	id := &backend.Identity{UserID: out.authUser.ID, Email: out.authUser.Email}
	if out.tokenResponse.User != nil {
		id = &backend.Identity{UserID: out.tokenResponse.User.ID, Email: out.tokenResponse.User.Email}
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: signup response missing user id", backend.ErrUnavailable)
	}

	if out.tokenResponse.AccessToken != "" {
		s, err := c.sessionFrom(&out.tokenResponse)
		if err == nil {
			c.mu.Lock()
			_ = c.sessions.Save(s)
			c.mu.Unlock()
		}
	}
	return id, nil
}

// SignOut revokes the current session remotely and always clears it locally.
// A session the backend already considers invalid is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s, loadErr := c.sessions.Load()
	clearErr := c.sessions.Clear()
	c.mu.Unlock()

	if loadErr != nil {
		c.logger.Warn("discarding unreadable session", "error", loadErr)
	}

	var remoteErr error
	if s != nil && s.AccessToken != "" {
		_, remoteErr = c.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			auth:   authToken,
			token:  s.AccessToken,
		})
		if backend.IsUnauthorized(remoteErr) || backend.IsNotFound(remoteErr) {
			remoteErr = nil
		}
	}

	if remoteErr != nil {
		return remoteErr
	}
	if clearErr != nil {
		return fmt.Errorf("clearing session: %w", clearErr)
	}
	return nil
}

// CurrentSession returns the persisted session, refreshing it when it has
// expired. It returns nil when there is no session or the refresh token was
// rejected.
func (c *Client) CurrentSession(ctx context.Context) (*backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessions.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if !s.Expired(c.now()) {
		return s, nil
	}

	if s.RefreshToken == "" {
		_ = c.sessions.Clear()
		return nil, nil
	}

	refreshed, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && be.Status >= 400 && be.Status < 500 {
			c.logger.Info("refresh token rejected, clearing session", "code", be.Code)
			_ = c.sessions.Clear()
			return nil, nil
		}
		return nil, err
	}
	if err := c.sessions.Save(refreshed); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return refreshed, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*backend.Session, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		auth:   authAnon,
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("%w: decoding refresh response: %v", backend.ErrUnavailable, err)
	}
	return c.sessionFrom(&tr)
}

// DeleteIdentity removes an identity through the admin endpoint. It needs the
// service role key.
func (c *Client) DeleteIdentity(ctx context.Context, userID string) error {
	_, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/auth/v1/admin/users/" + url.PathEscape(userID),
		auth:   authService,
	})
	return err
}
