// ABOUTME: Service-key identity administration through the auth admin endpoints
// ABOUTME: Looks identities up by email and creates confirmed identities without a session

package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
)

const identityPageSize = 200

// FindIdentity pages through the admin user listing for email. It needs the
// service role key.
func (c *Client) FindIdentity(ctx context.Context, email string) (*backend.Identity, error) {
	email = strings.TrimSpace(email)
	for page := 1; ; page++ {
		resp, err := c.do(ctx, request{
			method: http.MethodGet,
			path:   "/auth/v1/admin/users",
			query: url.Values{
				"page":     {strconv.Itoa(page)},
				"per_page": {strconv.Itoa(identityPageSize)},
			},
			auth: authService,
		})
		if err != nil {
			return nil, err
		}

		var out struct {
			Users []authUser `json:"users"`
		}
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, fmt.Errorf("%w: decoding user listing: %v", backend.ErrUnavailable, err)
		}
		for _, u := range out.Users {
			if strings.EqualFold(u.Email, email) {
				return &backend.Identity{UserID: u.ID, Email: u.Email}, nil
			}
		}
		if len(out.Users) < identityPageSize {
			return nil, nil
		}
	}
}

// CreateIdentity creates an identity with its email already confirmed. It
// needs the service role key and leaves the stored session alone.
func (c *Client) CreateIdentity(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	if len(attrs) > 0 {
		body["user_metadata"] = attrs
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		body:   body,
		auth:   authService,
	})
	if err != nil {
		return nil, err
	}

	var u authUser
	if err := json.Unmarshal(resp.body, &u); err != nil {
		return nil, fmt.Errorf("%w: decoding created user: %v", backend.ErrUnavailable, err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: created user missing id", backend.ErrUnavailable)
	}
	c.logger.Info("created identity", "user_id", u.ID)
	return &backend.Identity{UserID: u.ID, Email: u.Email}, nil
}
