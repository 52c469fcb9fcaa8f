// ABOUTME: HTTP client for the hosted backend (auth, rest, rpc and storage endpoints)
// ABOUTME: Shared request plumbing, header handling and error decoding live here

package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
)

const (
	defaultTimeout = 30 * time.Second
	clientInfo     = "safespace-admin"
)

// Options configures a Client.
type Options struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string // optional, only needed for DeleteIdentity
	Timeout        time.Duration
	Sessions       backend.SessionStore
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client talks to a hosted backend over HTTP. It implements backend.Auth,
// backend.Rows, backend.Procedures and backend.Objects.
type Client struct {
	base       *url.URL
	anonKey    string
	serviceKey string
	http       *http.Client
	sessions   backend.SessionStore
	logger     *slog.Logger
	now        func() time.Time

	// serializes session load/refresh so concurrent calls refresh once
	mu sync.Mutex
}

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("backend url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.URL)
	}
	if opts.AnonKey == "" {
		return nil, errors.New("anon key is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = backend.NewMemorySessionStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:       base,
		anonKey:    opts.AnonKey,
		serviceKey: opts.ServiceRoleKey,
		http:       hc,
		sessions:   sessions,
		logger:     logger.With("component", "supabase"),
		now:        time.Now,
	}, nil
}

// Backend returns the client as a backend.Client.
func (c *Client) Backend() *backend.Client {
	return &backend.Client{Auth: c, Identities: c, Rows: c, RPC: c, Storage: c}
}

// authMode selects the credentials a request is sent with.
type authMode int

const (
	authSession authMode = iota // current session token, falling back to the anon key
	authAnon                    // anon key only
	authService                 // service role key
	authToken                   // explicit bearer token in request.token
)

type request struct {
	method  string
	path    string
	query   url.Values
	body    any       // JSON encoded
	raw     io.Reader // sent as is, takes precedence over body
	headers http.Header
	auth    authMode
	token   string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	switch {
	case r.raw != nil:
		body = r.raw
	case r.body != nil:
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.body != nil && r.raw == nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Client-Info", clientInfo)

	apiKey, bearer, err := c.credentials(ctx, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", backend.ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", backend.ErrUnavailable, err)
	}

	c.logger.Debug("backend request",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration", c.now().Sub(start),
	)

	if resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, resp.Header, data)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) credentials(ctx context.Context, r request) (apiKey, bearer string, err error) {
	switch r.auth {
	case authAnon:
		return c.anonKey, c.anonKey, nil
	case authService:
		if c.serviceKey == "" {
			return "", "", backend.ErrServiceKeyRequired
		}
		return c.serviceKey, c.serviceKey, nil
	case authToken:
		return c.anonKey, r.token, nil
	}

	s, err := c.CurrentSession(ctx)
	if err != nil {
		return "", "", err
	}
	if s == nil {
		return c.anonKey, c.anonKey, nil
	}
	return c.anonKey, s.AccessToken, nil
}

// errorBody covers the error shapes of the rest, auth and storage services.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          *string         `json:"details"`
	Hint             *string         `json:"hint"`
}

func parseError(status int, header http.Header, data []byte) error {
	e := &backend.Error{Status: status}

	var eb errorBody
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &eb) != nil {
		if status >= 500 && !strings.Contains(header.Get("Content-Type"), "json") {
			return fmt.Errorf("%w: status %d", backend.ErrUnavailable, status)
		}
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	var code string
	if json.Unmarshal(eb.Code, &code) == nil {
		e.Code = code
	}
	if eb.ErrorCode != "" {
		e.Code = eb.ErrorCode
	}

	for _, m := range []string{eb.Message, eb.Msg, eb.ErrorDescription, eb.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	if e.Code == "" && eb.Error != "" && e.Message != eb.Error {
		e.Code = eb.Error
	}

	var details []string
	if eb.Details != nil && *eb.Details != "" {
		details = append(details, *eb.Details)
	}
	if eb.Hint != nil && *eb.Hint != "" {
		details = append(details, *eb.Hint)
	}
	e.Details = strings.Join(details, "; ")
	return e
}
