// ABOUTME: Remote collaborator contract for the hosted backend-as-a-service
// ABOUTME: Defines Auth, Rows, Procedures and Objects interfaces plus query types

package backend

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Table names used by the console.
const (
	TableAdmins         = "admins"
	TableUsers          = "users"
	TableUserRoles      = "user_roles"
	TableEntertainment  = "entertainments"
	TableAuditLogs      = "audit_logs"
	TableDoctors        = "doctors"
	TableDoctorRequests = "doctor_registration_requests"
)

// ProcApproveAdmin is the stored procedure that moves an admin out of pending.
const ProcApproveAdmin = "approve_admin"

// Session is the backend's proof of authentication.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry, allowing a
// small skew so tokens are refreshed slightly early.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(10 * time.Second).Before(s.ExpiresAt)
}

// Identity is an authentication identity created by SignUp.
type Identity struct {
	UserID string
	Email  string
}

// Auth is the authentication half of the backend.
type Auth interface {
	// SignIn authenticates with email and password and persists the session.
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates a new identity. attrs is stored as user metadata.
	SignUp(ctx context.Context, email, password string, attrs map[string]any) (*Identity, error)
	// SignOut revokes the current session remotely and always clears it locally.
	SignOut(ctx context.Context) error
	// CurrentSession returns the persisted session, or nil when there is none
	// or the backend no longer accepts it.
	CurrentSession(ctx context.Context) (*Session, error)
	// DeleteIdentity removes an identity. Used to roll back a half-finished signup.
	DeleteIdentity(ctx context.Context, userID string) error
}

// IdentityAdmin manages identities with service privileges, outside any
// signed-in session.
type IdentityAdmin interface {
	// FindIdentity returns the identity registered for email, or nil.
	FindIdentity(ctx context.Context, email string) (*Identity, error)
	// CreateIdentity creates a confirmed identity. No session is opened.
	CreateIdentity(ctx context.Context, email, password string, attrs map[string]any) (*Identity, error)
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpILike Op = "ilike" // case-insensitive pattern, * or % as wildcard
)

// Filter restricts rows to those where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// ILike is shorthand for a case-insensitive substring match.
func ILike(column, term string) Filter {
	return Filter{Column: column, Op: OpILike, Value: "*" + term + "*"}
}

// Order sorts results by a column.
type Order struct {
	Column    string
	Ascending bool
}

// Range selects rows From..To inclusive, zero based.
type Range struct {
	From int
	To   int
}

// Query describes a select or count.
type Query struct {
	Columns string   // comma separated projection, empty means all
	Filters []Filter // ANDed
	Any     []Filter // ORed together, then ANDed with Filters
	Order   *Order
	Range   *Range
	Single  bool // exactly one row expected; zero rows is a CodeNoRows error
}

// Rows is row access by table name.
type Rows interface {
	Select(ctx context.Context, table string, q Query) ([]json.RawMessage, error)
	Count(ctx context.Context, table string, q Query) (int, error)
	// Insert stores row and returns the stored representation.
	Insert(ctx context.Context, table string, row any) (json.RawMessage, error)
	// Update applies patch to every row matching filters and returns them.
	Update(ctx context.Context, table string, filters []Filter, patch any) ([]json.RawMessage, error)
	Delete(ctx context.Context, table string, filters []Filter) error
}

// Procedures invokes stored procedures.
type Procedures interface {
	Call(ctx context.Context, name string, args any) (json.RawMessage, error)
}

// UploadOptions controls object uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string // seconds, e.g. "3600"
	Upsert       bool
}

// ListOptions narrows an object listing.
type ListOptions struct {
	Search string
	Limit  int
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// Objects is bucket-based object storage.
type Objects interface {
	// Upload stores body at path inside bucket and returns the stored path.
	Upload(ctx context.Context, bucket, path string, body io.Reader, opts UploadOptions) (string, error)
	List(ctx context.Context, bucket, prefix string, opts ListOptions) ([]ObjectInfo, error)
	Remove(ctx context.Context, bucket string, paths []string) error
	PublicURL(bucket, path string) string
}

// Client bundles the halves of the backend.
type Client struct {
	Auth       Auth
	Identities IdentityAdmin
	Rows       Rows
	RPC        Procedures
	Storage    Objects
}
