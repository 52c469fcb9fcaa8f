// ABOUTME: Platform role assignments stored in the user_roles table
// ABOUTME: One row per user with upsert, paging, search and per-role statistics

package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// ErrTableMissing is returned when the user_roles table has not been created.
var ErrTableMissing = errors.New("the user_roles table does not exist; apply the database migrations and try again")

// ErrInvalidRole is returned for a role outside the platform taxonomy.
var ErrInvalidRole = errors.New("invalid platform role")

const defaultPageSize = 10

// Page is one page of role assignments.
type Page struct {
	Roles       []schema.UserRole
	Total       int
	TotalPages  int
	CurrentPage int
}

// Stats counts assignments per role.
type Stats struct {
	Total       int
	Patients    int
	Doctors     int
	Admins      int
	Superadmins int
}

// Service reads and writes user_roles.
type Service struct {
	rows   backend.Rows
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Service.
func New(rows backend.Rows, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rows:   rows,
		logger: logger.With("component", "roles"),
		now:    time.Now,
	}
}

func wrap(err error, doing string) error {
	if backend.IsUndefinedTable(err) {
		return fmt.Errorf("%s: %w", doing, ErrTableMissing)
	}
	return fmt.Errorf("%s: %w", doing, err)
}

// Get returns the assignment of userID, or nil when there is none.
func (s *Service) Get(ctx context.Context, userID string) (*schema.UserRole, error) {
	rows, err := s.rows.Select(ctx, backend.TableUserRoles, backend.Query{
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Single:  true,
	})
	if backend.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err, "getting role")
	}
	return schema.One[schema.UserRole](rows)
}

// Upsert sets the role of userID, creating the assignment if needed.
func (s *Service) Upsert(ctx context.Context, userID string, role schema.PlatformRole) (*schema.UserRole, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.Create(ctx, userID, role)
	}

	rows, err := s.rows.Update(ctx, backend.TableUserRoles,
		[]backend.Filter{backend.Eq("user_id", userID)},
		map[string]any{"role": role, "updated_at": s.now().UTC()},
	)
	if err != nil {
		return nil, wrap(err, "updating role")
	}
	s.logger.Debug("role updated", "user_id", userID, "role", role)
	return schema.One[schema.UserRole](rows)
}

// Create inserts a new assignment. A second assignment for the same user is
// rejected by the backend.
func (s *Service) Create(ctx context.Context, userID string, role schema.PlatformRole) (*schema.UserRole, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := s.now().UTC()
	raw, err := s.rows.Insert(ctx, backend.TableUserRoles, schema.UserRoleInsert{
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, wrap(err, "creating role")
	}
	s.logger.Debug("role created", "user_id", userID, "role", role)
	return schema.Decode[schema.UserRole](raw)
}

// Delete removes the assignment of userID. Deleting a missing assignment is
// not an error.
func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.rows.Delete(ctx, backend.TableUserRoles, []backend.Filter{backend.Eq("user_id", userID)})
	if err != nil {
		return wrap(err, "deleting role")
	}
	return nil
}

// List returns every assignment, newest first.
func (s *Service) List(ctx context.Context) ([]schema.UserRole, error) {
	return s.list(ctx, backend.Query{})
}

func (s *Service) list(ctx context.Context, q backend.Query) ([]schema.UserRole, error) {
	q.Order = &backend.Order{Column: "created_at", Ascending: false}
	rows, err := s.rows.Select(ctx, backend.TableUserRoles, q)
	if err != nil {
		return nil, wrap(err, "listing roles")
	}
	return schema.DecodeAll[schema.UserRole](rows)
}

// ListPage returns one page of assignments. page is 1-based.
func (s *Service) ListPage(ctx context.Context, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	total, err := s.rows.Count(ctx, backend.TableUserRoles, backend.Query{})
	if err != nil {
		return nil, wrap(err, "counting roles")
	}

	from := (page - 1) * limit
	roles, err := s.list(ctx, backend.Query{Range: &backend.Range{From: from, To: from + limit - 1}})
	if err != nil {
		return nil, err
	}
	return &Page{
		Roles:       roles,
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	}, nil
}

// Search matches query against user ids and role names.
func (s *Service) Search(ctx context.Context, query string) ([]schema.UserRole, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx)
	}
	return s.list(ctx, backend.Query{Any: []backend.Filter{
		backend.ILike("user_id", query),
		backend.ILike("role", query),
	}})
}

// Stats counts assignments per role. A missing table counts as empty.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	roles, err := s.List(ctx)
	if errors.Is(err, ErrTableMissing) {
		s.logger.Warn("user_roles table missing, reporting empty stats")
		return &Stats{}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &Stats{Total: len(roles)}
	for _, r := range roles {
		switch r.Role {
		case schema.PlatformRolePatient:
			st.Patients++
		case schema.PlatformRoleDoctor:
			st.Doctors++
		case schema.PlatformRoleAdmin:
			st.Admins++
		case schema.PlatformRoleSuperadmin:
			st.Superadmins++
		}
	}
	return st, nil
}

// IsAdmin reports whether userID holds the admin or superadmin platform role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	r, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return r != nil && (r.Role == schema.PlatformRoleAdmin || r.Role == schema.PlatformRoleSuperadmin), nil
}
