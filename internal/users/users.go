// ABOUTME: Platform user records: listing, search, profile and status updates
// ABOUTME: Stats counts users per status and registrations in the last 30 days

package users

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

// ErrInvalidStatus is returned for a status outside active, inactive, suspended.
var ErrInvalidStatus = errors.New("invalid user status")

// ErrNotFound is returned when an update matches no user.
var ErrNotFound = errors.New("user not found")

// RecentWindow is how far back Stats counts new registrations.
const RecentWindow = 30 * 24 * time.Hour

// Stats summarises the user base.
type Stats struct {
	Total               int
	Active              int
	Inactive            int
	Suspended           int
	RecentRegistrations int
}

// Service reads and writes the users table.
type Service struct {
	rows   backend.Rows
	logger *slog.Logger
}

// New creates a Service.
func New(rows backend.Rows, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{rows: rows, logger: logger.With("component", "users")}
}

func (s *Service) list(ctx context.Context, q backend.Query) ([]schema.User, error) {
	q.Order = &backend.Order{Column: "created_at", Ascending: false}
	rows, err := s.rows.Select(ctx, backend.TableUsers, q)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return schema.DecodeAll[schema.User](rows)
}

// List returns every user, newest first.
func (s *Service) List(ctx context.Context) ([]schema.User, error) {
	return s.list(ctx, backend.Query{})
}

// Get returns the user with id, or nil when there is none.
func (s *Service) Get(ctx context.Context, id string) (*schema.User, error) {
	rows, err := s.rows.Select(ctx, backend.TableUsers, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Single:  true,
	})
	if backend.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return schema.One[schema.User](rows)
}

// Search matches query against email and full name.
func (s *Service) Search(ctx context.Context, query string) ([]schema.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx)
	}
	return s.list(ctx, backend.Query{Any: []backend.Filter{
		backend.ILike("email", query),
		backend.ILike("full_name", query),
	}})
}

// Update applies patch to the user with id.
func (s *Service) Update(ctx context.Context, id string, patch schema.UserPatch) (*schema.User, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}
	rows, err := s.rows.Update(ctx, backend.TableUsers, []backend.Filter{backend.Eq("id", id)}, patch)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	u, err := schema.One[schema.User](rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("user updated", "user_id", id)
	return u, nil
}

// UpdateStatus sets the status of the user with id.
func (s *Service) UpdateStatus(ctx context.Context, id string, status schema.UserStatus) (*schema.User, error) {
	u, err := s.Update(ctx, id, schema.UserPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user status changed", "user_id", id, "status", status)
	return u, nil
}

// Delete removes the user with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.rows.Delete(ctx, backend.TableUsers, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// Stats counts users per status and those created within RecentWindow of now.
func (s *Service) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	count := func(filters ...backend.Filter) (int, error) {
		return s.rows.Count(ctx, backend.TableUsers, backend.Query{Filters: filters})
	}

	var st Stats
	var err error
	if st.Total, err = count(); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if st.Active, err = count(backend.Eq("status", string(schema.UserStatusActive))); err != nil {
		return nil, fmt.Errorf("counting active users: %w", err)
	}
	if st.Inactive, err = count(backend.Eq("status", string(schema.UserStatusInactive))); err != nil {
		return nil, fmt.Errorf("counting inactive users: %w", err)
	}
	if st.Suspended, err = count(backend.Eq("status", string(schema.UserStatusSuspended))); err != nil {
		return nil, fmt.Errorf("counting suspended users: %w", err)
	}
	since := now.Add(-RecentWindow).UTC()
	if st.RecentRegistrations, err = count(backend.Filter{Column: "created_at", Op: backend.OpGte, Value: since}); err != nil {
		return nil, fmt.Errorf("counting recent registrations: %w", err)
	}
	return &st, nil
}
