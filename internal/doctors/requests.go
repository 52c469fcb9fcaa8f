// ABOUTME: Doctor registration review: list, approve and reject requests
// ABOUTME: Approval provisions the identity, platform role and doctors row idempotently

package doctors

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

var (
	// ErrForbidden is returned when the signed-in admin may not act.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid doctor data")

	// ErrNotFound is returned when no request or doctor has the id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyReviewed is returned when a request is no longer pending.
	ErrAlreadyReviewed = errors.New("request already reviewed")
)

const minPasswordLength = 6

var validate = validator.New()

// Caller reports the signed-in admin.
type Caller interface {
	Admin() *schema.AdminAccount
}

// RoleStore reads and writes platform roles.
type RoleStore interface {
	Get(ctx context.Context, userID string) (*schema.UserRole, error)
	Upsert(ctx context.Context, userID string, role schema.PlatformRole) (*schema.UserRole, error)
}

// Service reviews registrations and manages doctors.
type Service struct {
	rows       backend.Rows
	identities backend.IdentityAdmin
	objects    backend.Objects
	roles      RoleStore
	caller     Caller
	logger     *slog.Logger
	now        func() time.Time
	password   func() string
}

// New creates a Service acting as caller.
func New(b *backend.Client, caller Caller, roles RoleStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rows:       b.Rows,
		identities: b.Identities,
		objects:    b.Storage,
		roles:      roles,
		caller:     caller,
		logger:     logger.With("component", "doctors"),
		now:        time.Now,
		password:   rand.Text,
	}
}

func (s *Service) requireAdmin() (*schema.AdminAccount, error) {
	me := s.caller.Admin()
	if me == nil {
		return nil, fmt.Errorf("%w: you must be signed in", ErrForbidden)
	}
	return me, nil
}

func (s *Service) requireSuperadmin(action string) (*schema.AdminAccount, error) {
	me, err := s.requireAdmin()
	if err != nil {
		return nil, err
	}
	if me.Role != schema.AdminRoleSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can %s", ErrForbidden, action)
	}
	return me, nil
}

// Approval is the outcome of approving a request.
type Approval struct {
	Request         *schema.DoctorRequest
	Doctor          *schema.Doctor
	UserID          string
	IdentityCreated bool
	// TemporaryPassword is set when the identity was created with a
	// generated password that must be handed to the doctor.
	TemporaryPassword string
	RoleAssigned      bool
}

// ListRequests returns registration requests, newest first. An empty status
// lists every request.
func (s *Service) ListRequests(ctx context.Context, status schema.DoctorRequestStatus) ([]schema.DoctorRequest, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	q := backend.Query{Order: &backend.Order{Column: "submitted_at", Ascending: false}}
	if status != "" {
		q.Filters = []backend.Filter{backend.Eq("status", string(status))}
	}
	rows, err := s.rows.Select(ctx, backend.TableDoctorRequests, q)
	if err != nil {
		return nil, fmt.Errorf("listing registration requests: %w", err)
	}
	return schema.DecodeAll[schema.DoctorRequest](rows)
}

// GetRequest returns the request with id.
func (s *Service) GetRequest(ctx context.Context, id string) (*schema.DoctorRequest, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	return s.getRequest(ctx, id)
}

func (s *Service) getRequest(ctx context.Context, id string) (*schema.DoctorRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: a request id is required", ErrInvalid)
	}
	rows, err := s.rows.Select(ctx, backend.TableDoctorRequests, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Single:  true,
	})
	if backend.IsNoRows(err) {
		return nil, fmt.Errorf("%w: registration request %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading registration request: %w", err)
	}
	return schema.One[schema.DoctorRequest](rows)
}

// Approve turns a pending request into a doctor account. Steps that already
// happened on an earlier attempt are skipped.
func (s *Service) Approve(ctx context.Context, id string) (*Approval, error) {
	me, err := s.requireSuperadmin("approve doctor registrations")
	if err != nil {
		return nil, err
	}
	req, err := s.getRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != schema.DoctorRequestPending {
		return nil, fmt.Errorf("%w: request is %s", ErrAlreadyReviewed, req.Status)
	}

	out := &Approval{}
	if err := s.ensureIdentity(ctx, req, out); err != nil {
		return nil, err
	}
	out.RoleAssigned = s.ensureRole(ctx, out.UserID)

	doctor, err := s.ensureDoctor(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Doctor = doctor

	reviewed, err := s.review(ctx, req.ID, schema.DoctorRequestReview{
		Status:     schema.DoctorRequestApproved,
		ReviewedAt: s.now().UTC(),
		ReviewedBy: me.ID,
	})
	if err != nil {
		return nil, err
	}
	out.Request = reviewed

	s.audit(ctx, me.ID, schema.AuditApproveDoctor, req.ID, map[string]any{
		"user_id":   out.UserID,
		"doctor_id": doctor.ID,
	})
	s.logger.Info("doctor registration approved", "request_id", req.ID, "user_id", out.UserID, "by", me.ID)
	return out, nil
}

func (s *Service) ensureIdentity(ctx context.Context, req *schema.DoctorRequest, out *Approval) error {
	ident, err := s.identities.FindIdentity(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("looking up doctor identity: %w", err)
	}
	if ident != nil {
		out.UserID = ident.UserID
		return nil
	}

	var password string
	if req.Password != nil && len(*req.Password) >= minPasswordLength {
		password = *req.Password
	} else {
		password = s.password()
		out.TemporaryPassword = password
	}
	ident, err = s.identities.CreateIdentity(ctx, req.Email, password, map[string]any{
		"full_name": req.FullName,
		"user_type": string(schema.PlatformRoleDoctor),
	})
	if err != nil {
		return fmt.Errorf("creating doctor identity: %w", err)
	}
	out.UserID = ident.UserID
	out.IdentityCreated = true
	return nil
}

// ensureRole grants the doctor role to an identity without one. An identity
// that already holds another role keeps it.
func (s *Service) ensureRole(ctx context.Context, userID string) bool {
	current, err := s.roles.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("checking platform role failed", "user_id", userID, "error", err)
		return false
	}
	if current != nil {
		if current.Role != schema.PlatformRoleDoctor {
			s.logger.Warn("identity already holds a platform role, leaving it", "user_id", userID, "role", current.Role)
			return false
		}
		return true
	}
	if _, err := s.roles.Upsert(ctx, userID, schema.PlatformRoleDoctor); err != nil {
		s.logger.Warn("recording doctor role failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (s *Service) ensureDoctor(ctx context.Context, req *schema.DoctorRequest) (*schema.Doctor, error) {
	existing, err := s.findByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	phone := ""
	if req.PhoneNumber != nil {
		phone = strings.TrimSpace(*req.PhoneNumber)
	}
	raw, err := s.rows.Insert(ctx, backend.TableDoctors, schema.DoctorInsert{
		Name:     req.FullName,
		Email:    req.Email,
		Phone:    phone,
		Category: req.Specialization,
	})
	if err != nil {
		return nil, fmt.Errorf("creating doctor record: %w", err)
	}
	return schema.Decode[schema.Doctor](raw)
}

func (s *Service) findByEmail(ctx context.Context, email string) (*schema.Doctor, error) {
	rows, err := s.rows.Select(ctx, backend.TableDoctors, backend.Query{
		Filters: []backend.Filter{backend.Eq("email", email)},
	})
	if err != nil {
		return nil, fmt.Errorf("checking existing doctor: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return schema.Decode[schema.Doctor](rows[0])
}

// Reject refuses a pending request. reason is required.
func (s *Service) Reject(ctx context.Context, id, reason string) (*schema.DoctorRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a rejection reason is required", ErrInvalid)
	}
	me, err := s.requireSuperadmin("reject doctor registrations")
	if err != nil {
		return nil, err
	}
	req, err := s.getRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != schema.DoctorRequestPending {
		return nil, fmt.Errorf("%w: request is %s", ErrAlreadyReviewed, req.Status)
	}

	reviewed, err := s.review(ctx, req.ID, schema.DoctorRequestReview{
		Status:          schema.DoctorRequestRejected,
		RejectionReason: &reason,
		ReviewedAt:      s.now().UTC(),
		ReviewedBy:      me.ID,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, me.ID, schema.AuditRejectDoctor, req.ID, map[string]any{"reason": reason})
	s.logger.Info("doctor registration rejected", "request_id", req.ID, "by", me.ID)
	return reviewed, nil
}

// review records a decision on a request that is still pending.
func (s *Service) review(ctx context.Context, id string, r schema.DoctorRequestReview) (*schema.DoctorRequest, error) {
	rows, err := s.rows.Update(ctx, backend.TableDoctorRequests, []backend.Filter{
		backend.Eq("id", id),
		backend.Eq("status", string(schema.DoctorRequestPending)),
	}, r)
	if err != nil {
		return nil, fmt.Errorf("updating request status: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: request %s changed during review", ErrAlreadyReviewed, id)
	}
	return schema.One[schema.DoctorRequest](rows)
}

func (s *Service) audit(ctx context.Context, adminID, action, recordID string, changes map[string]any) {
	_, err := s.rows.Insert(ctx, backend.TableAuditLogs, schema.AuditLogInsert{
		AdminID:   &adminID,
		Action:    action,
		TableName: backend.TableDoctorRequests,
		RecordID:  recordID,
		Changes:   changes,
	})
	if err != nil {
		s.logger.Warn("writing audit entry failed", "action", action, "record_id", recordID, "error", err)
	}
}
