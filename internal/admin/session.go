// ABOUTME: Admin identity store: login, logout, signup and session resolution
// ABOUTME: Caches the signed-in admin and keeps it consistent with the backend session

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

const (
	minPasswordLength = 6
	minFullNameLength = 3
)

var validate = validator.New()

// State is a snapshot of the identity store.
type State struct {
	Admin       *schema.AdminAccount
	Loading     bool
	Error       string
	Initialized bool
}

// Session holds the signed-in admin for the lifetime of the process.
type Session struct {
	mu     sync.RWMutex
	state  State
	auth   backend.Auth
	admins directory
	logger *slog.Logger
}

// NewSession creates an uninitialized Session. Call FetchCurrentIdentity to
// resolve it.
func NewSession(b *backend.Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		state:  State{Loading: true},
		auth:   b.Auth,
		admins: directory{rows: b.Rows},
		logger: logger.With("component", "admin-session"),
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Admin = copyAccount(s.state.Admin)
	return st
}

// Admin returns a copy of the signed-in admin, or nil.
func (s *Session) Admin() *schema.AdminAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAccount(s.state.Admin)
}

// Role returns the signed-in admin's role, or "" when signed out.
func (s *Session) Role() schema.AdminRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Admin == nil {
		return ""
	}
	return s.state.Admin.Role
}

// IsSuperadmin reports whether the signed-in admin is a superadmin.
func (s *Session) IsSuperadmin() bool {
	return s.Role() == schema.AdminRoleSuperadmin
}

// Initialized reports whether the session has been resolved at least once.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Initialized
}

// ClearError drops the last recorded error.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
}

func copyAccount(a *schema.AdminAccount) *schema.AdminAccount {
	if a == nil {
		return nil
	}
	c := *a
	if a.FullName != nil {
		name := *a.FullName
		c.FullName = &name
	}
	return &c
}

func (s *Session) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = true
	s.state.Error = ""
}

// settle ends an operation with admin as the cached identity.
func (s *Session) settle(admin *schema.AdminAccount, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Admin = copyAccount(admin)
	s.state.Loading = false
	s.state.Initialized = true
	s.state.Error = ""
	if err != nil {
		s.state.Error = err.Error()
	}
}

// settleError ends an operation with an error but leaves the cached admin.
func (s *Session) settleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	s.state.Initialized = true
	s.state.Error = ""
	if err != nil {
		s.state.Error = err.Error()
	}
}

// Login authenticates and loads the admin account. Pending and rejected
// accounts are refused and their new session is ended.
func (s *Session) Login(ctx context.Context, email, password string) (*schema.AdminAccount, error) {
	s.begin()
	account, err := s.login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.settle(nil, err)
		s.logger.Info("admin sign-in refused", "email", email, "reason", err.Error())
		return nil, err
	}
	s.settle(account, nil)
	s.logger.Info("admin signed in", "admin_id", account.ID, "role", account.Role)
	return copyAccount(account), nil
}

func (s *Session) login(ctx context.Context, email, password string) (*schema.AdminAccount, error) {
	if email == "" || password == "" {
		return nil, invalid("Email and password are required")
	}

	session, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, signInError(err)
	}

	account, err := s.admins.get(ctx, session.UserID)
	switch {
	case backend.IsNotFound(err):
		s.revoke(ctx)
		return nil, &Error{Kind: ErrAccountNotFound, Message: "Admin account not found", Err: err}
	case err != nil:
		s.revoke(ctx)
		return nil, fromRemote(err, "loading admin account")
	}

	switch account.Role {
	case schema.AdminRolePending:
		s.revoke(ctx)
		return nil, newError(ErrPendingApproval, "Your account is pending approval")
	case schema.AdminRoleRejected:
		s.revoke(ctx)
		return nil, denied("Your admin access request was rejected")
	}
	return account, nil
}

func signInError(err error) *Error {
	if strings.Contains(backend.Message(err), "Invalid login credentials") {
		return &Error{Kind: ErrAuthenticationFailed, Message: "Invalid email or password", Err: err}
	}
	var be *backend.Error
	if errors.As(err, &be) && be.Status >= 400 && be.Status < 500 {
		return &Error{Kind: ErrAuthenticationFailed, Message: be.Message, Err: err}
	}
	return fromRemote(err, "sign in")
}

// revoke ends the remote session, logging failures.
func (s *Session) revoke(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		s.logger.Warn("ending remote session failed", "error", err)
	}
}

// Logout ends the remote session and always clears the local state. The
// remote error, if any, is returned after the state is cleared.
func (s *Session) Logout(ctx context.Context) error {
	s.begin()
	err := s.auth.SignOut(ctx)
	s.settle(nil, nil)
	if err != nil {
		s.logger.Warn("remote sign-out failed", "error", err)
		return fromRemote(err, "sign out")
	}
	s.logger.Info("admin signed out")
	return nil
}

// Signup registers a new admin. The account always starts pending. A
// signed-in caller stays signed in; a session the backend opened for the
// new identity is ended.
func (s *Session) Signup(ctx context.Context, email, password, fullName string) (*schema.AdminAccount, error) {
	s.begin()
	account, err := s.signup(ctx, strings.TrimSpace(email), password, strings.TrimSpace(fullName))
	if err != nil {
		s.settleError(err)
		return nil, err
	}
	s.settleError(nil)
	s.logger.Info("admin signed up", "admin_id", account.ID, "email", account.Email)
	return account, nil
}

func (s *Session) signup(ctx context.Context, email, password, fullName string) (*schema.AdminAccount, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, invalid("A valid email address is required")
	}
	if len(password) < minPasswordLength {
		return nil, invalid(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len([]rune(fullName)) < minFullNameLength {
		return nil, invalid(fmt.Sprintf("Full name must be at least %d characters", minFullNameLength))
	}

	before := s.currentUserID(ctx)
	ident, err := s.auth.SignUp(ctx, email, password, map[string]any{"full_name": fullName})
	if err != nil {
		if backend.IsUniqueViolation(err) {
			return nil, &Error{Kind: ErrValidationFailed, Message: "An account with this email already exists", Err: err}
		}
		return nil, fromRemote(err, "sign up")
	}
	opened := before != ident.UserID && s.currentUserID(ctx) == ident.UserID

	account, err := s.admins.create(ctx, schema.AdminInsert{
		ID:       ident.UserID,
		Email:    email,
		FullName: &fullName,
		Role:     schema.AdminRolePending,
	})
	if err != nil {
		return nil, s.rollbackSignup(ctx, ident.UserID, opened, err)
	}

	if opened {
		s.revoke(ctx)
		s.dropAdmin()
	}
	return account, nil
}

// currentUserID returns the user behind the stored session, or "".
func (s *Session) currentUserID(ctx context.Context) string {
	session, err := s.auth.CurrentSession(ctx)
	if err != nil || session == nil {
		return ""
	}
	return session.UserID
}

// dropAdmin forgets the cached admin after its session was replaced.
func (s *Session) dropAdmin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Admin = nil
}

// rollbackSignup removes an identity whose admin row could not be written.
// opened reports whether the signup left the new identity signed in.
func (s *Session) rollbackSignup(ctx context.Context, userID string, opened bool, cause error) error {
	rbErr := s.auth.DeleteIdentity(ctx, userID)
	if opened {
		s.revoke(ctx)
		s.dropAdmin()
	}
	if rbErr != nil {
		s.logger.Error("signup rollback failed, identity orphaned", "user_id", userID, "error", rbErr)
		base := fromRemote(cause, "creating admin account")
		return &Error{
			Kind:    base.Kind,
			Message: fmt.Sprintf("%s (identity %s was created without an admin account)", base.Message, userID),
			Err:     errors.Join(ErrPartialSignup, cause, rbErr),
		}
	}
	s.logger.Warn("signup rolled back", "user_id", userID, "error", cause)
	if backend.IsUniqueViolation(cause) {
		return &Error{Kind: ErrValidationFailed, Message: "An account with this email already exists", Err: cause}
	}
	return fromRemote(cause, "creating admin account")
}

// UpdateProfile changes the signed-in admin's full name.
func (s *Session) UpdateProfile(ctx context.Context, fullName string) (*schema.AdminAccount, error) {
	current := s.Admin()
	if current == nil {
		return nil, denied("You must be signed in")
	}
	fullName = strings.TrimSpace(fullName)
	if len([]rune(fullName)) < minFullNameLength {
		return nil, invalid(fmt.Sprintf("Full name must be at least %d characters", minFullNameLength))
	}

	s.begin()
	account, err := s.admins.setFullName(ctx, current.ID, fullName)
	if err != nil {
		e := fromRemote(err, "updating profile")
		s.settleError(e)
		return nil, e
	}
	s.settle(account, nil)
	return copyAccount(account), nil
}

// FetchCurrentIdentity resolves the cached admin from the backend session.
// No session, an orphaned session, or an account that may not sign in all
// resolve to signed out without an error.
func (s *Session) FetchCurrentIdentity(ctx context.Context) (*schema.AdminAccount, error) {
	s.begin()

	session, err := s.auth.CurrentSession(ctx)
	if err != nil {
		if backend.IsUnauthorized(err) {
			s.revoke(ctx)
			s.settle(nil, nil)
			return nil, nil
		}
		e := fromRemote(err, "loading session")
		s.settleError(e)
		return nil, e
	}
	if session == nil {
		s.settle(nil, nil)
		return nil, nil
	}

	account, err := s.admins.get(ctx, session.UserID)
	switch {
	case err == nil:
	case backend.IsNotFound(err):
		s.logger.Warn("session has no admin account", "user_id", session.UserID)
		s.settle(nil, nil)
		return nil, nil
	case backend.IsUnauthorized(err):
		s.revoke(ctx)
		s.settle(nil, nil)
		return nil, nil
	default:
		e := fromRemote(err, "loading admin account")
		s.settleError(e)
		return nil, e
	}

	if account.Role == schema.AdminRolePending || account.Role == schema.AdminRoleRejected {
		s.settle(nil, nil)
		return nil, nil
	}
	s.settle(account, nil)
	return copyAccount(account), nil
}
