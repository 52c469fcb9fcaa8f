// ABOUTME: Approval workflow for pending admin accounts
// ABOUTME: Superadmins approve, reject and delete admins; role and audit writes are best-effort

package admin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// RoleWriter maintains the platform role that mirrors an admin account.
type RoleWriter interface {
	Upsert(ctx context.Context, userID string, role schema.PlatformRole) (*schema.UserRole, error)
	Delete(ctx context.Context, userID string) error
}

// Approvals moves admin accounts out of pending.
type Approvals struct {
	rows    backend.Rows
	rpc     backend.Procedures
	admins  directory
	session *Session
	roles   RoleWriter
	logger  *slog.Logger
}

// NewApprovals creates an Approvals acting as the admin signed in to session.
func NewApprovals(b *backend.Client, session *Session, roles RoleWriter, logger *slog.Logger) *Approvals {
	if logger == nil {
		logger = slog.Default()
	}
	return &Approvals{
		rows:    b.Rows,
		rpc:     b.RPC,
		admins:  directory{rows: b.Rows},
		session: session,
		roles:   roles,
		logger:  logger.With("component", "admin-approvals"),
	}
}

func (a *Approvals) requireSignedIn() (*schema.AdminAccount, error) {
	caller := a.session.Admin()
	if caller == nil {
		return nil, denied("You must be signed in")
	}
	return caller, nil
}

func (a *Approvals) requireSuperadmin(action string) (*schema.AdminAccount, error) {
	caller, err := a.requireSignedIn()
	if err != nil {
		return nil, err
	}
	if caller.Role != schema.AdminRoleSuperadmin {
		return nil, denied("Only superadmins can " + action)
	}
	return caller, nil
}

// checkDecision applies the guards shared by Approve and Reject.
func (a *Approvals) checkDecision(targetID, approverID, action string) error {
	caller, err := a.requireSuperadmin(action)
	if err != nil {
		return err
	}
	if approverID != caller.ID {
		return denied("Approver must be the signed-in admin")
	}
	if strings.TrimSpace(targetID) == "" {
		return invalid("An admin id is required")
	}
	if targetID == approverID {
		return denied("You cannot " + action + " your own account")
	}
	return nil
}

func (a *Approvals) decide(ctx context.Context, targetID, approverID string, approve bool) (*schema.ApprovalResult, error) {
	raw, err := a.rpc.Call(ctx, backend.ProcApproveAdmin, schema.ApproveArgs{
		AdminID:    targetID,
		Approve:    approve,
		ApproverID: approverID,
	})
	if err != nil {
		return nil, fromRemote(err, "approve_admin")
	}
	res, err := schema.Decode[schema.ApprovalResult](raw)
	if err != nil {
		return nil, &Error{Kind: ErrRemote, Message: "Unexpected response from approve_admin", Err: err}
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "The admin could not be updated"
		}
		return nil, newError(ErrRemote, msg)
	}
	return res, nil
}

// Approve promotes a pending admin to moderator. approverID must be the
// signed-in superadmin.
func (a *Approvals) Approve(ctx context.Context, targetID, approverID string) (*schema.ApprovalResult, error) {
	if err := a.checkDecision(targetID, approverID, "approve"); err != nil {
		return nil, err
	}
	res, err := a.decide(ctx, targetID, approverID, true)
	if err != nil {
		return nil, err
	}

	if _, err := a.roles.Upsert(ctx, targetID, schema.PlatformRoleAdmin); err != nil {
		a.logger.Warn("recording platform role failed", "admin_id", targetID, "error", err)
	}
	a.logger.Info("admin approved", "admin_id", targetID, "approver_id", approverID)
	return res, nil
}

// Reject refuses a pending admin. The account is kept with role rejected.
func (a *Approvals) Reject(ctx context.Context, targetID, approverID, reason string) (*schema.ApprovalResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("A rejection reason is required")
	}
	if err := a.checkDecision(targetID, approverID, "reject"); err != nil {
		return nil, err
	}
	res, err := a.decide(ctx, targetID, approverID, false)
	if err != nil {
		return nil, err
	}

	_, err = a.rows.Insert(ctx, backend.TableAuditLogs, schema.AuditLogInsert{
		AdminID:   &approverID,
		Action:    schema.AuditRejectAdmin,
		TableName: backend.TableAdmins,
		RecordID:  targetID,
		Changes:   map[string]any{"reason": reason},
	})
	if err != nil {
		a.logger.Warn("writing rejection audit entry failed", "admin_id", targetID, "error", err)
	}
	a.logger.Info("admin rejected", "admin_id", targetID, "approver_id", approverID)
	return res, nil
}

// Delete removes an approved moderator or a rejected account. Pending and
// superadmin accounts cannot be deleted.
func (a *Approvals) Delete(ctx context.Context, targetID string) error {
	caller, err := a.requireSuperadmin("delete admins")
	if err != nil {
		return err
	}

	target, err := a.admins.get(ctx, targetID)
	if err != nil {
		if backend.IsNotFound(err) {
			return &Error{Kind: ErrNotFound, Message: "Admin not found", Err: err}
		}
		return fromRemote(err, "loading admin")
	}
	switch target.Role {
	case schema.AdminRolePending:
		return denied("Pending admins must be approved or rejected, not deleted")
	case schema.AdminRoleSuperadmin:
		return denied("Superadmin accounts cannot be deleted")
	}

	if err := a.admins.delete(ctx, targetID); err != nil {
		return fromRemote(err, "deleting admin")
	}
	if err := a.roles.Delete(ctx, targetID); err != nil {
		a.logger.Warn("removing platform role failed", "admin_id", targetID, "error", err)
	}
	a.logger.Info("admin deleted", "admin_id", targetID, "by", caller.ID)
	return nil
}

// ListPending returns accounts awaiting approval, newest first.
func (a *Approvals) ListPending(ctx context.Context) ([]schema.AdminAccount, error) {
	if _, err := a.requireSignedIn(); err != nil {
		return nil, err
	}
	admins, err := a.admins.list(ctx, backend.Eq("role", string(schema.AdminRolePending)))
	if err != nil {
		return nil, fromRemote(err, "listing pending admins")
	}
	return admins, nil
}

// ListAll returns every admin account, newest first.
func (a *Approvals) ListAll(ctx context.Context) ([]schema.AdminAccount, error) {
	if _, err := a.requireSignedIn(); err != nil {
		return nil, err
	}
	admins, err := a.admins.list(ctx)
	if err != nil {
		return nil, fromRemote(err, "listing admins")
	}
	return admins, nil
}

// CanManage reports whether the signed-in admin may act on target.
func (a *Approvals) CanManage(target *schema.AdminAccount) bool {
	caller := a.session.Admin()
	return caller != nil && target != nil &&
		caller.Role == schema.AdminRoleSuperadmin && target.ID != caller.ID
}
