// ABOUTME: Stored procedures of the embedded backend
// ABOUTME: approve_admin moves a pending admin to moderator or rejected and audits it

package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// Call invokes a stored procedure and returns its raw result.
func (s *Store) Call(ctx context.Context, name string, args any) (json.RawMessage, error) {
	switch name {
	case backend.ProcApproveAdmin:
		var in schema.ApproveArgs
		m, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding args: %w", err)
		}
		if err := json.Unmarshal(m, &in); err != nil {
			return nil, &backend.Error{Status: http.StatusBadRequest, Message: "invalid arguments for approve_admin"}
		}
		res, err := s.approveAdmin(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	return nil, &backend.Error{
		Status:  http.StatusNotFound,
		Code:    backend.CodeUnknownFunction,
		Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", name),
	}
}

func (s *Store) approveAdmin(ctx context.Context, in schema.ApproveArgs) (*schema.ApprovalResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	approverRole, err := roleOf(ctx, tx, in.ApproverID)
	if err != nil {
		return nil, err
	}
	if approverRole != schema.AdminRoleSuperadmin {
		return &schema.ApprovalResult{Success: false, Message: "Only superadmins can approve admins"}, nil
	}
	if in.AdminID == in.ApproverID {
		return &schema.ApprovalResult{Success: false, Message: "Admins cannot approve themselves"}, nil
	}

	targetRole, err := roleOf(ctx, tx, in.AdminID)
	if err != nil {
		return nil, err
	}
	switch targetRole {
	case "":
		return &schema.ApprovalResult{Success: false, Message: "Admin not found"}, nil
	case schema.AdminRolePending:
	default:
		return &schema.ApprovalResult{Success: false, Message: "Admin is not pending approval"}, nil
	}

	newRole, action, msg := schema.AdminRoleModerator, schema.AuditApproveAdmin, "Admin approved successfully"
	if !in.Approve {
		newRole, action, msg = schema.AdminRoleRejected, schema.AuditRejectAdmin, "Admin rejected"
	}

	now := s.timestamp()
	if _, err := tx.ExecContext(ctx,
		"UPDATE admins SET role = ?, updated_at = ? WHERE id = ?",
		string(newRole), now, in.AdminID,
	); err != nil {
		return nil, fmt.Errorf("updating admin role: %w", err)
	}

	changes, _ := json.Marshal(map[string]any{
		"role": map[string]string{"from": string(targetRole), "to": string(newRole)},
	})
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO audit_logs (id, admin_id, action, table_name, record_id, changes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.New().String(), in.ApproverID, action, backend.TableAdmins, in.AdminID, string(changes), now,
	); err != nil {
		return nil, fmt.Errorf("appending audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}

	s.logger.Info("admin approval decided", "admin_id", in.AdminID, "approver_id", in.ApproverID, "role", newRole)
	return &schema.ApprovalResult{Success: true, Message: msg}, nil
}

// roleOf returns the admin's role, or "" when there is no such admin.
func roleOf(ctx context.Context, tx *sql.Tx, id string) (schema.AdminRole, error) {
	var role string
	err := tx.QueryRowContext(ctx, "SELECT role FROM admins WHERE id = ?", id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying admin role: %w", err)
	}
	return schema.AdminRole(role), nil
}
