// ABOUTME: Typed row shapes for every backend table the console touches
// ABOUTME: AdminAccount, UserRole, User, Entertainment, AuditLog and their insert forms

package schema

import (
	"time"
)

// AdminRole is the approval state of an admin account.
type AdminRole string

const (
	AdminRolePending    AdminRole = "pending"
	AdminRoleModerator  AdminRole = "moderator"
	AdminRoleSuperadmin AdminRole = "superadmin"
	AdminRoleRejected   AdminRole = "rejected"
)

// Valid reports whether r is a known admin role.
func (r AdminRole) Valid() bool {
	switch r {
	case AdminRolePending, AdminRoleModerator, AdminRoleSuperadmin, AdminRoleRejected:
		return true
	}
	return false
}

// PlatformRole is a platform-wide role assignment. It shares labels with
// AdminRole but is a separate taxonomy.
type PlatformRole string

const (
	PlatformRolePatient    PlatformRole = "patient"
	PlatformRoleDoctor     PlatformRole = "doctor"
	PlatformRoleAdmin      PlatformRole = "admin"
	PlatformRoleSuperadmin PlatformRole = "superadmin"
)

// ValidPlatformRoles lists all platform roles.
var ValidPlatformRoles = []PlatformRole{
	PlatformRolePatient,
	PlatformRoleDoctor,
	PlatformRoleAdmin,
	PlatformRoleSuperadmin,
}

// Valid reports whether r is a known platform role.
func (r PlatformRole) Valid() bool {
	for _, v := range ValidPlatformRoles {
		if r == v {
			return true
		}
	}
	return false
}

// UserStatus is the lifecycle state of a platform user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// AdminAccount is a row of the admins table.
type AdminAccount struct {
	ID        string    `json:"id" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	FullName  *string   `json:"full_name"`
	Role      AdminRole `json:"role" validate:"required,oneof=pending moderator superadmin rejected"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

// DisplayName returns the full name, falling back to the email.
func (a *AdminAccount) DisplayName() string {
	if a.FullName != nil && *a.FullName != "" {
		return *a.FullName
	}
	return a.Email
}

// AdminInsert is the shape written when creating an admin row.
type AdminInsert struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	FullName *string   `json:"full_name"`
	Role     AdminRole `json:"role"`
}

// UserRole is a row of the user_roles table.
type UserRole struct {
	ID        string       `json:"id" validate:"required"`
	UserID    string       `json:"user_id" validate:"required"`
	Role      PlatformRole `json:"role" validate:"required,oneof=patient doctor admin superadmin"`
	CreatedAt time.Time    `json:"created_at" validate:"required"`
	UpdatedAt time.Time    `json:"updated_at" validate:"required"`
}

// UserRoleInsert is the shape written when creating a user_roles row.
type UserRoleInsert struct {
	UserID    string       `json:"user_id"`
	Role      PlatformRole `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// User is a row of the users table.
type User struct {
	ID          string     `json:"id" validate:"required"`
	Email       string     `json:"email" validate:"required"`
	FullName    *string    `json:"full_name"`
	DateOfBirth *string    `json:"date_of_birth"`
	PhoneNumber *string    `json:"phone_number"`
	Status      UserStatus `json:"status" validate:"required,oneof=active inactive suspended"`
	CreatedAt   time.Time  `json:"created_at" validate:"required"`
	UpdatedAt   time.Time  `json:"updated_at" validate:"required"`
}

// UserPatch is a partial update of a users row. Nil fields are left alone.
type UserPatch struct {
	Email       *string     `json:"email,omitempty"`
	FullName    *string     `json:"full_name,omitempty"`
	DateOfBirth *string     `json:"date_of_birth,omitempty"`
	PhoneNumber *string     `json:"phone_number,omitempty"`
	Status      *UserStatus `json:"status,omitempty"`
}

// Entertainment content statuses.
const (
	ContentActive   = "active"
	ContentInactive = "inactive"
)

// Entertainment is a row of the entertainments table.
type Entertainment struct {
	ID            int64     `json:"id" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	Type          string    `json:"type" validate:"required"`
	Description   *string   `json:"description"`
	CoverImgURL   *string   `json:"cover_img_url"`
	MediaFileURL  *string   `json:"media_file_url"`
	Category      string    `json:"category" validate:"required"`
	MoodStates    []string  `json:"mood_states"`
	Status        string    `json:"status" validate:"required,oneof=active inactive"`
	DominantState *string   `json:"dominant_state"`
	CreatedAt     time.Time `json:"created_at" validate:"required"`
	UpdatedAt     time.Time `json:"updated_at" validate:"required"`
}

// EntertainmentInsert is the shape written when creating content.
type EntertainmentInsert struct {
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Category     string   `json:"category"`
	MoodStates   []string `json:"mood_states"`
	Status       string   `json:"status"`
	Description  *string  `json:"description"`
	CoverImgURL  *string  `json:"cover_img_url"`
	MediaFileURL *string  `json:"media_file_url"`
}

// EntertainmentPatch is a partial update of content. Nil fields are left alone.
type EntertainmentPatch struct {
	Title         *string   `json:"title,omitempty"`
	Type          *string   `json:"type,omitempty"`
	Description   *string   `json:"description,omitempty"`
	CoverImgURL   *string   `json:"cover_img_url,omitempty"`
	MediaFileURL  *string   `json:"media_file_url,omitempty"`
	Category      *string   `json:"category,omitempty"`
	MoodStates    *[]string `json:"mood_states,omitempty"`
	Status        *string   `json:"status,omitempty"`
	DominantState *string   `json:"dominant_state,omitempty"`
}

// AuditLog is a row of the audit_logs table.
type AuditLog struct {
	ID        string         `json:"id" validate:"required"`
	AdminID   *string        `json:"admin_id"`
	Action    string         `json:"action" validate:"required"`
	TableName string         `json:"table_name" validate:"required"`
	RecordID  string         `json:"record_id" validate:"required"`
	Changes   map[string]any `json:"changes"`
	CreatedAt time.Time      `json:"created_at" validate:"required"`
}

// AuditLogInsert is the shape written when appending to the audit log.
type AuditLogInsert struct {
	AdminID   *string        `json:"admin_id"`
	Action    string         `json:"action"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Changes   map[string]any `json:"changes"`
}

// Audit actions written by the console and the approve_admin procedure.
const (
	AuditApproveAdmin = "approve_admin"
	AuditRejectAdmin  = "reject_admin"
)

// ApproveArgs are the arguments of the approve_admin procedure.
type ApproveArgs struct {
	AdminID    string `json:"admin_id"`
	Approve    bool   `json:"approve"`
	ApproverID string `json:"approver_id"`
}

// ApprovalResult is the result of the approve_admin procedure.
type ApprovalResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
