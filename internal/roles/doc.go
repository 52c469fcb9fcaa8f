// Package roles manages platform role assignments in the user_roles table.
//
// Each user has at most one row; Upsert replaces the role in place. Platform
// roles (patient, doctor, admin, superadmin) are a separate taxonomy from
// admin account roles.
package roles
