// Package local implements the backend contract on an embedded SQLite
// database and a directory of objects, so the console runs without a hosted
// backend.
//
// # Tables
//
// The store creates the same tables the hosted backend exposes (admins,
// users, user_roles, entertainments, audit_logs, doctors,
// doctor_registration_requests) plus two private ones:
//
//   - auth_users: email, bcrypt password hash, signup metadata
//   - auth_sessions: one row per sign-in, revoked on sign-out
//
// Rows are read and written generically by table name. Filters, ordering and
// ranges follow backend.Query, and failures carry the same codes the hosted
// backend uses (PGRST116 for a missing single row, 42P01 for an unknown
// table, 23505 for a duplicate key).
//
// # Sessions
//
// Access tokens are HS256 JWTs whose jti is the auth_sessions id. A session is
// current while its token verifies and its row is not revoked.
//
// # Procedures
//
// approve_admin is implemented in a single transaction: the approver must be
// a superadmin, the target must be pending, and the role change is written to
// audit_logs together with the update.
package local
