// Package admin manages admin identities and their approval.
//
// # Session
//
// Session caches the signed-in admin for the lifetime of the process and is
// the only writer of that cache. It starts uninitialized; FetchCurrentIdentity
// resolves it from the backend session:
//
//	UNINITIALIZED -> SIGNED_OUT           no session, orphaned session, pending account
//	UNINITIALIZED -> SIGNED_IN(role)      session with an approved account
//	SIGNED_OUT    -> SIGNED_IN(role)      Login with a moderator or superadmin account
//	SIGNED_OUT    -> SIGNED_OUT (+error)  Login with a pending or rejected account
//	SIGNED_IN     -> SIGNED_OUT           Logout, or the backend stops accepting the session
//
// Signup creates an identity and a pending admins row and leaves the session
// signed out. If the row cannot be written the identity is deleted again.
//
// # Approvals
//
// Approvals acts as the signed-in admin. Only superadmins may approve, reject
// or delete other accounts, and never their own. Approval goes through the
// approve_admin stored procedure; the platform role written afterwards and
// the rejection audit entry are best-effort.
//
// # Errors
//
// Every operation returns *Error. Its message is meant for display and its
// kind (ErrPendingApproval, ErrAuthorizationDenied, ...) matches with
// errors.Is.
package admin
