// Package backend defines the contract the admin console consumes from the hosted
// backend-as-a-service.
//
// # Overview
//
// The backend is an opaque remote collaborator. The console never talks to a
// database directly; everything goes through five narrow interfaces:
//
//   - Auth: sign-up, sign-in, sign-out, current session, identity removal
//   - IdentityAdmin: look up identities by email and create confirmed ones
//   - Rows: select/count/insert/update/delete against named tables
//   - Procedures: remote procedure calls (approve_admin)
//   - Objects: upload/list/remove objects and build public URLs
//
// A Client bundles one implementation of each so object storage can be swapped
// independently of the rest.
//
// # Implementations
//
//   - supabase: HTTP client for the hosted project (auth, rest, rpc, storage)
//   - local: embedded SQLite backend for development and end-to-end tests
//   - s3objects: Objects over the S3-compatible storage endpoint
//
// # Rows
//
// Rows are returned as raw JSON objects. Callers decode them with the schema
// package immediately after each call; nothing past the service boundary
// handles untyped rows.
//
// # Errors
//
// Remote failures are reported as *Error carrying the HTTP status, the backend
// error code and the human-readable message. Transport failures wrap
// ErrUnavailable. Helpers classify the codes callers care about:
//
//   - IsNoRows: single-row select matched nothing (PGRST116)
//   - IsNotFound: missing row or missing object
//   - IsUnauthorized: session token rejected
//   - IsUndefinedTable: table has not been migrated
//   - IsUniqueViolation: duplicate key
//
// # Sessions
//
// Session tokens are persisted through a SessionStore. FileSessionStore keeps
// them in a 0600 JSON file between console invocations; MemorySessionStore is
// used in tests.
package backend
