// Package auth provides the credential primitives used by the embedded backend.
//
// # Session Tokens
//
// Sessions are HS256 JWTs signed with the configured jwt_secret:
//
//	v := NewJWTVerifier(secret)
//	token, expiresAt, err := v.Generate(userID, email, sessionID, ttl)
//	claims, err := v.Verify(token)
//
// Tokens carry:
//   - sub: the identity id
//   - email
//   - jti: the session id, checked against the session table for revocation
//   - exp: expiration time
//
// Tokens issued by a hosted backend cannot be verified locally. ParseUnverified
// reads their expiry so the client knows when to refresh.
//
// # Passwords
//
// Passwords are stored as bcrypt hashes. CheckPassword with an empty hash
// still performs a comparison so unknown emails cannot be detected by timing.
package auth
