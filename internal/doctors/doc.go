// Package doctors reviews doctor registration requests and maintains the
// doctors directory.
//
// A request moves from pending to approved or rejected exactly once. Approval
// finds or creates the doctor's auth identity, grants the doctor platform role
// when the identity has none, and adds a doctors row when none exists for the
// email, so a retried approval converges instead of duplicating. Role and
// audit writes are best-effort. Profile pictures live in the doctor_profiles
// bucket under profiles/.
package doctors
