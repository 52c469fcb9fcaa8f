// ABOUTME: Tests for the embedded SQLite backend
// ABOUTME: Covers auth sessions, generic rows, the approve_admin procedure and object storage

package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "local-backend-test-secret-0123456789"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{
		DatabasePath: filepath.Join(dir, "safespace.db"),
		StorageDir:   filepath.Join(dir, "objects"),
		JWTSecret:    []byte(testSecret),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertAdmin(t *testing.T, s *Store, id, email string, role schema.AdminRole) {
	t.Helper()
	_, err := s.Insert(context.Background(), backend.TableAdmins, schema.AdminInsert{ID: id, Email: email, Role: role})
	require.NoError(t, err)
}

func TestOpen_RequiresSecret(t *testing.T) {
	_, err := Open(Options{DatabasePath: filepath.Join(t.TempDir(), "x.db"), JWTSecret: []byte("short")})
	assert.Error(t, err)
}

func TestAuth_SignUpSignInSignOut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SignUp(ctx, "alice@example.com", "secret1", map[string]any{"full_name": "Alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, id.UserID)

	current, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current, "signup does not sign in")

	session, err := s.SignIn(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id.UserID, session.UserID)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	current, err = s.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, id.UserID, current.UserID)

	require.NoError(t, s.SignOut(ctx))
	current, err = s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestAuth_RevokedSessionIsNotCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SignUp(ctx, "a@x.com", "secret1", nil)
	require.NoError(t, err)
	session, err := s.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	// Revoke the session behind the store's back, then restore the token.
	require.NoError(t, s.SignOut(ctx))
	require.NoError(t, s.sessions.Save(session))

	current, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestAuth_InvalidLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SignUp(ctx, "a@x.com", "secret1", nil)
	require.NoError(t, err)

	for _, tc := range []struct{ email, password string }{
		{"a@x.com", "wrong-pass"},
		{"nobody@x.com", "secret1"},
	} {
		_, err := s.SignIn(ctx, tc.email, tc.password)
		require.Error(t, err)
		assert.Equal(t, "Invalid login credentials", backend.Message(err))
	}
}

func TestAuth_SignUpValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SignUp(ctx, "a@x.com", "12345", nil)
	assert.Error(t, err)

	_, err = s.SignUp(ctx, "a@x.com", "secret1", nil)
	require.NoError(t, err)
	_, err = s.SignUp(ctx, "A@x.com", "secret1", nil)
	assert.True(t, backend.IsUniqueViolation(err))
}

func TestAuth_DeleteIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SignUp(ctx, "a@x.com", "secret1", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteIdentity(ctx, id.UserID))

	_, err = s.SignIn(ctx, "a@x.com", "secret1")
	assert.Error(t, err)
	assert.True(t, backend.IsNotFound(s.DeleteIdentity(ctx, id.UserID)))
}

func TestRows_InsertDefaultsAndSelectSingle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, err := s.Insert(ctx, backend.TableAdmins, schema.AdminInsert{ID: "a1", Email: "a@x.com"})
	require.NoError(t, err)

	admin, err := schema.Decode[schema.AdminAccount](raw)
	require.NoError(t, err)
	assert.Equal(t, schema.AdminRolePending, admin.Role)
	assert.False(t, admin.CreatedAt.IsZero())

	rows, err := s.Select(ctx, backend.TableAdmins, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", "a1")},
		Single:  true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = s.Select(ctx, backend.TableAdmins, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", "missing")},
		Single:  true,
	})
	assert.True(t, backend.IsNoRows(err))
}

func TestRows_Constraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertAdmin(t, s, "a1", "a@x.com", schema.AdminRolePending)

	_, err := s.Insert(ctx, backend.TableAdmins, schema.AdminInsert{ID: "a2", Email: "a@x.com"})
	assert.True(t, backend.IsUniqueViolation(err))

	_, err = s.Insert(ctx, backend.TableAdmins, map[string]any{"id": "a3", "email": "c@x.com", "role": "owner"})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeCheckViolation, be.Code)

	_, err = s.Insert(ctx, backend.TableAdmins, map[string]any{"id": "a4", "email": "d@x.com", "nickname": "d"})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeUnknownColumn, be.Code)
}

func TestRows_UnknownTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Select(context.Background(), "nope", backend.Query{})
	assert.True(t, backend.IsUndefinedTable(err))
}

func TestRows_FiltersOrderRangeCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, role := range []schema.PlatformRole{"doctor", "patient", "doctor", "admin"} {
		_, err := s.Insert(ctx, backend.TableUserRoles, schema.UserRoleInsert{
			UserID: "user-" + string(rune('a'+i)),
			Role:   role,
		})
		require.NoError(t, err)
	}

	n, err := s.Count(ctx, backend.TableUserRoles, backend.Query{Filters: []backend.Filter{backend.Eq("role", schema.PlatformRoleDoctor)}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.Select(ctx, backend.TableUserRoles, backend.Query{
		Order: &backend.Order{Column: "user_id", Ascending: true},
		Range: &backend.Range{From: 1, To: 2},
	})
	require.NoError(t, err)
	roles, err := schema.DecodeAll[schema.UserRole](rows)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "user-b", roles[0].UserID)
	assert.Equal(t, "user-c", roles[1].UserID)

	rows, err = s.Select(ctx, backend.TableUserRoles, backend.Query{
		Any: []backend.Filter{backend.ILike("user_id", "USER-D"), backend.ILike("role", "pati")},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRows_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, err := s.Insert(ctx, backend.TableEntertainment, schema.EntertainmentInsert{
		Title:      "Rain",
		Type:       "Audio",
		Category:   "Relaxation",
		MoodStates: []string{"calm"},
	})
	require.NoError(t, err)
	item, err := schema.Decode[schema.Entertainment](raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ContentActive, item.Status)
	assert.Equal(t, []string{"calm"}, item.MoodStates)

	status := schema.ContentInactive
	rows, err := s.Update(ctx, backend.TableEntertainment,
		[]backend.Filter{backend.Eq("id", item.ID)},
		schema.EntertainmentPatch{Status: &status})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	updated, err := schema.Decode[schema.Entertainment](rows[0])
	require.NoError(t, err)
	assert.Equal(t, schema.ContentInactive, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(item.UpdatedAt))

	rows, err = s.Update(ctx, backend.TableEntertainment, []backend.Filter{backend.Eq("id", 999)}, schema.EntertainmentPatch{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Error(t, s.Delete(ctx, backend.TableEntertainment, nil))
	require.NoError(t, s.Delete(ctx, backend.TableEntertainment, []backend.Filter{backend.Eq("id", item.ID)}))
	n, err := s.Count(ctx, backend.TableEntertainment, backend.Query{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRows_TimeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)
	_, err := s.Insert(ctx, backend.TableUsers, map[string]any{"id": "u1", "email": "old@x.com", "created_at": old})
	require.NoError(t, err)
	_, err = s.Insert(ctx, backend.TableUsers, map[string]any{"id": "u2", "email": "new@x.com"})
	require.NoError(t, err)

	n, err := s.Count(ctx, backend.TableUsers, backend.Query{Filters: []backend.Filter{
		{Column: "created_at", Op: backend.OpGte, Value: time.Now().Add(-30 * 24 * time.Hour)},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func callApprove(t *testing.T, s *Store, adminID, approverID string, approve bool) schema.ApprovalResult {
	t.Helper()
	raw, err := s.Call(context.Background(), backend.ProcApproveAdmin, schema.ApproveArgs{
		AdminID:    adminID,
		Approve:    approve,
		ApproverID: approverID,
	})
	require.NoError(t, err)
	var res schema.ApprovalResult
	require.NoError(t, json.Unmarshal(raw, &res))
	return res
}

func TestApproveAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertAdmin(t, s, "root", "root@x.com", schema.AdminRoleSuperadmin)
	insertAdmin(t, s, "mod", "mod@x.com", schema.AdminRoleModerator)
	insertAdmin(t, s, "p1", "p1@x.com", schema.AdminRolePending)
	insertAdmin(t, s, "p2", "p2@x.com", schema.AdminRolePending)

	res := callApprove(t, s, "p1", "mod", true)
	assert.False(t, res.Success, "moderators cannot approve")

	res = callApprove(t, s, "p1", "root", true)
	assert.True(t, res.Success)
	assert.Equal(t, "Admin approved successfully", res.Message)

	res = callApprove(t, s, "p1", "root", true)
	assert.False(t, res.Success, "already approved")

	res = callApprove(t, s, "p2", "root", false)
	assert.True(t, res.Success)

	res = callApprove(t, s, "ghost", "root", true)
	assert.False(t, res.Success)

	rows, err := s.Select(ctx, backend.TableAdmins, backend.Query{Order: &backend.Order{Column: "id", Ascending: true}})
	require.NoError(t, err)
	admins, err := schema.DecodeAll[schema.AdminAccount](rows)
	require.NoError(t, err)
	got := map[string]schema.AdminRole{}
	for _, a := range admins {
		got[a.ID] = a.Role
	}
	assert.Equal(t, schema.AdminRoleModerator, got["p1"])
	assert.Equal(t, schema.AdminRoleRejected, got["p2"])

	logs, err := s.Select(ctx, backend.TableAuditLogs, backend.Query{Filters: []backend.Filter{backend.Eq("record_id", "p1")}})
	require.NoError(t, err)
	entries, err := schema.DecodeAll[schema.AuditLog](logs)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, schema.AuditApproveAdmin, entries[0].Action)
}

func TestCall_UnknownFunction(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Call(context.Background(), "drop_everything", nil)

	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeUnknownFunction, be.Code)
}

func TestPromoteSuperadmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertAdmin(t, s, "a1", "a@x.com", schema.AdminRolePending)
	require.NoError(t, s.PromoteSuperadmin(ctx, "A@x.com"))
	assert.ErrorIs(t, s.PromoteSuperadmin(ctx, "nobody@x.com"), ErrAdminNotFound)
}

func TestObjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bucket := "entertainment_media"

	stored, err := s.Upload(ctx, bucket, "media/rain.mp3", strings.NewReader("abc"), backend.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "media/rain.mp3", stored)

	_, err = s.Upload(ctx, bucket, "media/rain.mp3", strings.NewReader("abcd"), backend.UploadOptions{})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeDuplicateObject, be.Code)

	_, err = s.Upload(ctx, bucket, "media/rain.mp3", strings.NewReader("abcd"), backend.UploadOptions{Upsert: true})
	require.NoError(t, err)

	objs, err := s.List(ctx, bucket, "media", backend.ListOptions{})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(4), objs[0].Size)

	empty, err := s.List(ctx, bucket, "covers", backend.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	u := s.PublicURL(bucket, "media/rain.mp3")
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/entertainment_media/media/rain.mp3"))

	require.NoError(t, s.Remove(ctx, bucket, []string{"media/rain.mp3", "media/missing.mp3"}))
	_, err = os.Stat(filepath.Join(s.storageDir, bucket, "media", "rain.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestObjects_PathConfinement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Upload(ctx, "b", "../../escape.txt", strings.NewReader("x"), backend.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "escape.txt", stored)
	_, err = os.Stat(filepath.Join(s.storageDir, "b", "escape.txt"))
	assert.NoError(t, err)

	_, err = s.Upload(ctx, "../b", "x.txt", strings.NewReader("x"), backend.UploadOptions{})
	assert.Error(t, err)
}

func TestPublicURL_WithBase(t *testing.T) {
	s := newTestStore(t)
	s.publicBase = "https://cdn.example.com/objects"
	assert.Equal(t, "https://cdn.example.com/objects/entertainment_media/covers/a%20b.png",
		s.PublicURL("entertainment_media", "covers/a b.png"))
}
