// ABOUTME: Tests for doctor registration review against the in-memory fake backend
// ABOUTME: Covers listing order, idempotent approval, best-effort role writes and rejection

package doctors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/backend/backendtest"
	"github.com/safespace/safespace-admin/internal/roles"
	"github.com/safespace/safespace-admin/internal/schema"
)

type staticCaller struct {
	admin *schema.AdminAccount
}

func (c *staticCaller) Admin() *schema.AdminAccount { return c.admin }

// failingRoles is a RoleStore whose reads and writes always fail.
type failingRoles struct{}

func (failingRoles) Get(ctx context.Context, userID string) (*schema.UserRole, error) {
	return nil, errors.New("user_roles unavailable")
}

func (failingRoles) Upsert(ctx context.Context, userID string, role schema.PlatformRole) (*schema.UserRole, error) {
	return nil, errors.New("user_roles unavailable")
}

type fixture struct {
	fake   *backendtest.Fake
	caller *staticCaller
	roles  *roles.Service
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := backendtest.New()
	caller := &staticCaller{admin: &schema.AdminAccount{ID: "root-id", Email: "root@example.com", Role: schema.AdminRoleSuperadmin}}
	rs := roles.New(fake, nil)
	svc := New(fake.Backend(), caller, rs, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	svc.password = func() string { return "GENERATEDPASSWORD" }
	return &fixture{fake: fake, caller: caller, roles: rs, svc: svc}
}

func (f *fixture) asModerator() {
	f.caller.admin = &schema.AdminAccount{ID: "mod-id", Email: "mod@example.com", Role: schema.AdminRoleModerator}
}

func (f *fixture) request(email, password, submitted string) string {
	row := map[string]any{
		"email":          email,
		"full_name":      "Dr " + email,
		"specialization": "Psychiatrist",
		"phone_number":   " 555-0100 ",
		"submitted_at":   submitted,
	}
	if password != "" {
		row["password"] = password
	}
	return f.fake.Seed(backend.TableDoctorRequests, row)["id"].(string)
}

func (f *fixture) status(id string) any {
	return f.fake.Row(backend.TableDoctorRequests, id)["status"]
}

func TestListRequests_NewestFirst(t *testing.T) {
	f := newFixture(t)
	old := f.request("old@example.com", "", "2026-01-01T00:00:00Z")
	mid := f.request("mid@example.com", "", "2026-02-01T00:00:00Z")
	newest := f.request("new@example.com", "", "2026-02-15T00:00:00Z")
	f.fake.Seed(backend.TableDoctorRequests, map[string]any{
		"email": "done@example.com", "full_name": "Done", "specialization": "Counsellor",
		"status": "rejected", "submitted_at": "2026-02-20T00:00:00Z",
	})

	pending, err := f.svc.ListRequests(context.Background(), schema.DoctorRequestPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{newest, mid, old}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	all, err := f.svc.ListRequests(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, schema.DoctorRequestRejected, all[0].Status)
}

func TestListRequests_SignedOutForbidden(t *testing.T) {
	f := newFixture(t)
	f.caller.admin = nil
	_, err := f.svc.ListRequests(context.Background(), "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, f.fake.TotalCalls())
}

func TestApprove_ProvisionsDoctor(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "docpass1", "2026-02-01T00:00:00Z")

	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.IdentityCreated)
	assert.Empty(t, res.TemporaryPassword, "the requested password is used")
	assert.True(t, res.RoleAssigned)

	_, err = f.fake.SignIn(context.Background(), "doc@example.com", "docpass1")
	require.NoError(t, err)

	role, err := f.roles.Get(context.Background(), res.UserID)
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, schema.PlatformRoleDoctor, role.Role)

	require.NotNil(t, res.Doctor)
	assert.Equal(t, "doc@example.com", res.Doctor.Email)
	assert.Equal(t, "Psychiatrist", res.Doctor.Category)
	assert.Equal(t, "555-0100", res.Doctor.Phone)
	assert.Nil(t, res.Doctor.ProfilePicture)

	assert.Equal(t, schema.DoctorRequestApproved, res.Request.Status)
	require.NotNil(t, res.Request.ReviewedBy)
	assert.Equal(t, "root-id", *res.Request.ReviewedBy)
	require.NotNil(t, res.Request.ReviewedAt)
	assert.True(t, res.Request.ReviewedAt.Equal(f.svc.now()))

	logs := f.fake.Rows(backend.TableAuditLogs)
	require.Len(t, logs, 1)
	assert.Equal(t, schema.AuditApproveDoctor, logs[0]["action"])
	assert.Equal(t, id, logs[0]["record_id"])
}

func TestApprove_GeneratesPasswordWhenMissing(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")

	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "GENERATEDPASSWORD", res.TemporaryPassword)

	_, err = f.fake.SignIn(context.Background(), "doc@example.com", "GENERATEDPASSWORD")
	assert.NoError(t, err)
}

func TestApprove_ReusesExistingIdentityAndDoctor(t *testing.T) {
	f := newFixture(t)
	userID := f.fake.AddIdentity("doc@example.com", "existing1")
	f.fake.Seed(backend.TableDoctors, schema.DoctorInsert{Name: "Existing", Email: "doc@example.com", Category: "Counsellor"})
	id := f.request("doc@example.com", "docpass1", "2026-02-01T00:00:00Z")

	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.IdentityCreated)
	assert.Equal(t, userID, res.UserID)
	assert.Zero(t, f.fake.Calls("CreateIdentity"))
	assert.Len(t, f.fake.Rows(backend.TableDoctors), 1)
	assert.Equal(t, "Existing", res.Doctor.Name)

	_, err = f.fake.SignIn(context.Background(), "doc@example.com", "existing1")
	assert.NoError(t, err, "an existing identity keeps its password")
}

func TestApprove_KeepsOtherPlatformRole(t *testing.T) {
	f := newFixture(t)
	userID := f.fake.AddIdentity("doc@example.com", "existing1")
	f.fake.Seed(backend.TableUserRoles, schema.UserRoleInsert{UserID: userID, Role: schema.PlatformRolePatient})
	id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")

	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.RoleAssigned)

	role, err := f.roles.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, schema.PlatformRolePatient, role.Role)
}

func TestApprove_RoleFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.svc.roles = failingRoles{}
	id := f.request("doc@example.com", "docpass1", "2026-02-01T00:00:00Z")

	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.RoleAssigned)
	assert.Equal(t, "approved", f.status(id))
}

func TestApprove_DoctorInsertFailureCanBeRetried(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "docpass1", "2026-02-01T00:00:00Z")
	f.fake.Fail("Insert:doctors", errors.Join(backend.ErrUnavailable, errors.New("timeout")))

	_, err := f.svc.Approve(context.Background(), id)
	require.ErrorIs(t, err, backend.ErrUnavailable)
	assert.Equal(t, "pending", f.status(id))

	f.fake.Fail("Insert:doctors", nil)
	res, err := f.svc.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.IdentityCreated, "the identity from the first attempt is reused")
	assert.Equal(t, 1, f.fake.Calls("CreateIdentity"))
	assert.Equal(t, "approved", f.status(id))
}

func TestApprove_Guards(t *testing.T) {
	t.Run("moderator", func(t *testing.T) {
		f := newFixture(t)
		id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")
		f.asModerator()
		f.fake.ResetCalls()

		_, err := f.svc.Approve(context.Background(), id)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Zero(t, f.fake.TotalCalls())
	})

	t.Run("missing request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Approve(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already reviewed", func(t *testing.T) {
		f := newFixture(t)
		id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")
		_, err := f.svc.Reject(context.Background(), id, "incomplete license")
		require.NoError(t, err)

		_, err = f.svc.Approve(context.Background(), id)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
		assert.Zero(t, f.fake.Calls("CreateIdentity"))
	})
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")

	req, err := f.svc.Reject(context.Background(), id, "  license could not be verified ")
	require.NoError(t, err)
	assert.Equal(t, schema.DoctorRequestRejected, req.Status)
	require.NotNil(t, req.RejectionReason)
	assert.Equal(t, "license could not be verified", *req.RejectionReason)
	require.NotNil(t, req.ReviewedBy)
	assert.Equal(t, "root-id", *req.ReviewedBy)

	logs := f.fake.Rows(backend.TableAuditLogs)
	require.Len(t, logs, 1)
	assert.Equal(t, schema.AuditRejectDoctor, logs[0]["action"])
	assert.Empty(t, f.fake.Rows(backend.TableDoctors))
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")
	f.fake.ResetCalls()

	_, err := f.svc.Reject(context.Background(), id, "   ")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Zero(t, f.fake.TotalCalls())
	assert.Equal(t, "pending", f.status(id))
}

func TestReject_ModeratorForbidden(t *testing.T) {
	f := newFixture(t)
	id := f.request("doc@example.com", "", "2026-02-01T00:00:00Z")
	f.asModerator()

	_, err := f.svc.Reject(context.Background(), id, "no")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "pending", f.status(id))
}
