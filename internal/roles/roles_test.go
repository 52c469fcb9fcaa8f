// ABOUTME: Tests for the platform role service
// ABOUTME: Uses the in-memory fake backend to check upsert, paging, search and stats

package roles

import (
	"context"
	"fmt"
	"testing"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/backend/backendtest"
	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Absent(t *testing.T) {
	svc := New(backendtest.New(), nil)
	r, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestUpsert_Idempotent(t *testing.T) {
	fake := backendtest.New()
	svc := New(fake, nil)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, "user-1", schema.PlatformRoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, schema.PlatformRoleDoctor, first.Role)

	second, err := svc.Upsert(ctx, "user-1", schema.PlatformRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, schema.PlatformRoleAdmin, second.Role)

	_, err = svc.Upsert(ctx, "user-1", schema.PlatformRoleAdmin)
	require.NoError(t, err)

	assert.Len(t, fake.Rows(backend.TableUserRoles), 1)
	isAdmin, err := svc.IsAdmin(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestUpsert_InvalidRole(t *testing.T) {
	svc := New(backendtest.New(), nil)
	_, err := svc.Upsert(context.Background(), "user-1", schema.PlatformRole("moderator"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreate_DuplicateRejected(t *testing.T) {
	svc := New(backendtest.New(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", schema.PlatformRolePatient)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", schema.PlatformRoleDoctor)
	assert.True(t, backend.IsUniqueViolation(err))
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	fake := backendtest.New()
	svc := New(fake, nil)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "ghost"))

	_, err := svc.Create(ctx, "user-1", schema.PlatformRolePatient)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "user-1"))
	assert.Empty(t, fake.Rows(backend.TableUserRoles))
}

func TestListPage(t *testing.T) {
	svc := New(backendtest.New(), nil)
	ctx := context.Background()
	for i := 0; i < 23; i++ {
		_, err := svc.Create(ctx, fmt.Sprintf("user-%02d", i), schema.PlatformRolePatient)
		require.NoError(t, err)
	}

	tests := []struct {
		page, limit int
		wantLen     int
		wantPages   int
		wantCurrent int
	}{
		{page: 1, limit: 10, wantLen: 10, wantPages: 3, wantCurrent: 1},
		{page: 3, limit: 10, wantLen: 3, wantPages: 3, wantCurrent: 3},
		{page: 4, limit: 10, wantLen: 0, wantPages: 3, wantCurrent: 4},
		{page: 0, limit: 0, wantLen: 10, wantPages: 3, wantCurrent: 1},
		{page: 1, limit: 25, wantLen: 23, wantPages: 1, wantCurrent: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page%d_limit%d", tt.page, tt.limit), func(t *testing.T) {
			p, err := svc.ListPage(ctx, tt.page, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, 23, p.Total)
			assert.Len(t, p.Roles, tt.wantLen)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, tt.wantCurrent, p.CurrentPage)
		})
	}
}

func TestSearch(t *testing.T) {
	svc := New(backendtest.New(), nil)
	ctx := context.Background()
	_, _ = svc.Create(ctx, "alpha", schema.PlatformRolePatient)
	_, _ = svc.Create(ctx, "beta", schema.PlatformRoleDoctor)
	_, _ = svc.Create(ctx, "gamma", schema.PlatformRoleDoctor)

	got, err := svc.Search(ctx, "DOC")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.Search(ctx, "alp")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alpha", got[0].UserID)

	got, err = svc.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStats(t *testing.T) {
	svc := New(backendtest.New(), nil)
	ctx := context.Background()
	_, _ = svc.Create(ctx, "a", schema.PlatformRolePatient)
	_, _ = svc.Create(ctx, "b", schema.PlatformRolePatient)
	_, _ = svc.Create(ctx, "c", schema.PlatformRoleDoctor)
	_, _ = svc.Create(ctx, "d", schema.PlatformRoleSuperadmin)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Patients: 2, Doctors: 1, Superadmins: 1}, *st)
}

func TestMissingTable(t *testing.T) {
	fake := backendtest.New()
	fake.DropTable(backend.TableUserRoles)
	svc := New(fake, nil)
	ctx := context.Background()

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, *st)

	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, ErrTableMissing)
	_, err = svc.Upsert(ctx, "x", schema.PlatformRoleAdmin)
	assert.ErrorIs(t, err, ErrTableMissing)
}
