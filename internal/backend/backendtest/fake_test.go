// ABOUTME: Tests for the in-memory fake backend
// ABOUTME: Checks filtering, single-row errors, failure injection and call counting

package backendtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_SelectSingleAndFilters(t *testing.T) {
	f := New()
	ctx := context.Background()
	id := f.AddAdmin("root@example.com", "secret1", schema.AdminRoleSuperadmin)
	f.AddAdmin("new@example.com", "secret1", schema.AdminRolePending)

	rows, err := f.Select(ctx, backend.TableAdmins, backend.Query{Filters: []backend.Filter{backend.Eq("id", id)}, Single: true})
	require.NoError(t, err)
	a, err := schema.One[schema.AdminAccount](rows)
	require.NoError(t, err)
	assert.Equal(t, schema.AdminRoleSuperadmin, a.Role)

	_, err = f.Select(ctx, backend.TableAdmins, backend.Query{Filters: []backend.Filter{backend.Eq("id", "nope")}, Single: true})
	assert.True(t, backend.IsNoRows(err))

	rows, err = f.Select(ctx, backend.TableAdmins, backend.Query{Any: []backend.Filter{backend.ILike("email", "NEW")}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Equal(t, 3, f.Calls("Select"))
	assert.Equal(t, 3, f.Calls("Select:admins"))
}

func TestFake_FailAndUnique(t *testing.T) {
	f := New()
	ctx := context.Background()
	boom := errors.New("boom")

	f.Fail("Insert:admins", boom)
	_, err := f.Insert(ctx, backend.TableAdmins, schema.AdminInsert{ID: "a", Email: "a@example.com", Role: schema.AdminRolePending})
	assert.ErrorIs(t, err, boom)

	f.Fail("Insert:admins", nil)
	_, err = f.Insert(ctx, backend.TableAdmins, schema.AdminInsert{ID: "a", Email: "a@example.com", Role: schema.AdminRolePending})
	require.NoError(t, err)
	_, err = f.Insert(ctx, backend.TableAdmins, schema.AdminInsert{ID: "b", Email: "a@example.com", Role: schema.AdminRolePending})
	assert.True(t, backend.IsUniqueViolation(err))
}

func TestFake_ApproveAdmin(t *testing.T) {
	f := New()
	ctx := context.Background()
	root := f.AddAdmin("root@example.com", "secret1", schema.AdminRoleSuperadmin)
	pending := f.AddAdmin("new@example.com", "secret1", schema.AdminRolePending)

	raw, err := f.Call(ctx, backend.ProcApproveAdmin, schema.ApproveArgs{AdminID: pending, Approve: true, ApproverID: root})
	require.NoError(t, err)
	var res schema.ApprovalResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "moderator", f.Row(backend.TableAdmins, pending)["role"])

	raw, err = f.Call(ctx, backend.ProcApproveAdmin, schema.ApproveArgs{AdminID: pending, Approve: true, ApproverID: root})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.False(t, res.Success)
}

func TestFake_DropTable(t *testing.T) {
	f := New()
	f.DropTable(backend.TableUserRoles)
	_, err := f.Count(context.Background(), backend.TableUserRoles, backend.Query{})
	assert.True(t, backend.IsUndefinedTable(err))
}
