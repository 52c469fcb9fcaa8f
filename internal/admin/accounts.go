// ABOUTME: Typed access to the admins table shared by Session and Approvals
// ABOUTME: Returns raw backend errors so callers decide how to classify them

package admin

import (
	"context"
	"net/http"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

type directory struct {
	rows backend.Rows
}

func (d directory) get(ctx context.Context, id string) (*schema.AdminAccount, error) {
	rows, err := d.rows.Select(ctx, backend.TableAdmins, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Single:  true,
	})
	if err != nil {
		return nil, err
	}
	return schema.One[schema.AdminAccount](rows)
}

func (d directory) list(ctx context.Context, filters ...backend.Filter) ([]schema.AdminAccount, error) {
	rows, err := d.rows.Select(ctx, backend.TableAdmins, backend.Query{
		Filters: filters,
		Order:   &backend.Order{Column: "created_at", Ascending: false},
	})
	if err != nil {
		return nil, err
	}
	return schema.DecodeAll[schema.AdminAccount](rows)
}

func (d directory) create(ctx context.Context, in schema.AdminInsert) (*schema.AdminAccount, error) {
	raw, err := d.rows.Insert(ctx, backend.TableAdmins, in)
	if err != nil {
		return nil, err
	}
	return schema.Decode[schema.AdminAccount](raw)
}

func (d directory) setFullName(ctx context.Context, id, name string) (*schema.AdminAccount, error) {
	rows, err := d.rows.Update(ctx, backend.TableAdmins,
		[]backend.Filter{backend.Eq("id", id)},
		map[string]any{"full_name": name},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &backend.Error{Status: http.StatusNotFound, Code: backend.CodeNoRows, Message: "Admin not found"}
	}
	return schema.One[schema.AdminAccount](rows)
}

func (d directory) delete(ctx context.Context, id string) error {
	return d.rows.Delete(ctx, backend.TableAdmins, []backend.Filter{backend.Eq("id", id)})
}
