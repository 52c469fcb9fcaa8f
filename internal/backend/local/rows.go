// ABOUTME: Generic row access over the registered tables
// ABOUTME: Translates backend.Query filters, ordering and ranges into SQL

package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
)

var sqlOps = map[backend.Op]string{
	backend.OpEq:  "=",
	backend.OpNeq: "!=",
	backend.OpGt:  ">",
	backend.OpGte: ">=",
	backend.OpLt:  "<",
	backend.OpLte: "<=",
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (t *table) condition(f backend.Filter) (string, []any, error) {
	c, ok := t.column(f.Column)
	if !ok {
		return "", nil, unknownColumn(t, f.Column)
	}
	if f.Value == nil {
		if f.Op == backend.OpNeq {
			return c.name + " IS NOT NULL", nil, nil
		}
		return c.name + " IS NULL", nil, nil
	}
	if f.Op == backend.OpILike {
		pattern := strings.ReplaceAll(fmt.Sprint(f.Value), "*", "%")
		return c.name + " LIKE ?", []any{pattern}, nil
	}
	op, ok := sqlOps[f.Op]
	if !ok {
		return "", nil, &backend.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("unsupported operator %q", f.Op)}
	}
	v, err := toSQL(c, f.Value)
	if err != nil {
		return "", nil, err
	}
	return c.name + " " + op + " ?", []any{v}, nil
}

// where builds the WHERE clause for ANDed filters plus an ORed group.
func (t *table) where(filters, anyOf []backend.Filter) (string, []any, error) {
	var parts []string
	var args []any
	for _, f := range filters {
		cond, a, err := t.condition(f)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, cond)
		args = append(args, a...)
	}
	if len(anyOf) > 0 {
		var ors []string
		for _, f := range anyOf {
			cond, a, err := t.condition(f)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, cond)
			args = append(args, a...)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (t *table) projection(cols string) ([]column, error) {
	cols = strings.TrimSpace(cols)
	if cols == "" || cols == "*" {
		return t.columns, nil
	}
	var out []column
	for _, name := range strings.Split(cols, ",") {
		name = strings.TrimSpace(name)
		c, ok := t.column(name)
		if !ok {
			return nil, unknownColumn(t, name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) scanRows(ctx context.Context, q queryer, cols []column, query string, args ...any) ([]json.RawMessage, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c.name] = fromSQL(c, vals[i])
		}
		buf, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding row: %w", err)
		}
		out = append(out, buf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func firstKey(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func names(cols []column) string {
	n := make([]string, len(cols))
	for i, c := range cols {
		n[i] = c.name
	}
	return strings.Join(n, ", ")
}

// Select returns the rows matching q.
func (s *Store) Select(ctx context.Context, tableName string, q backend.Query) ([]json.RawMessage, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	cols, err := t.projection(q.Columns)
	if err != nil {
		return nil, err
	}
	where, args, err := t.where(q.Filters, q.Any)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + names(cols) + " FROM " + t.name + where
	if q.Order != nil {
		if !t.hasColumn(q.Order.Column) {
			return nil, unknownColumn(t, q.Order.Column)
		}
		dir := "DESC"
		if q.Order.Ascending {
			dir = "ASC"
		}
		query += " ORDER BY " + q.Order.Column + " " + dir
	}
	if q.Range != nil {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Range.To-q.Range.From+1, q.Range.From)
	}

	rows, err := s.scanRows(ctx, s.db, cols, query, args...)
	if err != nil {
		return nil, err
	}
	if q.Single && len(rows) != 1 {
		return nil, &backend.Error{
			Status:  http.StatusNotAcceptable,
			Code:    backend.CodeNoRows,
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: fmt.Sprintf("The result contains %d rows", len(rows)),
		}
	}
	return rows, nil
}

// Count returns the number of rows matching q's filters.
func (s *Store) Count(ctx context.Context, tableName string, q backend.Query) (int, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return 0, err
	}
	where, args, err := t.where(q.Filters, q.Any)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// Insert stores row and returns the stored representation.
func (s *Store) Insert(ctx context.Context, tableName string, row any) (json.RawMessage, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	m, err := toMap(row)
	if err != nil {
		return nil, err
	}
	t.fillDefaults(m, s.timestamp())

	var cols, marks []string
	var args []any
	for _, c := range t.columns {
		v, ok := m[c.name]
		if !ok {
			continue
		}
		sv, err := toSQL(c, v)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c.name)
		marks = append(marks, "?")
		args = append(args, sv)
		delete(m, c.name)
	}
	if len(m) > 0 {
		return nil, unknownColumn(t, firstKey(m))
	}

	query := "INSERT INTO " + t.name + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, constraintError(fmt.Errorf("inserting into %s: %w", t.name, err))
	}

	var key any
	if t.autoKey {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading inserted id: %w", err)
		}
		key = id
	} else {
		for i, c := range cols {
			if c == t.key {
				key = args[i]
			}
		}
	}

	rows, err := s.scanRows(ctx, s.db, t.columns, "SELECT "+names(t.columns)+" FROM "+t.name+" WHERE "+t.key+" = ?", key)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("inserted row %v not found", key)
	}
	s.logger.Debug("inserted row", "table", t.name, "key", key)
	return rows[0], nil
}

// Update applies patch to every row matching filters and returns them.
func (s *Store) Update(ctx context.Context, tableName string, filters []backend.Filter, patch any) ([]json.RawMessage, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("refusing to update %s without filters", t.name)
	}
	m, err := toMap(patch)
	if err != nil {
		return nil, err
	}
	if _, ok := m["updated_at"]; !ok && t.hasColumn("updated_at") {
		m["updated_at"] = s.timestamp()
	}

	var sets []string
	var setArgs []any
	for _, c := range t.columns {
		v, ok := m[c.name]
		if !ok {
			continue
		}
		sv, err := toSQL(c, v)
		if err != nil {
			return nil, err
		}
		sets = append(sets, c.name+" = ?")
		setArgs = append(setArgs, sv)
		delete(m, c.name)
	}
	if len(m) > 0 {
		return nil, unknownColumn(t, firstKey(m))
	}

	where, whereArgs, err := t.where(filters, nil)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keys, err := selectKeys(ctx, tx, t, where, whereArgs)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []json.RawMessage{}, nil
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	query := "UPDATE " + t.name + " SET " + strings.Join(sets, ", ") + " WHERE " + t.key + " IN (" + marks + ")"
	if _, err := tx.ExecContext(ctx, query, append(setArgs, keys...)...); err != nil {
		return nil, constraintError(fmt.Errorf("updating %s: %w", t.name, err))
	}

	rows, err := s.scanRows(ctx, tx, t.columns,
		"SELECT "+names(t.columns)+" FROM "+t.name+" WHERE "+t.key+" IN ("+marks+")", keys...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	s.logger.Debug("updated rows", "table", t.name, "count", len(rows))
	return rows, nil
}

func selectKeys(ctx context.Context, q queryer, t *table, where string, args []any) ([]any, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+t.key+" FROM "+t.name+where, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting keys: %w", err)
	}
	defer rows.Close()

	var keys []any
	for rows.Next() {
		var k any
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes every row matching filters.
func (s *Store) Delete(ctx context.Context, tableName string, filters []backend.Filter) error {
	t, err := lookupTable(tableName)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("refusing to delete from %s without filters", t.name)
	}
	where, args, err := t.where(filters, nil)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+t.name+where, args...)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", t.name, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("deleted rows", "table", t.name, "count", n)
	return nil
}
