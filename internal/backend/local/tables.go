// ABOUTME: Table registry for generic row access: column kinds, keys and insert defaults
// ABOUTME: Converts between JSON values and SQLite storage per column kind

package local

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safespace/safespace-admin/internal/backend"
)

type colKind int

const (
	kindText colKind = iota
	kindInt
	kindJSON
	kindTime
)

type column struct {
	name string
	kind colKind
}

type table struct {
	name    string
	key     string
	autoKey bool // INTEGER AUTOINCREMENT key
	columns []column
	// defaults fills columns the caller left out of an insert
	defaults map[string]string
}

func (t *table) column(name string) (column, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (t *table) hasColumn(name string) bool {
	_, ok := t.column(name)
	return ok
}

func text(name string) column { return column{name, kindText} }
func integer(name string) column { return column{name, kindInt} }
func jsonCol(name string) column { return column{name, kindJSON} }
func stamp(name string) column { return column{name, kindTime} }

var tables = map[string]*table{
	backend.TableAdmins: {
		name: backend.TableAdmins,
		key:  "id",
		columns: []column{
			text("id"), text("email"), text("full_name"), text("role"),
			stamp("created_at"), stamp("updated_at"),
		},
		defaults: map[string]string{"role": "pending"},
	},
	backend.TableUsers: {
		name: backend.TableUsers,
		key:  "id",
		columns: []column{
			text("id"), text("email"), text("full_name"), text("date_of_birth"),
			text("phone_number"), text("status"),
			stamp("created_at"), stamp("updated_at"),
		},
		defaults: map[string]string{"status": "active"},
	},
	backend.TableUserRoles: {
		name: backend.TableUserRoles,
		key:  "id",
		columns: []column{
			text("id"), text("user_id"), text("role"),
			stamp("created_at"), stamp("updated_at"),
		},
	},
	backend.TableEntertainment: {
		name:    backend.TableEntertainment,
		key:     "id",
		autoKey: true,
		columns: []column{
			integer("id"), text("title"), text("type"), text("description"),
			text("cover_img_url"), text("media_file_url"), text("category"),
			jsonCol("mood_states"), text("status"), text("dominant_state"),
			stamp("created_at"), stamp("updated_at"),
		},
		defaults: map[string]string{"status": "active"},
	},
	backend.TableDoctors: {
		name:    backend.TableDoctors,
		key:     "id",
		autoKey: true,
		columns: []column{
			integer("id"), text("name"), text("email"), text("phone"), text("category"),
			text("profilepicture"), text("dominant_state"), stamp("created_at"),
		},
		defaults: map[string]string{"phone": ""},
	},
	backend.TableDoctorRequests: {
		name: backend.TableDoctorRequests,
		key:  "id",
		columns: []column{
			text("id"), text("email"), text("password"), text("full_name"), text("phone_number"),
			text("specialization"), integer("years_experience"), text("license_number"),
			text("city"), text("address_line_1"), text("address_line_2"), text("postal_code"),
			text("license_document_url"), text("qualification_document_url"),
			text("status"), text("rejection_reason"),
			stamp("submitted_at"), stamp("reviewed_at"), text("reviewed_by"),
		},
		defaults: map[string]string{"status": "pending"},
	},
	backend.TableAuditLogs: {
		name: backend.TableAuditLogs,
		key:  "id",
		columns: []column{
			text("id"), text("admin_id"), text("action"), text("table_name"),
			text("record_id"), jsonCol("changes"), stamp("created_at"),
		},
	},
}

func lookupTable(name string) (*table, error) {
	t, ok := tables[name]
	if !ok {
		return nil, &backend.Error{
			Status:  http.StatusNotFound,
			Code:    backend.CodeUndefinedTable,
			Message: fmt.Sprintf(`relation "public.%s" does not exist`, name),
		}
	}
	return t, nil
}

func unknownColumn(t *table, name string) error {
	return &backend.Error{
		Status:  http.StatusBadRequest,
		Code:    backend.CodeUnknownColumn,
		Message: fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", name, t.name),
	}
}

// fillDefaults sets the key, timestamps and declared defaults of an insert.
func (t *table) fillDefaults(row map[string]any, now string) {
	if !t.autoKey {
		if v, ok := row[t.key]; !ok || v == nil || v == "" {
			row[t.key] = uuid.New().String()
		}
	}
	for _, c := range []string{"created_at", "updated_at", "submitted_at"} {
		if t.hasColumn(c) {
			if v, ok := row[c]; !ok || v == nil || isZeroTime(v) {
				row[c] = now
			}
		}
	}
	for col, def := range t.defaults {
		if v, ok := row[col]; !ok || v == nil || v == "" {
			row[col] = def
		}
	}
}

func isZeroTime(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "0001-01-01")
}

// toMap turns any JSON-encodable value into a column map.
func toMap(v any) (map[string]any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(buf)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("row must be a JSON object: %w", err)
	}
	return m, nil
}

// toSQL converts a value to its stored form for column c.
func toSQL(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindJSON:
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", c.name, err)
		}
		return string(buf), nil
	case kindInt:
		switch x := v.(type) {
		case json.Number:
			return x.Int64()
		case string:
			return strconv.ParseInt(x, 10, 64)
		case float64:
			return int64(x), nil
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		}
		return nil, fmt.Errorf("column %s expects an integer, got %T", c.name, v)
	case kindTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Format(timeLayout), nil
		case string:
			if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
				return t.UTC().Format(timeLayout), nil
			}
			return x, nil
		}
		return nil, fmt.Errorf("column %s expects a timestamp, got %T", c.name, v)
	}

	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format(timeLayout), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return fmt.Sprint(v), nil
}

// fromSQL converts a scanned value of column c to its JSON form.
func fromSQL(c column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	if c.kind == kindJSON {
		if s, ok := v.(string); ok {
			return json.RawMessage(s)
		}
	}
	return v
}
