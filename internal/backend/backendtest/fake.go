// ABOUTME: In-memory scripted backend for unit tests of the service packages
// ABOUTME: Records every call and lets tests inject failures per operation or per table

package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

type identity struct {
	id       string
	email    string
	password string
}

// ProcFunc handles a stored procedure call.
type ProcFunc func(args json.RawMessage) (any, error)

// Fake implements every backend interface in memory.
type Fake struct {
	mu         sync.Mutex
	tables     map[string][]map[string]any // keyed by table name
	identities map[string]*identity        // keyed by lowercased email
	session    *backend.Session
	objects    map[string][]byte // keyed by "bucket/path"
	procs      map[string]ProcFunc
	errs       map[string]error // keyed by op or "op:table"
	calls      map[string]int
	nextSerial int64

	// SignUpCreatesSession makes SignUp sign the new identity in, as the
	// hosted backend does when email confirmation is off.
	SignUpCreatesSession bool

	Now func() time.Time
}

// New creates an empty Fake with the approve_admin procedure installed.
func New() *Fake {
	f := &Fake{
		tables:     make(map[string][]map[string]any),
		identities: make(map[string]*identity),
		objects:    make(map[string][]byte),
		procs:      make(map[string]ProcFunc),
		errs:       make(map[string]error),
		calls:      make(map[string]int),
		Now:        time.Now,
	}
	for _, t := range []string{
		backend.TableAdmins, backend.TableUsers, backend.TableUserRoles,
		backend.TableEntertainment, backend.TableAuditLogs,
		backend.TableDoctors, backend.TableDoctorRequests,
	} {
		f.tables[t] = nil
	}
	f.procs[backend.ProcApproveAdmin] = f.approveAdmin
	return f
}

// Backend returns the Fake as a backend.Client.
func (f *Fake) Backend() *backend.Client {
	return &backend.Client{Auth: f, Identities: f, Rows: f, RPC: f, Storage: f}
}

// Fail makes op fail with err until cleared with a nil err. op is an
// operation name ("SignIn", "Select", "Call", ...) or "op:table" to fail only
// for one table, procedure or bucket.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// DropTable removes a table so queries fail as if it was never created.
func (f *Fake) DropTable(table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tables, table)
}

// HandleProcedure installs a handler for a stored procedure.
func (f *Fake) HandleProcedure(name string, fn ProcFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs[name] = fn
}

// Calls returns how many times op was invoked. op may be "op" or "op:table".
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of backend calls of any kind.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for op, c := range f.calls {
		if !strings.Contains(op, ":") {
			n += c
		}
	}
	return n
}

// ResetCalls zeroes all call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

// AddIdentity registers an email/password identity and returns its id.
func (f *Fake) AddIdentity(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New().String()
	f.identities[strings.ToLower(email)] = &identity{id: id, email: email, password: password}
	return id
}

// AddAdmin registers an identity and a matching admins row.
func (f *Fake) AddAdmin(email, password string, role schema.AdminRole) string {
	id := f.AddIdentity(email, password)
	f.Seed(backend.TableAdmins, schema.AdminInsert{ID: id, Email: email, Role: role})
	return id
}

// Seed inserts a row without counting it as a call.
func (f *Fake) Seed(table string, row any) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.insertLocked(table, row)
	if err != nil {
		panic(fmt.Sprintf("backendtest: seeding %s: %v", table, err))
	}
	return m
}

// Row returns a copy of the row of table whose id is id, or nil.
func (f *Fake) Row(table, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.tables[table] {
		if fmt.Sprint(r["id"]) == id {
			return copyRow(r)
		}
	}
	return nil
}

// Rows returns copies of every row of table.
func (f *Fake) Rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// SetSession replaces the current session. nil signs out.
func (f *Fake) SetSession(s *backend.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == nil {
		f.session = nil
		return
	}
	c := *s
	f.session = &c
}

// HasIdentity reports whether an identity with id exists.
func (f *Fake) HasIdentity(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ident := range f.identities {
		if ident.id == id {
			return true
		}
	}
	return false
}

// Object returns the stored bytes at bucket/path.
func (f *Fake) Object(bucket, path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+path]
	return b, ok
}

// begin counts a call and returns the injected error for it, if any.
// Callers must hold f.mu.
func (f *Fake) begin(op, target string) error {
	f.calls[op]++
	if target != "" {
		f.calls[op+":"+target]++
		if err, ok := f.errs[op+":"+target]; ok {
			return err
		}
	}
	return f.errs[op]
}

func (f *Fake) stamp() string {
	return f.Now().UTC().Format(time.RFC3339Nano)
}

// SignIn authenticates with email and password.
func (f *Fake) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SignIn", ""); err != nil {
		return nil, err
	}
	ident, ok := f.identities[strings.ToLower(strings.TrimSpace(email))]
	if !ok || ident.password != password {
		return nil, &backend.Error{Status: http.StatusBadRequest, Code: backend.CodeInvalidLogin, Message: "Invalid login credentials"}
	}
	f.session = f.newSession(ident)
	c := *f.session
	return &c, nil
}

func (f *Fake) newSession(ident *identity) *backend.Session {
	return &backend.Session{
		AccessToken:  "access-" + uuid.New().String(),
		RefreshToken: "refresh-" + uuid.New().String(),
		UserID:       ident.id,
		Email:        ident.email,
		ExpiresAt:    f.Now().Add(time.Hour),
	}
}

// SignUp creates a new identity.
func (f *Fake) SignUp(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SignUp", ""); err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := f.identities[key]; ok {
		return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: backend.CodeUserExists, Message: "User already registered"}
	}
	ident := &identity{id: uuid.New().String(), email: strings.TrimSpace(email), password: password}
	f.identities[key] = ident
	if f.SignUpCreatesSession {
		f.session = f.newSession(ident)
	}
	return &backend.Identity{UserID: ident.id, Email: ident.email}, nil
}

// SignOut clears the session, then reports any injected failure.
func (f *Fake) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	return f.begin("SignOut", "")
}

// CurrentSession returns the current session or nil.
func (f *Fake) CurrentSession(ctx context.Context) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CurrentSession", ""); err != nil {
		return nil, err
	}
	if f.session == nil {
		return nil, nil
	}
	c := *f.session
	return &c, nil
}

// FindIdentity returns the identity registered for email, or nil.
func (f *Fake) FindIdentity(ctx context.Context, email string) (*backend.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FindIdentity", ""); err != nil {
		return nil, err
	}
	ident, ok := f.identities[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	return &backend.Identity{UserID: ident.id, Email: ident.email}, nil
}

// CreateIdentity registers an identity without touching the session.
func (f *Fake) CreateIdentity(ctx context.Context, email, password string, attrs map[string]any) (*backend.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateIdentity", ""); err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := f.identities[key]; ok {
		return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: backend.CodeUserExists, Message: "User already registered"}
	}
	ident := &identity{id: uuid.New().String(), email: strings.TrimSpace(email), password: password}
	f.identities[key] = ident
	return &backend.Identity{UserID: ident.id, Email: ident.email}, nil
}

// DeleteIdentity removes an identity by id.
func (f *Fake) DeleteIdentity(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteIdentity", ""); err != nil {
		return err
	}
	for k, ident := range f.identities {
		if ident.id == userID {
			delete(f.identities, k)
			return nil
		}
	}
	return &backend.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
}

func (f *Fake) table(name string) ([]map[string]any, error) {
	rows, ok := f.tables[name]
	if !ok {
		return nil, &backend.Error{
			Status:  http.StatusNotFound,
			Code:    backend.CodeUndefinedTable,
			Message: fmt.Sprintf(`relation "public.%s" does not exist`, name),
		}
	}
	return rows, nil
}

// Select returns copies of the matching rows.
func (f *Fake) Select(ctx context.Context, table string, q backend.Query) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Select", table); err != nil {
		return nil, err
	}
	rows, err := f.table(table)
	if err != nil {
		return nil, err
	}

	matched := filterRows(rows, q.Filters, q.Any)
	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][col], matched[j][col])
			if asc {
				return c < 0
			}
			return c > 0
		})
	}
	if q.Range != nil {
		from, to := q.Range.From, q.Range.To+1
		if from > len(matched) {
			from = len(matched)
		}
		if to > len(matched) {
			to = len(matched)
		}
		matched = matched[from:to]
	}
	if q.Single && len(matched) != 1 {
		return nil, &backend.Error{
			Status:  http.StatusNotAcceptable,
			Code:    backend.CodeNoRows,
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: fmt.Sprintf("The result contains %d rows", len(matched)),
		}
	}
	return encodeRows(matched)
}

// Count returns the number of matching rows.
func (f *Fake) Count(ctx context.Context, table string, q backend.Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Count", table); err != nil {
		return 0, err
	}
	rows, err := f.table(table)
	if err != nil {
		return 0, err
	}
	return len(filterRows(rows, q.Filters, q.Any)), nil
}

// Insert stores a row, filling id and timestamps.
func (f *Fake) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Insert", table); err != nil {
		return nil, err
	}
	m, err := f.insertLocked(table, row)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (f *Fake) insertLocked(table string, row any) (map[string]any, error) {
	rows, err := f.table(table)
	if err != nil {
		return nil, err
	}
	m, err := toMap(row)
	if err != nil {
		return nil, err
	}

	if serialTables[table] {
		f.nextSerial++
		m["id"] = f.nextSerial
	} else if v, ok := m["id"]; !ok || v == nil || v == "" {
		m["id"] = uuid.New().String()
	}
	now := f.stamp()
	stamps := []string{"created_at", "updated_at"}
	if table == backend.TableDoctorRequests {
		stamps = append(stamps, "submitted_at")
	}
	for _, c := range stamps {
		if v, ok := m[c].(string); !ok || strings.HasPrefix(v, "0001-01-01") {
			m[c] = now
		}
	}
	if table == backend.TableDoctorRequests {
		if v, ok := m["status"]; !ok || v == nil || v == "" {
			m["status"] = "pending"
		}
	}
	if table == backend.TableAuditLogs {
		delete(m, "updated_at")
	}

	for _, col := range uniqueColumns[table] {
		for _, r := range rows {
			if r[col] != nil && fmt.Sprint(r[col]) == fmt.Sprint(m[col]) {
				return nil, &backend.Error{
					Status:  http.StatusConflict,
					Code:    backend.CodeUniqueViolation,
					Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_%s_key"`, table, col),
				}
			}
		}
	}

	f.tables[table] = append(rows, m)
	return copyRow(m), nil
}

var uniqueColumns = map[string][]string{
	backend.TableAdmins:         {"id", "email"},
	backend.TableUserRoles:      {"user_id"},
	backend.TableUsers:          {"id"},
	backend.TableDoctors:        {"email"},
	backend.TableDoctorRequests: {"id"},
}

// serialTables get integer ids from a shared counter.
var serialTables = map[string]bool{
	backend.TableEntertainment: true,
	backend.TableDoctors:       true,
}

// Update merges patch into every matching row.
func (f *Fake) Update(ctx context.Context, table string, filters []backend.Filter, patch any) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Update", table); err != nil {
		return nil, err
	}
	rows, err := f.table(table)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("update of %s without filters", table)
	}
	p, err := toMap(patch)
	if err != nil {
		return nil, err
	}

	var updated []map[string]any
	for _, r := range rows {
		if !matchAll(r, filters) {
			continue
		}
		for k, v := range p {
			r[k] = v
		}
		if _, ok := p["updated_at"]; !ok {
			if _, has := r["updated_at"]; has {
				r["updated_at"] = f.stamp()
			}
		}
		updated = append(updated, copyRow(r))
	}
	return encodeRows(updated)
}

// Delete removes every matching row.
func (f *Fake) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Delete", table); err != nil {
		return err
	}
	rows, err := f.table(table)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("delete from %s without filters", table)
	}
	kept := rows[:0]
	for _, r := range rows {
		if !matchAll(r, filters) {
			kept = append(kept, r)
		}
	}
	f.tables[table] = kept
	return nil
}

// Call invokes an installed procedure.
func (f *Fake) Call(ctx context.Context, name string, args any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Call", name); err != nil {
		return nil, err
	}
	fn, ok := f.procs[name]
	if !ok {
		return nil, &backend.Error{
			Status:  http.StatusNotFound,
			Code:    backend.CodeUnknownFunction,
			Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", name),
		}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	res, err := fn(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// approveAdmin emulates the hosted procedure. Called with f.mu held.
func (f *Fake) approveAdmin(raw json.RawMessage) (any, error) {
	var in schema.ApproveArgs
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	roleOf := func(id string) (map[string]any, schema.AdminRole) {
		for _, r := range f.tables[backend.TableAdmins] {
			if r["id"] == id {
				role, _ := r["role"].(string)
				return r, schema.AdminRole(role)
			}
		}
		return nil, ""
	}

	if _, role := roleOf(in.ApproverID); role != schema.AdminRoleSuperadmin {
		return schema.ApprovalResult{Message: "Only superadmins can approve admins"}, nil
	}
	if in.AdminID == in.ApproverID {
		return schema.ApprovalResult{Message: "Admins cannot approve themselves"}, nil
	}
	target, role := roleOf(in.AdminID)
	if target == nil {
		return schema.ApprovalResult{Message: "Admin not found"}, nil
	}
	if role != schema.AdminRolePending {
		return schema.ApprovalResult{Message: "Admin is not pending approval"}, nil
	}
	if in.Approve {
		target["role"] = string(schema.AdminRoleModerator)
		target["updated_at"] = f.stamp()
		return schema.ApprovalResult{Success: true, Message: "Admin approved successfully"}, nil
	}
	target["role"] = string(schema.AdminRoleRejected)
	target["updated_at"] = f.stamp()
	return schema.ApprovalResult{Success: true, Message: "Admin rejected"}, nil
}

// Upload stores body in memory.
func (f *Fake) Upload(ctx context.Context, bucket, path string, body io.Reader, opts backend.UploadOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Upload", bucket); err != nil {
		return "", err
	}
	path = strings.TrimLeft(path, "/")
	key := bucket + "/" + path
	if _, ok := f.objects[key]; ok && !opts.Upsert {
		return "", &backend.Error{Status: http.StatusConflict, Code: backend.CodeDuplicateObject, Message: "The resource already exists"}
	}
	f.objects[key] = data
	return path, nil
}

// List returns the objects directly under prefix.
func (f *Fake) List(ctx context.Context, bucket, prefix string, opts backend.ListOptions) ([]backend.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("List", bucket); err != nil {
		return nil, err
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	out := []backend.ObjectInfo{}
	for key, data := range f.objects {
		name, ok := strings.CutPrefix(key, bucket+"/"+prefix)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(opts.Search)) {
			continue
		}
		out = append(out, backend.ObjectInfo{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Remove deletes objects. Missing paths are ignored.
func (f *Fake) Remove(ctx context.Context, bucket string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Remove", bucket); err != nil {
		return err
	}
	for _, p := range paths {
		delete(f.objects, bucket+"/"+strings.TrimLeft(p, "/"))
	}
	return nil
}

// PublicURL returns a stable fake URL.
func (f *Fake) PublicURL(bucket, path string) string {
	return "https://fake.backend/storage/v1/object/public/" + bucket + "/" + strings.TrimLeft(path, "/")
}

func toMap(v any) (map[string]any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("row is not an object: %w", err)
	}
	return m, nil
}

func copyRow(r map[string]any) map[string]any {
	c := make(map[string]any, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func encodeRows(rows []map[string]any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func filterRows(rows []map[string]any, all, anyOf []backend.Filter) []map[string]any {
	var out []map[string]any
	for _, r := range rows {
		if !matchAll(r, all) {
			continue
		}
		if len(anyOf) > 0 && !matchAny(r, anyOf) {
			continue
		}
		out = append(out, copyRow(r))
	}
	return out
}

func matchAll(r map[string]any, filters []backend.Filter) bool {
	for _, flt := range filters {
		if !match(r[flt.Column], flt) {
			return false
		}
	}
	return true
}

func matchAny(r map[string]any, filters []backend.Filter) bool {
	for _, flt := range filters {
		if match(r[flt.Column], flt) {
			return true
		}
	}
	return false
}

func match(v any, flt backend.Filter) bool {
	if flt.Op == backend.OpILike {
		if v == nil {
			return false
		}
		return likeMatch(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(flt.Value)))
	}
	if v == nil || flt.Value == nil {
		switch flt.Op {
		case backend.OpEq:
			return v == nil && flt.Value == nil
		case backend.OpNeq:
			return (v == nil) != (flt.Value == nil)
		}
		return false
	}
	c := compare(v, flt.Value)
	switch flt.Op {
	case backend.OpEq:
		return c == 0
	case backend.OpNeq:
		return c != 0
	case backend.OpGt:
		return c > 0
	case backend.OpGte:
		return c >= 0
	case backend.OpLt:
		return c < 0
	case backend.OpLte:
		return c <= 0
	}
	return false
}

// likeMatch supports * and % wildcards.
func likeMatch(s, pattern string) bool {
	pattern = strings.ReplaceAll(pattern, "%", "*")
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}

// compare orders values as times when both parse as times, as numbers when
// both are numeric, and as strings otherwise.
func compare(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := asFloat(a); ok {
		if nb, ok := asFloat(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
