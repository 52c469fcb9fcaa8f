// ABOUTME: Tests for the hosted backend client against an httptest server
// ABOUTME: Covers auth flows, session refresh, row queries, rpc, storage and error decoding

package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAnonKey = "eyJhbGciOiJIUzI1NiJ9.anon"

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *backend.MemorySessionStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sessions := backend.NewMemorySessionStore()
	c, err := New(Options{URL: srv.URL, AnonKey: testAnonKey, Sessions: sessions})
	require.NoError(t, err)
	return c, sessions
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{AnonKey: testAnonKey})
	assert.Error(t, err)

	_, err = New(Options{URL: "not a url", AnonKey: testAnonKey})
	assert.Error(t, err)

	_, err = New(Options{URL: "https://x.example.co"})
	assert.Error(t, err)
}

func TestSignIn_PersistsSession(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAnonKey, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@x.com", body["email"])

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tok-1",
			"refresh_token": "ref-1",
			"expires_at":    exp,
			"user":          map[string]string{"id": "u1", "email": "a@x.com"},
		})
	})

	s, err := c.SignIn(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, time.Unix(exp, 0).UTC(), s.ExpiresAt)

	stored, err := sessions.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "tok-1", stored.AccessToken)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":       400,
			"error_code": "invalid_credentials",
			"msg":        "Invalid login credentials",
		})
	})

	_, err := c.SignIn(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)

	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeInvalidLogin, be.Code)
	assert.Equal(t, "Invalid login credentials", be.Message)

	s, _ := sessions.Load()
	assert.Nil(t, s)
}

func TestSignUp_BareUserAndAttrs(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"full_name": "Alice"}, body["data"])
		writeJSON(w, http.StatusOK, map[string]any{"id": "new-1", "email": "a@x.com"})
	})

	id, err := c.SignUp(context.Background(), "a@x.com", "secret1", map[string]any{"full_name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", id.UserID)

	s, _ := sessions.Load()
	assert.Nil(t, s, "unconfirmed signup creates no session")
}

func TestSignUp_WithSession(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"expires_in":   3600,
			"user":         map[string]string{"id": "new-2", "email": "b@x.com"},
		})
	})

	id, err := c.SignUp(context.Background(), "b@x.com", "secret1", nil)
	require.NoError(t, err)
	assert.Equal(t, "new-2", id.UserID)

	s, _ := sessions.Load()
	require.NotNil(t, s)
	assert.Equal(t, "new-2", s.UserID)
}

func TestSignUp_AlreadyRegistered(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":       422,
			"error_code": "user_already_exists",
			"msg":        "User already registered",
		})
	})

	_, err := c.SignUp(context.Background(), "a@x.com", "secret1", nil)
	assert.True(t, backend.IsUniqueViolation(err))
}

func TestSignOut_ClearsEvenWhenRemoteFails(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})
	require.NoError(t, sessions.Save(&backend.Session{AccessToken: "tok", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))

	err := c.SignOut(context.Background())
	require.Error(t, err)
	assert.Equal(t, "boom", backend.Message(err))

	s, _ := sessions.Load()
	assert.Nil(t, s)
}

func TestSignOut_InvalidSessionIsNotAnError(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
	})
	require.NoError(t, sessions.Save(&backend.Session{AccessToken: "tok", UserID: "u1"}))

	assert.NoError(t, c.SignOut(context.Background()))
}

func TestSignOut_NoSession(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a session")
	})
	assert.NoError(t, c.SignOut(context.Background()))
}

func TestCurrentSession_Refresh(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tok-2",
			"refresh_token": "ref-2",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1", "email": "a@x.com"},
		})
	})
	require.NoError(t, sessions.Save(&backend.Session{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		UserID:       "u1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "tok-2", s.AccessToken)

	stored, _ := sessions.Load()
	assert.Equal(t, "ref-2", stored.RefreshToken)
}

func TestCurrentSession_RejectedRefreshClears(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token"})
	})
	require.NoError(t, sessions.Save(&backend.Session{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		UserID:       "u1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	stored, _ := sessions.Load()
	assert.Nil(t, stored)
}

func TestCurrentSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sessions := backend.NewMemorySessionStore()
	require.NoError(t, sessions.Save(&backend.Session{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))
	c, err := New(Options{URL: url, AnonKey: testAnonKey, Sessions: sessions})
	require.NoError(t, err)

	_, err = c.CurrentSession(context.Background())
	assert.ErrorIs(t, err, backend.ErrUnavailable)

	stored, _ := sessions.Load()
	assert.NotNil(t, stored, "transport failures keep the session")
}

func TestDeleteIdentity_RequiresServiceKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.ErrorIs(t, c.DeleteIdentity(context.Background(), "u1"), backend.ErrServiceKeyRequired)
}

func TestDeleteIdentity_UsesServiceKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/auth/v1/admin/users/u1", r.URL.Path)
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		assert.Equal(t, "service", r.Header.Get("apikey"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{URL: srv.URL, AnonKey: testAnonKey, ServiceRoleKey: "service"})
	require.NoError(t, err)
	assert.NoError(t, c.DeleteIdentity(context.Background(), "u1"))
}

func TestSelect_EncodesQuery(t *testing.T) {
	c, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/admins", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.pending", q.Get("role"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("offset"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "a1"}, {"id": "a2"}})
	})
	require.NoError(t, sessions.Save(&backend.Session{AccessToken: "user-token", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))

	rows, err := c.Select(context.Background(), backend.TableAdmins, backend.Query{
		Filters: []backend.Filter{backend.Eq("role", "pending")},
		Order:   &backend.Order{Column: "created_at"},
		Range:   &backend.Range{From: 10, To: 19},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSelect_SingleNoRows(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, singleObject, r.Header.Get("Accept"))
		writeJSON(w, http.StatusNotAcceptable, map[string]any{
			"code":    "PGRST116",
			"details": "The result contains 0 rows",
			"hint":    nil,
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	})

	_, err := c.Select(context.Background(), backend.TableAdmins, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", "missing")},
		Single:  true,
	})
	assert.True(t, backend.IsNoRows(err))

	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "The result contains 0 rows", be.Details)
}

func TestCount_ParsesContentRange(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "*/42")
		w.WriteHeader(http.StatusOK)
	})

	n, err := c.Count(context.Background(), backend.TableUserRoles, backend.Query{})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestInsertAndUpdate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, []map[string]string{{"id": "r1", "role": "doctor"}})
		case http.MethodPatch:
			assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, []map[string]string{{"id": "r1", "role": "admin"}})
		}
	})

	row, err := c.Insert(context.Background(), backend.TableUserRoles, map[string]string{"user_id": "u1", "role": "doctor"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r1","role":"doctor"}`, string(row))

	rows, err := c.Update(context.Background(), backend.TableUserRoles, []backend.Filter{backend.Eq("user_id", "u1")}, map[string]string{"role": "admin"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDelete_RequiresFilters(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.Error(t, c.Delete(context.Background(), backend.TableAdmins, nil))
}

func TestCall(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/approve_admin", r.URL.Path)
		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "a1", args["admin_id"])
		assert.Equal(t, true, args["approve"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Admin approved successfully"})
	})

	raw, err := c.Call(context.Background(), backend.ProcApproveAdmin, map[string]any{"admin_id": "a1", "approve": true, "approver_id": "s1"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "approved")
}

func TestServerErrorWithoutJSONIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := c.Select(context.Background(), backend.TableAdmins, backend.Query{})
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestEncodeQuery_OrGroup(t *testing.T) {
	params := encodeQuery(backend.Query{
		Any: []backend.Filter{
			backend.ILike("user_id", "abc"),
			backend.ILike("role", "a,b"),
		},
	})
	assert.Equal(t, `(user_id.ilike.*abc*,role.ilike."*a,b*")`, params.Get("or"))
}

func TestEncodeFilter_Null(t *testing.T) {
	assert.Equal(t, "is.null", encodeFilter(backend.Filter{Column: "x", Op: backend.OpEq}))
	assert.Equal(t, "not.is.null", encodeFilter(backend.Filter{Column: "x", Op: backend.OpNeq}))
	assert.Equal(t, "gte.2024-05-01T00:00:00Z", encodeFilter(backend.Filter{
		Column: "created_at",
		Op:     backend.OpGte,
		Value:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-24/100")
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	_, err = parseContentRange("0-24/*")
	assert.Error(t, err)
	_, err = parseContentRange("")
	assert.Error(t, err)
}

func TestStorage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/storage/v1/object/list/"):
			writeJSON(w, http.StatusOK, []map[string]any{
				{"name": "a.mp3", "id": "1", "updated_at": "2024-05-01T10:00:00Z", "metadata": map[string]any{"size": 1024, "mimetype": "audio/mpeg"}},
				{"name": "sub", "id": nil, "metadata": nil},
			})
		case r.Method == http.MethodPost:
			assert.Equal(t, "/storage/v1/object/entertainment_media/media/a b.mp3", r.URL.Path)
			assert.Equal(t, "max-age=3600", r.Header.Get("Cache-Control"))
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "data", string(body))
			writeJSON(w, http.StatusOK, map[string]string{"Key": "entertainment_media/media/a b.mp3"})
		case r.Method == http.MethodDelete:
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"media/a b.mp3"}, body["prefixes"])
			writeJSON(w, http.StatusOK, []any{})
		}
	})
	ctx := context.Background()

	path, err := c.Upload(ctx, "entertainment_media", "media/a b.mp3", strings.NewReader("data"), backend.UploadOptions{
		ContentType:  "audio/mpeg",
		CacheControl: "3600",
		Upsert:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "media/a b.mp3", path)

	objs, err := c.List(ctx, "entertainment_media", "media", backend.ListOptions{})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(1024), objs[0].Size)

	require.NoError(t, c.Remove(ctx, "entertainment_media", []string{"media/a b.mp3"}))

	assert.True(t, strings.HasSuffix(c.PublicURL("entertainment_media", "covers/x y.png"),
		"/storage/v1/object/public/entertainment_media/covers/x%20y.png"))
}

func newServiceClient(t *testing.T, h http.HandlerFunc) (*Client, *backend.MemorySessionStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sessions := backend.NewMemorySessionStore()
	c, err := New(Options{URL: srv.URL, AnonKey: testAnonKey, ServiceRoleKey: "service", Sessions: sessions})
	require.NoError(t, err)
	return c, sessions
}

func TestFindIdentity_PagesUntilFound(t *testing.T) {
	var pages []string
	c, _ := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		users := make([]map[string]string, 0, identityPageSize)
		if page == "1" {
			for i := 0; i < identityPageSize; i++ {
				users = append(users, map[string]string{"id": "filler", "email": "filler@example.com"})
			}
		} else {
			users = append(users, map[string]string{"id": "u2", "email": "Doc@Example.com"})
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	})

	ident, err := c.FindIdentity(context.Background(), "doc@example.com")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, "u2", ident.UserID)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestFindIdentity_Absent(t *testing.T) {
	c, _ := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"users": []any{}})
	})
	ident, err := c.FindIdentity(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, ident)
}

func TestCreateIdentity_ConfirmsWithoutSession(t *testing.T) {
	c, sessions := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "service", r.Header.Get("apikey"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "doc@example.com", body["email"])
		assert.Equal(t, true, body["email_confirm"])
		assert.Equal(t, map[string]any{"user_type": "doctor"}, body["user_metadata"])
		writeJSON(w, http.StatusOK, map[string]string{"id": "u9", "email": "doc@example.com"})
	})

	ident, err := c.CreateIdentity(context.Background(), "doc@example.com", "secret1", map[string]any{"user_type": "doctor"})
	require.NoError(t, err)
	assert.Equal(t, "u9", ident.UserID)

	stored, err := sessions.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestIdentityAdmin_RequiresServiceKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.FindIdentity(context.Background(), "doc@example.com")
	assert.ErrorIs(t, err, backend.ErrServiceKeyRequired)
	_, err = c.CreateIdentity(context.Background(), "doc@example.com", "secret1", nil)
	assert.ErrorIs(t, err, backend.ErrServiceKeyRequired)
}
