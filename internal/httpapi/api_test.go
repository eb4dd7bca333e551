package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sandyq.org/internal/session"
	"sandyq.org/internal/vault"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	api   *API
	users *vault.UserService
	admin *vault.User
}

func newTestAPI(t *testing.T, limits Limits) *testAPI {
	t.Helper()
	mem := vault.NewMemory()
	users := vault.NewUserService(mem)
	categories := vault.NewCategoryService(mem, users)
	secrets := vault.NewSecretService(mem, users, categories)

	admin, err := users.Bootstrap(context.Background(), "root", "root-password")
	require.NoError(t, err)

	sessions, err := session.NewManager(testSecret, "test")
	require.NoError(t, err)

	api := New(users, categories, secrets, sessions, nil, nil, ReadyProbe{}, "test", limits)
	return &testAPI{api: api, users: users, admin: admin}
}

func (ta *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (ta *testAPI) login(t *testing.T, login, password string) string {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login":    login,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (ta *testAPI) createUser(t *testing.T, adminToken, login, level, password string) {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/v1/users/", adminToken, map[string]string{
		"login":        login,
		"access_level": level,
		"password":     password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLoginFlow(t *testing.T) {
	ta := newTestAPI(t, Limits{})

	token := ta.login(t, "root", "root-password")
	require.NotEmpty(t, token)

	rec := ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "root", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "nobody", "password": "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBannedLoginIsForbidden(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")
	ta.createUser(t, adminToken, "mallory", "normal", "mallory-pw")

	rec := ta.do(t, http.MethodPut, "/v1/users/mallory/access-level", adminToken,
		map[string]string{"access_level": "banned"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "mallory", "password": "mallory-pw",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Wrong password on a banned account still reads as bad credentials.
	rec = ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "mallory", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ta := newTestAPI(t, Limits{})

	rec := ta.do(t, http.MethodGet, "/v1/secrets/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(t, http.MethodGet, "/v1/secrets/", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserEndpoints(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")

	ta.createUser(t, adminToken, "alice", "normal", "alice-pw")

	// Duplicate login conflicts.
	rec := ta.do(t, http.MethodPost, "/v1/users/", adminToken, map[string]string{
		"login": "alice", "access_level": "normal", "password": "other",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Unknown access level never reaches the engine.
	rec = ta.do(t, http.MethodPost, "/v1/users/", adminToken, map[string]string{
		"login": "bob", "access_level": "superuser", "password": "pw",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Non-admins cannot create users.
	aliceToken := ta.login(t, "alice", "alice-pw")
	rec = ta.do(t, http.MethodPost, "/v1/users/", aliceToken, map[string]string{
		"login": "bob", "access_level": "normal", "password": "pw",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodGet, "/v1/users/alice", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var u vault.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&u))
	require.Equal(t, "alice", u.Login)

	rec = ta.do(t, http.MethodGet, "/v1/users/ghost", adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Password reset returns the generated password once.
	rec = ta.do(t, http.MethodPost, "/v1/users/alice/password-reset", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset passwordResetResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reset))
	require.NotEmpty(t, reset.Password)
	ta.login(t, "alice", reset.Password)
}

func TestCategoryEndpoints(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")

	rec := ta.do(t, http.MethodPost, "/v1/categories/", adminToken, map[string]string{"name": "infra"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ta.do(t, http.MethodPost, "/v1/categories/", adminToken, map[string]string{"name": "infra"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(t, http.MethodDelete, "/v1/categories/ghost", adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// A category referenced by a secret cannot be deleted.
	rec = ta.do(t, http.MethodPost, "/v1/secrets/", adminToken, vault.SecretInput{
		Name:       "db-prod",
		Visibility: vault.VisibilityConfidential,
		Fields:     map[string]string{"host": "db1"},
		Categories: []string{"infra"},
		Permissions: []vault.Grant{
			{Login: "root", Type: vault.PermissionOwner},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ta.do(t, http.MethodDelete, "/v1/categories/infra", adminToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSecretVisibilityOverHTTP(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")
	ta.createUser(t, adminToken, "owner", "normal", "owner-pw")
	ta.createUser(t, adminToken, "stranger", "normal", "stranger-pw")
	ownerToken := ta.login(t, "owner", "owner-pw")
	strangerToken := ta.login(t, "stranger", "stranger-pw")

	rec := ta.do(t, http.MethodPost, "/v1/secrets/", ownerToken, vault.SecretInput{
		Name:       "api-token",
		Visibility: vault.VisibilityConfidential,
		Fields:     map[string]string{"token": "t-123"},
		Permissions: []vault.Grant{
			{Login: "owner", Type: vault.PermissionOwner},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created vault.Secret
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	path := "/v1/secrets/" + strconv.FormatInt(int64(created.Key), 10)

	rec = ta.do(t, http.MethodGet, path, ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Confidential secrets do not exist for strangers.
	rec = ta.do(t, http.MethodGet, path, strangerToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Discoverable: the stranger sees the header, never the fields.
	rec = ta.do(t, http.MethodPut, path, ownerToken, vault.SecretInput{
		Name:       "api-token",
		Visibility: vault.VisibilityDiscoverable,
		Fields:     map[string]string{"token": "t-123"},
		Permissions: []vault.Grant{
			{Login: "owner", Type: vault.PermissionOwner},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ta.do(t, http.MethodGet, path, strangerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var redacted vault.Secret
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&redacted))
	require.Empty(t, redacted.Fields)
	require.Empty(t, redacted.Permissions)

	// Deleting someone else's secret is forbidden once it is visible.
	rec = ta.do(t, http.MethodDelete, path, strangerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearchNotImplemented(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")

	rec := ta.do(t, http.MethodGet, "/v1/secrets/search?q=db", adminToken, nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSecretKeyValidation(t *testing.T) {
	ta := newTestAPI(t, Limits{})
	adminToken := ta.login(t, "root", "root-password")

	rec := ta.do(t, http.MethodGet, "/v1/secrets/abc", adminToken, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ta.do(t, http.MethodGet, "/v1/secrets/12345", adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ta := newTestAPI(t, Limits{RequestsPerSecond: 1, Burst: 2})

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := ta.do(t, http.MethodGet, "/healthz", "", nil)
		codes[rec.Code]++
	}
	require.NotZero(t, codes[http.StatusTooManyRequests])
	require.NotZero(t, codes[http.StatusOK])
}

func TestLoginRateLimitIsStricter(t *testing.T) {
	ta := newTestAPI(t, Limits{RequestsPerSecond: 1000, Burst: 1000})

	limited := false
	for i := 0; i < 10; i++ {
		rec := ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"login": "root", "password": "wrong",
		})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.True(t, limited, "login endpoint should throttle before the global limit")
}

func TestBodyLimitReportsPayloadTooLarge(t *testing.T) {
	ta := newTestAPI(t, Limits{MaxBodyBytes: 64})

	rec := ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login":    "root",
		"password": strings.Repeat("x", 256),
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	// Small bodies still pass through the limiter untouched.
	ta.login(t, "root", "root-password")
}

func TestHealthAndInfo(t *testing.T) {
	ta := newTestAPI(t, Limits{})

	rec := ta.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(t, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
