package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mavbridge/internal/auth"
)

const testJWTSecret = "api-test-secret-api-test-secret-0123"

var (
	authHashOnce sync.Once
	authHash     string
)

// testAuthenticator returns an authenticator with an operator "pilot" and a
// viewer "watcher", both with password "s3cret".
func testAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authHashOnce.Do(func() {
		h, err := auth.HashPassword("s3cret")
		require.NoError(t, err)
		authHash = h
	})

	a, err := auth.NewAuthenticator(testJWTSecret, 5*time.Minute, []auth.Account{
		{Username: "pilot", PasswordHash: authHash, Role: auth.RoleOperator},
		{Username: "watcher", PasswordHash: authHash, Role: auth.RoleViewer},
	})
	require.NoError(t, err)
	return a
}

func authedServer(t *testing.T) (*Server, *fakeController, *httptest.Server) {
	t.Helper()
	a := testAuthenticator(t)
	return testServer(t, func(d *Deps) { d.Auth = a })
}

func login(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	var resp loginResponse
	r := do(t, ts, http.MethodPost, "/api/v1/auth/login",
		`{"username":"`+username+`","password":"s3cret"}`, &resp)
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func doAuth(t *testing.T, ts *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// =============================================================================
// Auth disabled
// =============================================================================

func TestAuthDisabled_RoutesOpen(t *testing.T) {
	_, _, ts := testServer(t)

	resp := doAuth(t, ts, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doAuth(t, ts, http.MethodPost, "/api/v1/listener/toggle", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabled_LoginNotFound(t *testing.T) {
	_, _, ts := testServer(t)

	var e Error
	resp := do(t, ts, http.MethodPost, "/api/v1/auth/login", `{"username":"a","password":"b"}`, &e)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, e.Code)
}

func TestAuthDisabled_WhoAmI(t *testing.T) {
	_, _, ts := testServer(t)

	var id identityResponse
	resp := do(t, ts, http.MethodGet, "/api/v1/auth/me", "", &id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, id.AuthEnabled)
}

// =============================================================================
// Auth enabled
// =============================================================================

func TestAuth_PublicRoutes(t *testing.T) {
	_, _, ts := authedServer(t)

	resp := doAuth(t, ts, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	_, _, ts := authedServer(t)

	resp := doAuth(t, ts, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp = doAuth(t, ts, http.MethodGet, "/api/v1/status", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := auth.IssueToken(auth.Account{Username: "pilot", Role: auth.RoleOperator},
		"some-other-secret-some-other-secret", time.Minute)
	require.NoError(t, err)
	resp = doAuth(t, ts, http.MethodGet, "/api/v1/status", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_LoginRejected(t *testing.T) {
	_, _, ts := authedServer(t)

	var e Error
	resp := do(t, ts, http.MethodPost, "/api/v1/auth/login", `{"username":"pilot","password":"wrong"}`, &e)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrCodeUnauthorized, e.Code)

	resp = do(t, ts, http.MethodPost, "/api/v1/auth/login", `{"username":"pilot"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/v1/auth/login", `{"user":"pilot"}`, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_LoginResponse(t *testing.T) {
	_, _, ts := authedServer(t)

	var lr loginResponse
	resp := do(t, ts, http.MethodPost, "/api/v1/auth/login", `{"username":"watcher","password":"s3cret"}`, &lr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer", lr.TokenType)
	assert.Equal(t, 300, lr.ExpiresIn)
	assert.Equal(t, auth.RoleViewer, lr.Role)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), lr.ExpiresAt, 5*time.Second)
}

func TestAuth_ViewerCannotControl(t *testing.T) {
	_, ctrl, ts := authedServer(t)
	token := login(t, ts, "watcher")

	for _, path := range []string{"/api/v1/status", "/api/v1/config", "/api/v1/messages", "/api/v1/activity"} {
		resp := doAuth(t, ts, http.MethodGet, path, token)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := doAuth(t, ts, http.MethodPost, "/api/v1/listener/toggle", token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doAuth(t, ts, http.MethodPost, "/api/v1/session/reset", token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, ctrl.resetCount())
}

func TestAuth_OperatorCanControl(t *testing.T) {
	_, ctrl, ts := authedServer(t)
	token := login(t, ts, "pilot")

	resp := doAuth(t, ts, http.MethodPost, "/api/v1/session/reset", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ctrl.resetCount())

	var id identityResponse
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "bearer "+token)
	r, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.NoError(t, json.NewDecoder(r.Body).Decode(&id))
	assert.True(t, id.AuthEnabled)
	assert.Equal(t, "pilot", id.Username)
	assert.Equal(t, auth.RoleOperator, id.Role)
	assert.Contains(t, id.Permissions, auth.PermControl)
	assert.NotNil(t, id.ExpiresAt)
}

func TestAuth_WebSocketToken(t *testing.T) {
	_, _, ts := authedServer(t)
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	token := login(t, ts, "watcher")
	ws, resp, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	ws.Close()
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"case insensitive scheme", "bearer abc", "", "abc"},
		{"wrong scheme", "Basic abc", "xyz", ""},
		{"query fallback", "", "xyz", "xyz"},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/x"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(r))
		})
	}
}
