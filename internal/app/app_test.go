package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segregate/internal/app/apptest"
	"github.com/iliyamo/segregate/internal/policy"
)

type result struct {
	Status int
	Header http.Header
	Body   []byte
	Env    struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Details []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"details"`
		} `json:"error"`
	}
	Cookies []*http.Cookie
}

func (r result) code() string {
	if r.Env.Error == nil {
		return ""
	}
	return r.Env.Error.Code
}

func (r result) data(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Env.Data, v), string(r.Body))
}

type call struct {
	method string
	path   string
	auth   string
	body   any
	cookie *http.Cookie
	header map[string]string
}

func do(t *testing.T, env *apptest.Env, c call) result {
	t.Helper()
	var rd io.Reader
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(c.method, env.Server.URL+c.path, rd)
	require.NoError(t, err)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	res, err := env.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	out := result{Status: res.StatusCode, Header: res.Header, Body: body, Cookies: res.Cookies()}
	if len(body) > 0 && strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(body, &out.Env), string(body))
	}
	return out
}

func refreshCookie(r result) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

type userData struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sessionData struct {
	AccessToken string   `json:"accessToken"`
	User        userData `json:"user"`
}

func TestSignupThenLogin(t *testing.T) {
	env := apptest.New(t)

	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"name": "Bob", "email": "bob@x.com", "password": "longenough1"}})
	require.Equal(t, http.StatusCreated, res.Status, string(res.Body))
	var created userData
	res.data(t, &created)
	assert.Equal(t, "user", created.Role)
	assert.NotContains(t, string(res.Body), "password")
	assert.Nil(t, refreshCookie(res), "signup must not start a session")

	res = do(t, env, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "bob@x.com", "password": "longenough1"}})
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))
	var s sessionData
	res.data(t, &s)
	assert.NotEmpty(t, s.AccessToken)
	assert.Equal(t, "Bob", s.User.Name)

	setCookie := strings.Join(res.Header.Values("Set-Cookie"), "\n")
	assert.Contains(t, setCookie, "refreshToken=")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Strict")
	assert.Contains(t, setCookie, "Path=/")
	assert.Contains(t, setCookie, "Max-Age=604800")
	assert.NotContains(t, setCookie, "Secure", "cookie is Secure only in production")

	me := do(t, env, call{method: http.MethodGet, path: "/api/users/me", auth: "Bearer " + s.AccessToken})
	require.Equal(t, http.StatusOK, me.Status)
	assert.Contains(t, string(me.Body), `"permissions":["read_user","create_report","read_report","update_report","view_own_reports"]`)
}

func TestSignupNeverGrantsPrivilegedRole(t *testing.T) {
	env := apptest.New(t)

	for _, role := range []string{"admin", "volunteer", "superuser"} {
		email := role + "@x.com"
		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
			body: map[string]string{"name": "Eve", "email": email, "password": "longenough1", "role": role}})
		require.Equal(t, http.StatusCreated, res.Status, string(res.Body))

		u, err := env.Users.GetByEmail(context.Background(), email)
		require.NoError(t, err)
		assert.Equal(t, policy.RoleUser, u.Role)
	}
}

func TestSignupValidation(t *testing.T) {
	env := apptest.New(t)

	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"name": "B", "email": "not-an-email", "password": "short"}})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "VALIDATION_ERROR", res.code())
	assert.Equal(t, "Validation failed", res.Env.Message)

	fields := map[string]string{}
	for _, d := range res.Env.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Invalid email address", fields["email"])
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "password")

	res = do(t, env, call{method: http.MethodPost, path: "/api/auth/signup", body: "{broken"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "VALIDATION_ERROR", res.code())
}

func TestDuplicateSignup(t *testing.T) {
	env := apptest.New(t)
	env.CreateUser(t, "Bob", "bob@x.com", "longenough1", policy.RoleUser)

	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"name": "Bob", "email": "  BOB@x.com ", "password": "longenough1"}})
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, "EMAIL_ALREADY_EXISTS", res.code())
	assert.Equal(t, "User with this email already exists", res.Env.Message)
}

func TestConcurrentSignupsOneWins(t *testing.T) {
	env := apptest.New(t)

	const n = 8
	statuses := make([]int, n)
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
				body: map[string]string{"name": "Racer", "email": "race@x.com", "password": "longenough1"}})
			statuses[i], codes[i] = res.Status, res.code()
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range statuses {
		if statuses[i] == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, statuses[i])
		assert.Equal(t, "EMAIL_ALREADY_EXISTS", codes[i])
	}
	assert.Equal(t, 1, created)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := apptest.New(t)
	env.CreateUser(t, "Bob", "bob@x.com", "longenough1", policy.RoleUser)

	unknown := do(t, env, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "nobody@x.com", "password": "longenough1"}})
	wrong := do(t, env, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "bob@x.com", "password": "wrong-password"}})

	assert.Equal(t, http.StatusUnauthorized, unknown.Status)
	assert.Equal(t, unknown.Status, wrong.Status)
	assert.Equal(t, string(unknown.Body), string(wrong.Body))
	assert.Equal(t, "INVALID_CREDENTIALS", unknown.code())
	assert.Equal(t, "Invalid email or password", unknown.Env.Message)
}

func TestRefresh(t *testing.T) {
	env := apptest.New(t)
	bob := env.CreateUser(t, "Bob", "bob@x.com", "longenough1", policy.RoleUser)

	t.Run("no cookie", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/refresh"})
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Equal(t, "REFRESH_TOKEN_MISSING", res.code())
		assert.Equal(t, "Refresh token not found. Please log in again.", res.Env.Message)
	})

	t.Run("garbage cookie", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/refresh",
			cookie: &http.Cookie{Name: "refreshToken", Value: "garbage"}})
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Equal(t, "REFRESH_TOKEN_INVALID", res.code())
	})

	t.Run("access token in the cookie", func(t *testing.T) {
		access := strings.TrimPrefix(env.Bearer(t, bob), "Bearer ")
		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/refresh",
			cookie: &http.Cookie{Name: "refreshToken", Value: access}})
		assert.Equal(t, "REFRESH_TOKEN_INVALID", res.code())
	})

	login := do(t, env, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "bob@x.com", "password": "longenough1"}})
	rc := refreshCookie(login)
	require.NotNil(t, rc)

	t.Run("refresh token as bearer", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/users/me", auth: "Bearer " + rc.Value})
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Equal(t, "INVALID_TOKEN", res.code())
	})

	t.Run("picks up role changes", func(t *testing.T) {
		require.NoError(t, env.Users.UpdateRole(context.Background(), bob.ID, policy.RoleVolunteer))

		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/refresh", cookie: rc})
		require.Equal(t, http.StatusOK, res.Status, string(res.Body))
		var s sessionData
		res.data(t, &s)
		assert.Equal(t, "volunteer", s.User.Role)

		me := do(t, env, call{method: http.MethodGet, path: "/api/users/me", auth: "Bearer " + s.AccessToken})
		assert.Contains(t, string(me.Body), "verify_report")
	})

	t.Run("user gone", func(t *testing.T) {
		_, err := env.DB.Exec("DELETE FROM users WHERE id=?", bob.ID)
		require.NoError(t, err)

		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/refresh", cookie: rc})
		assert.Equal(t, http.StatusNotFound, res.Status)
		assert.Equal(t, "USER_NOT_FOUND", res.code())
	})
}

func TestLogoutExpiresCookie(t *testing.T) {
	env := apptest.New(t)

	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/logout"})
	require.Equal(t, http.StatusOK, res.Status)
	rc := refreshCookie(res)
	require.NotNil(t, rc)
	assert.Empty(t, rc.Value)
	assert.True(t, rc.MaxAge < 0)
	assert.True(t, rc.HttpOnly)
}

func TestGateOnRealRoutes(t *testing.T) {
	env := apptest.New(t)
	vol := env.CreateUser(t, "Val", "val@x.com", "longenough1", policy.RoleVolunteer)

	res := do(t, env, call{method: http.MethodGet, path: "/api/admin/users", auth: env.Bearer(t, vol)})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "ADMIN_ACCESS_REQUIRED", res.code())

	res = do(t, env, call{method: http.MethodGet, path: "/api/reports", auth: "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "INVALID_TOKEN", res.code())

	res = do(t, env, call{method: http.MethodGet, path: "/api/reports"})
	assert.Equal(t, "MISSING_TOKEN", res.code())

	res = do(t, env, call{method: http.MethodGet, path: "/api/stats", header: map[string]string{"Origin": apptest.Origin}})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, apptest.Origin, res.Header.Get("Access-Control-Allow-Origin"))

	res = do(t, env, call{method: http.MethodOptions, path: "/api/reports", header: map[string]string{
		"Origin": apptest.Origin, "Access-Control-Request-Method": "POST",
	}})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	env := apptest.New(t)
	res := do(t, env, call{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.False(t, res.Env.Success)
	assert.Equal(t, "NOT_FOUND", res.code())
}

func TestSecurityHeaders(t *testing.T) {
	env := apptest.New(t)
	res := do(t, env, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", res.Header.Get("Referrer-Policy"))
	assert.NotEmpty(t, res.Header.Get("Permissions-Policy"))
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := apptest.New(t)
	do(t, env, call{method: http.MethodGet, path: "/api/reports"})

	res := do(t, env, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Body), `segregate_gate_decisions_total{outcome="missing_token"} 1`)
	assert.Contains(t, string(res.Body), "segregate_http_requests_total")
}

func TestLoginIsRateLimited(t *testing.T) {
	env := apptest.New(t, apptest.WithRateLimit(2))
	body := map[string]string{"email": "x@x.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		res := do(t, env, call{method: http.MethodPost, path: "/api/auth/login", body: body})
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Equal(t, "2", res.Header.Get("X-RateLimit-Limit"))
	}
	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/login", body: body})
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "RATE_LIMITED", res.code())
	assert.NotEmpty(t, res.Header.Get("Retry-After"))
}

func TestInternalErrorsAreRedactedInProduction(t *testing.T) {
	env := apptest.New(t, apptest.WithProduction())
	u := env.CreateUser(t, "Bob", "bob@x.com", "longenough1", policy.RoleUser)

	res := do(t, env, call{method: http.MethodPost, path: "/api/upload", auth: env.Bearer(t, u),
		body: map[string]any{"filename": "a.jpg", "mimeType": "image/jpeg", "size": 10}})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "INTERNAL_ERROR", res.code())
	assert.Equal(t, "Something went wrong. Please try again later.", res.Env.Message)
	assert.NotContains(t, string(res.Body), "S3")
}
