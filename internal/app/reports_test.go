package app_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segregate/internal/app/apptest"
	"github.com/iliyamo/segregate/internal/policy"
)

type reportData struct {
	ID         uint64  `json:"id"`
	UserID     uint64  `json:"userId"`
	Location   string  `json:"location"`
	Status     string  `json:"status"`
	ReviewedBy *uint64 `json:"reviewedBy"`
	ReviewNote string  `json:"reviewNote"`
}

type reportList struct {
	Items      []reportData `json:"items"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

func createReport(t *testing.T, env *apptest.Env, auth, location string) reportData {
	t.Helper()
	res := do(t, env, call{method: http.MethodPost, path: "/api/reports", auth: auth,
		body: map[string]any{"location": location, "segregationQuality": "good", "userId": 999}})
	require.Equal(t, http.StatusCreated, res.Status, string(res.Body))
	var r reportData
	res.data(t, &r)
	return r
}

func TestReportOwnership(t *testing.T) {
	env := apptest.New(t)
	alice := env.CreateUser(t, "Alice", "alice@x.com", "longenough1", policy.RoleUser)
	bob := env.CreateUser(t, "Bob", "bob@x.com", "longenough1", policy.RoleUser)
	vol := env.CreateUser(t, "Val", "val@x.com", "longenough1", policy.RoleVolunteer)

	ra := createReport(t, env, env.Bearer(t, alice), "12 Elm Street")
	createReport(t, env, env.Bearer(t, bob), "7 Oak Avenue")

	assert.Equal(t, alice.ID, ra.UserID, "owner comes from the token, not the body")
	assert.Equal(t, "pending", ra.Status)

	t.Run("users list only their own", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/reports", auth: env.Bearer(t, alice)})
		require.Equal(t, http.StatusOK, res.Status)
		var l reportList
		res.data(t, &l)
		require.Len(t, l.Items, 1)
		assert.Equal(t, ra.ID, l.Items[0].ID)
		assert.Equal(t, 1, l.Pagination.Total)
	})

	t.Run("volunteers list everything", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/reports?status=pending", auth: env.Bearer(t, vol)})
		var l reportList
		res.data(t, &l)
		assert.Len(t, l.Items, 2)
	})

	t.Run("other households' reports look missing", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: fmt.Sprintf("/api/reports/%d", ra.ID), auth: env.Bearer(t, bob)})
		assert.Equal(t, http.StatusNotFound, res.Status)
		assert.Equal(t, "Report not found", res.Env.Message)

		res = do(t, env, call{method: http.MethodPut, path: fmt.Sprintf("/api/reports/%d", ra.ID), auth: env.Bearer(t, bob),
			body: map[string]any{"location": "hijacked"}})
		assert.Equal(t, http.StatusNotFound, res.Status)
	})

	t.Run("bad id and bad status", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/reports/abc", auth: env.Bearer(t, alice)})
		assert.Equal(t, "VALIDATION_ERROR", res.code())
		res = do(t, env, call{method: http.MethodGet, path: "/api/reports?status=lost", auth: env.Bearer(t, alice)})
		assert.Equal(t, "VALIDATION_ERROR", res.code())
	})
}

func TestReportReviewFlow(t *testing.T) {
	env := apptest.New(t)
	alice := env.CreateUser(t, "Alice", "alice@x.com", "longenough1", policy.RoleUser)
	vol := env.CreateUser(t, "Val", "val@x.com", "longenough1", policy.RoleVolunteer)
	admin := env.CreateUser(t, "Ada", "ada@x.com", "longenough1", policy.RoleAdmin)

	r := createReport(t, env, env.Bearer(t, alice), "12 Elm Street")
	path := fmt.Sprintf("/api/reports/%d", r.ID)

	res := do(t, env, call{method: http.MethodPut, path: path, auth: env.Bearer(t, alice),
		body: map[string]any{"description": "two bins, well sorted"}})
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))

	res = do(t, env, call{method: http.MethodPut, path: path, auth: env.Bearer(t, alice), body: map[string]any{}})
	assert.Equal(t, "VALIDATION_ERROR", res.code())

	res = do(t, env, call{method: http.MethodPost, path: path + "/verify", auth: env.Bearer(t, alice),
		body: map[string]any{"status": "approved"}})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "FORBIDDEN", res.code())

	res = do(t, env, call{method: http.MethodPost, path: path + "/verify", auth: env.Bearer(t, vol),
		body: map[string]any{"status": "maybe"}})
	assert.Equal(t, "VALIDATION_ERROR", res.code())

	res = do(t, env, call{method: http.MethodPost, path: path + "/verify", auth: env.Bearer(t, vol),
		body: map[string]any{"status": "approved", "note": "nicely done"}})
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))
	var reviewed reportData
	res.data(t, &reviewed)
	assert.Equal(t, "approved", reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, vol.ID, *reviewed.ReviewedBy)
	assert.Equal(t, "nicely done", reviewed.ReviewNote)

	res = do(t, env, call{method: http.MethodPut, path: path, auth: env.Bearer(t, alice),
		body: map[string]any{"description": "changed my mind"}})
	assert.Equal(t, http.StatusForbidden, res.Status, "reviewed reports are frozen for their owner")

	res = do(t, env, call{method: http.MethodDelete, path: path, auth: env.Bearer(t, vol)})
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = do(t, env, call{method: http.MethodDelete, path: path, auth: env.Bearer(t, admin)})
	assert.Equal(t, http.StatusOK, res.Status)

	res = do(t, env, call{method: http.MethodGet, path: path, auth: env.Bearer(t, admin)})
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestPublicStats(t *testing.T) {
	env := apptest.New(t)
	alice := env.CreateUser(t, "Alice", "alice@x.com", "longenough1", policy.RoleUser)
	createReport(t, env, env.Bearer(t, alice), "12 Elm Street")

	res := do(t, env, call{method: http.MethodGet, path: "/api/stats"})
	require.Equal(t, http.StatusOK, res.Status)
	var st struct {
		TotalReports    int            `json:"totalReports"`
		ReportsByStatus map[string]int `json:"reportsByStatus"`
	}
	res.data(t, &st)
	assert.Equal(t, 1, st.TotalReports)
	assert.Equal(t, 1, st.ReportsByStatus["pending"])
}

func TestAdminUserManagement(t *testing.T) {
	env := apptest.New(t)
	admin := env.CreateUser(t, "Ada", "ada@x.com", "longenough1", policy.RoleAdmin)
	alice := env.CreateUser(t, "Alice", "alice@x.com", "longenough1", policy.RoleUser)
	adminAuth := env.Bearer(t, admin)

	t.Run("create with role", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodPost, path: "/api/admin/users", auth: adminAuth,
			body: map[string]string{"name": "Vic", "email": "vic@x.com", "password": "longenough1", "role": "volunteer"}})
		require.Equal(t, http.StatusCreated, res.Status, string(res.Body))
		var u userData
		res.data(t, &u)
		assert.Equal(t, "volunteer", u.Role)
	})

	t.Run("list filtered by role", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/admin/users?role=user", auth: adminAuth})
		require.Equal(t, http.StatusOK, res.Status)
		var l struct {
			Items []userData `json:"items"`
		}
		res.data(t, &l)
		require.Len(t, l.Items, 1)
		assert.Equal(t, alice.ID, l.Items[0].ID)

		res = do(t, env, call{method: http.MethodGet, path: "/api/admin/users?role=root", auth: adminAuth})
		assert.Equal(t, "VALIDATION_ERROR", res.code())
	})

	t.Run("users read only themselves", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: fmt.Sprintf("/api/users/%d", admin.ID), auth: env.Bearer(t, alice)})
		assert.Equal(t, http.StatusForbidden, res.Status)
		res = do(t, env, call{method: http.MethodGet, path: fmt.Sprintf("/api/users/%d", alice.ID), auth: adminAuth})
		assert.Equal(t, http.StatusOK, res.Status)
	})

	t.Run("assign role", func(t *testing.T) {
		path := fmt.Sprintf("/api/admin/users/%d/role", alice.ID)
		res := do(t, env, call{method: http.MethodPatch, path: path, auth: adminAuth, body: map[string]string{"role": "volunteer"}})
		require.Equal(t, http.StatusOK, res.Status, string(res.Body))

		u, err := env.Users.GetByID(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.Equal(t, policy.RoleVolunteer, u.Role)

		res = do(t, env, call{method: http.MethodPatch, path: "/api/admin/users/4242/role", auth: adminAuth,
			body: map[string]string{"role": "user"}})
		assert.Equal(t, "USER_NOT_FOUND", res.code())
	})

	t.Run("stale admin token", func(t *testing.T) {
		stale := env.CreateUser(t, "Old", "old@x.com", "longenough1", policy.RoleAdmin)
		auth := env.Bearer(t, stale)
		require.NoError(t, env.Users.UpdateRole(context.Background(), stale.ID, policy.RoleUser))

		res := do(t, env, call{method: http.MethodPatch, path: fmt.Sprintf("/api/admin/users/%d/role", alice.ID), auth: auth,
			body: map[string]string{"role": "admin"}})
		assert.Equal(t, http.StatusForbidden, res.Status)
		assert.Equal(t, "ADMIN_ACCESS_REQUIRED", res.code())

		u, err := env.Users.GetByID(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.NotEqual(t, policy.RoleAdmin, u.Role)
	})

	t.Run("stats", func(t *testing.T) {
		res := do(t, env, call{method: http.MethodGet, path: "/api/admin/stats", auth: adminAuth})
		require.Equal(t, http.StatusOK, res.Status)
		assert.Contains(t, string(res.Body), `"usersByRole"`)
		assert.Contains(t, string(res.Body), `"totalReports":0`)
	})
}

func TestMarkupIsStrippedBeforeStorage(t *testing.T) {
	env := apptest.New(t)

	res := do(t, env, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"name": "<script>alert(1)</script><b>Ann</b>", "email": "ann@x.com", "password": "longenough1"}})
	require.Equal(t, http.StatusCreated, res.Status, string(res.Body))
	var u userData
	res.data(t, &u)
	assert.Equal(t, "Ann", u.Name)

	stored, err := env.Users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", stored.Name)

	auth := env.Bearer(t, stored)
	r := createReport(t, env, auth, `<script>alert("x")</script>12 Elm Street`)
	assert.Equal(t, "12 Elm Street", r.Location)

	res = do(t, env, call{method: http.MethodGet, path: fmt.Sprintf("/api/reports/%d", r.ID), auth: auth})
	require.Equal(t, http.StatusOK, res.Status)
	assert.NotContains(t, string(res.Body), "script")

	res = do(t, env, call{method: http.MethodPost, path: "/api/reports", auth: auth,
		body: map[string]any{"location": "<b></b><i></i>"}})
	assert.Equal(t, "VALIDATION_ERROR", res.code(), "a field that is only markup is empty")
}
