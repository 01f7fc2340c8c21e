// Package apptest builds a complete server on an embedded database for
// end-to-end tests.
package apptest

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/app"
	"github.com/iliyamo/segregate/internal/config"
	"github.com/iliyamo/segregate/internal/credential"
	"github.com/iliyamo/segregate/internal/database"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/service"
)

// Origin is the single allowed CORS origin.
const Origin = "http://localhost:3000"

// Env is a running test server.
type Env struct {
	App    *app.App
	DB     *sql.DB
	Users  *repository.UserRepo
	Server *httptest.Server
}

// Option adjusts the dependencies before the server is built.
type Option func(*app.Deps)

// WithRateLimit enables the in-process rate limiter with the given burst.
func WithRateLimit(capacity int) Option {
	return func(d *app.Deps) {
		d.RateLimit = config.RateLimitConfig{
			Enabled:        true,
			Capacity:       capacity,
			RefillTokens:   1,
			RefillInterval: time.Hour,
			TTL:            5 * time.Hour,
			KeyStrategy:    "ip_route",
			Prefix:         "test:rl",
		}
	}
}

// WithNotifier replaces the notifier.
func WithNotifier(n service.Notifier) Option {
	return func(d *app.Deps) { d.Notifier = n }
}

// WithProduction switches the environment to production.
func WithProduction() Option {
	return func(d *app.Deps) { d.Config.Env = "production" }
}

// Config is the configuration every test server starts from.
func Config(dbPath string) config.Config {
	return config.Config{
		Env:            "test",
		DBDriver:       "sqlite",
		SQLitePath:     dbPath,
		AccessSecret:   "test-access-secret-0123456789abcdef",
		RefreshSecret:  "test-refresh-secret-0123456789abcdef",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		BcryptCost:     4,
		AllowedOrigins: []string{Origin},
	}
}

// New starts a server on a fresh database. It is closed with the test.
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()
	cfg := Config(filepath.Join(t.TempDir(), "app.db"))
	db, dialect, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, dialect))

	d := app.Deps{Config: cfg, Logger: zap.NewNop(), DB: db, Notifier: service.Nop{}}
	for _, o := range opts {
		o(&d)
	}
	a, err := app.New(d)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Echo)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = a.Close() })
	return &Env{App: a, DB: db, Users: repository.NewUserRepo(db), Server: srv}
}

// CreateUser stores a credential directly, bypassing the signup rules.
func (e *Env) CreateUser(t testing.TB, name, email, password string, role policy.Role) model.User {
	t.Helper()
	gw, err := credential.NewGateway(e.Users, policy.Default(), 4)
	require.NoError(t, err)
	hash, err := gw.HashPassword(password)
	require.NoError(t, err)
	u, err := gw.CreateCredential(context.Background(), credential.NewCredential{Name: name, Email: email, PasswordHash: hash, Role: role})
	require.NoError(t, err)
	return u
}

// Bearer returns an Authorization value for a fresh access token.
func (e *Env) Bearer(t testing.TB, u model.User) string {
	t.Helper()
	tok, err := e.App.Tokens.IssueAccessToken(u.ID, u.Email, u.Role)
	require.NoError(t, err)
	return "Bearer " + tok.Value
}

// Client is an http.Client that does not follow redirects.
func (e *Env) Client() *http.Client {
	return &http.Client{
		Timeout:       10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}
