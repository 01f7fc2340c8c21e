package authclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the controller's session state.
type State int

const (
	Initializing State = iota
	Unauthenticated
	Authenticated
	Loading
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Loading:
		return "loading"
	}
	return "unknown"
}

// ErrBusy is returned when Login or Signup is called while another one is
// in flight.
var ErrBusy = errors.New("authclient: another auth request is in flight")

// ErrNotAuthenticated is returned by Do when there is no session.
var ErrNotAuthenticated = errors.New("authclient: not authenticated")

// Navigator is the page-routing collaborator.
type Navigator interface {
	Navigate(path string)
	CurrentPath() string
}

// Options tune the controller. Zero values take the defaults.
type Options struct {
	LoginPath      string
	DashboardPath  string
	ProtectedPages []string
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.DashboardPath == "" {
		o.DashboardPath = "/dashboard"
	}
	if o.ProtectedPages == nil {
		o.ProtectedPages = []string{"/dashboard", "/users", "/reports", "/profile"}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Controller owns the client session. The access token lives only in this
// struct; the refresh token only in the client's cookie jar.
//
// The route guard here is a navigation hint. The server's request gate is
// what actually refuses unauthorized calls.
type Controller struct {
	api  *Client
	nav  Navigator
	opts Options

	startOnce sync.Once
	refresh   singleflight.Group

	mu     sync.Mutex
	state  State
	user   *User
	token  string
	inAuth bool
}

// NewController returns a controller in the initializing state.
func NewController(api *Client, nav Navigator, opts Options) *Controller {
	return &Controller{api: api, nav: nav, opts: opts.withDefaults(), state: Initializing}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the signed-in user.
func (c *Controller) User() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

// Start performs the one silent refresh. Later calls do nothing. Refresh
// failures are not errors: they just mean there is no session.
func (c *Controller) Start(ctx context.Context) State {
	c.startOnce.Do(func() {
		s, err := c.api.Refresh(ctx)
		if err != nil {
			c.opts.Logger.Debug("silent refresh failed", zap.Error(err))
			c.settleUnauthenticated()
			return
		}
		c.setSession(s)
	})
	return c.State()
}

// Login authenticates and navigates to the dashboard. On failure the
// server's message is returned and the controller is unauthenticated.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	if err := c.begin(); err != nil {
		return err
	}
	s, err := c.api.Login(ctx, email, password)
	c.end()
	if err != nil {
		c.settleUnauthenticated()
		return err
	}
	c.setSession(s)
	c.nav.Navigate(c.opts.DashboardPath)
	return nil
}

// Signup registers an account. It never signs in: on success the caller is
// sent to the login page to confirm the credentials.
func (c *Controller) Signup(ctx context.Context, in SignupInput) (User, error) {
	if err := c.begin(); err != nil {
		return User{}, err
	}
	u, err := c.api.Signup(ctx, in)
	c.end()
	c.settleUnauthenticated()
	if err != nil {
		return User{}, err
	}
	c.nav.Navigate(c.opts.LoginPath)
	return u, nil
}

// Logout forgets the session, expires the refresh cookie and goes to the
// login page. The server is asked to expire the cookie too; that call is
// best effort.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.api.Logout(ctx); err != nil {
		c.opts.Logger.Debug("server logout failed", zap.Error(err))
	}
	c.api.ExpireRefreshCookie()

	c.mu.Lock()
	c.user, c.token = nil, ""
	c.state = Unauthenticated
	c.mu.Unlock()

	c.nav.Navigate(c.opts.LoginPath)
}

// Guard redirects to the login page when there is no session and the
// current page is protected. It reports whether it redirected.
func (c *Controller) Guard() bool {
	if c.State() != Unauthenticated {
		return false
	}
	path := c.nav.CurrentPath()
	for _, p := range c.opts.ProtectedPages {
		if strings.HasPrefix(path, p) {
			c.nav.Navigate(c.opts.LoginPath)
			return true
		}
	}
	return false
}

// Do calls the API with the access token. A 401 triggers one refresh and
// one retry; if the refresh fails the session is dropped. Concurrent calls
// that hit 401 together share a single refresh.
func (c *Controller) Do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == "" {
		return ErrNotAuthenticated
	}

	err := c.api.Do(ctx, method, path, tok, body, out)
	if !IsUnauthorized(err) {
		return err
	}

	c.mu.Lock()
	current := c.token
	c.mu.Unlock()
	switch current {
	case "":
		// Another call's refresh already failed and dropped the session.
		return err
	case tok:
		var rerr error
		current, rerr = c.refreshSession(ctx)
		if rerr != nil {
			return err
		}
	}
	return c.api.Do(ctx, method, path, current, body, out)
}

// refreshSession exchanges the refresh cookie for a new access token. The
// first caller's ctx bounds a refresh that others join.
func (c *Controller) refreshSession(ctx context.Context) (string, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		s, err := c.api.Refresh(ctx)
		if err != nil {
			c.opts.Logger.Debug("refresh failed, dropping session", zap.Error(err))
			c.settleUnauthenticated()
			return "", err
		}
		c.setSession(s)
		return s.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inAuth {
		return ErrBusy
	}
	c.inAuth = true
	c.state = Loading
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inAuth = false
	c.mu.Unlock()
}

func (c *Controller) setSession(s Session) {
	u := s.User
	c.mu.Lock()
	c.user, c.token = &u, s.AccessToken
	c.state = Authenticated
	c.mu.Unlock()
}

// settleUnauthenticated clears the session and runs the guard.
func (c *Controller) settleUnauthenticated() {
	c.mu.Lock()
	c.user, c.token = nil, ""
	c.state = Unauthenticated
	c.mu.Unlock()
	c.Guard()
}
