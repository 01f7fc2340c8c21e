// Package authclient is the client side of the auth protocol: an API client
// whose cookie jar holds the refresh cookie, and a Controller that keeps the
// access token in memory and drives the session state machine.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// RefreshCookie is the server's refresh cookie name.
const RefreshCookie = "refreshToken"

// User is the identity returned by the auth endpoints.
type User struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is a successful login or refresh.
type Session struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        User      `json:"user"`
}

// SignupInput is the signup form. Role is sent as given; the server ignores it.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a failure reported by the server in the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return e.Message
}

// IsUnauthorized reports whether err is an HTTP 401 from the server.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string       `json:"code"`
		Details []FieldError `json:"details"`
	} `json:"error"`
}

// Client talks to the API. It is safe for concurrent use.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// NewClient returns a client for baseURL. If hc is nil, or has no cookie
// jar, a jar is attached so the refresh cookie survives between calls.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authclient: base url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	} else {
		cp := *hc
		hc = &cp
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	return &Client{base: u, hc: hc}, nil
}

// Login posts credentials. On success the server sets the refresh cookie.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.Do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password}, &s)
	return s, err
}

// Signup registers a user. It does not log in.
func (c *Client) Signup(ctx context.Context, in SignupInput) (User, error) {
	var u User
	err := c.Do(ctx, http.MethodPost, "/api/auth/signup", "", in, &u)
	return u, err
}

// Refresh exchanges the refresh cookie for a new access token.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	var s Session
	err := c.Do(ctx, http.MethodPost, "/api/auth/refresh", "", nil, &s)
	return s, err
}

// Logout asks the server to expire the refresh cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/logout", "", nil, nil)
}

// HasRefreshCookie reports whether the jar holds a refresh cookie for the
// API origin.
func (c *Client) HasRefreshCookie() bool {
	for _, ck := range c.hc.Jar.Cookies(c.base) {
		if ck.Name == RefreshCookie && ck.Value != "" {
			return true
		}
	}
	return false
}

// ExpireRefreshCookie drops the refresh cookie from the jar.
func (c *Client) ExpireRefreshCookie() {
	c.hc.Jar.SetCookies(c.base, []*http.Cookie{{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1}})
}

// Do sends a JSON request and decodes the data of a success envelope into
// out. An error envelope is returned as *APIError. accessToken, when set,
// is sent as a bearer token.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authclient: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if res.StatusCode >= 400 {
				return &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
			}
			return fmt.Errorf("authclient: decode response: %w", err)
		}
	}
	if res.StatusCode >= 400 || (len(raw) > 0 && !env.Success) {
		ae := &APIError{Status: res.StatusCode, Message: env.Message}
		if env.Error != nil {
			ae.Code, ae.Details = env.Error.Code, env.Error.Details
		}
		return ae
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("authclient: decode data: %w", err)
		}
	}
	return nil
}
