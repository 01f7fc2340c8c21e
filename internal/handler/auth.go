package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/credential"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/queue"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/response"
	"github.com/iliyamo/segregate/internal/service"
	"github.com/iliyamo/segregate/internal/token"
)

// RefreshCookie is the name of the HTTP-only cookie holding the refresh token.
const RefreshCookie = "refreshToken"

// AuthHandler serves signup, login, refresh and logout.
type AuthHandler struct {
	Creds    *credential.Gateway
	Tokens   *token.Service
	Notifier service.Notifier
	Logger   *zap.Logger
	// SecureCookie marks the refresh cookie Secure. On in production.
	SecureCookie bool
}

func NewAuthHandler(creds *credential.Gateway, tokens *token.Service, n service.Notifier, logger *zap.Logger, secureCookie bool) *AuthHandler {
	if n == nil {
		n = service.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{Creds: creds, Tokens: tokens, Notifier: n, Logger: logger, SecureCookie: secureCookie}
}

type signupReq struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Role is read so the form can be passed through as-is. It never
	// influences the stored role.
	Role string `json:"role"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// session is the body of a successful login or refresh.
type session struct {
	AccessToken string           `json:"accessToken"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	User        model.PublicUser `json:"user"`
}

// Signup registers a user. The role is always user; signup does not log
// the caller in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Name = plainText(req.Name)
	req.Email = repository.NormalizeEmail(req.Email)
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.Creds.Register(c.Request().Context(), credential.Signup{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		RequestedRole: req.Role,
	})
	if err != nil {
		return err
	}

	h.Logger.Info("user registered", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	h.Notifier.Notify(queue.Event{Type: queue.UserRegistered, UserID: u.ID, Email: u.Email, Name: u.Name})
	return response.Created(c, "User registered successfully. Please log in.", u.Public())
}

// Login verifies credentials, returns an access token and sets the refresh
// cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = repository.NormalizeEmail(req.Email)
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.Creds.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	access, err := h.Tokens.IssueAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return apperr.Internal(err)
	}
	refresh, err := h.Tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return apperr.Internal(err)
	}

	c.SetCookie(h.refreshCookie(refresh.Value, int(h.Tokens.RefreshTTL()/time.Second)))
	h.Logger.Info("user logged in", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return response.OK(c, "Login successful", session{AccessToken: access.Value, ExpiresAt: access.ExpiresAt, User: u.Public()})
}

// Refresh mints a new access token from the refresh cookie. The refresh
// token itself is not rotated; it stays valid until it expires.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		return apperr.RefreshMissing()
	}
	userID, err := h.Tokens.VerifyRefreshToken(ck.Value)
	if err != nil {
		return apperr.RefreshInvalid()
	}

	// The role comes from the store, not the old token, so role changes take
	// effect at the next refresh.
	u, ok, err := h.Creds.FindByID(c.Request().Context(), userID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.UserNotFound()
	}

	access, err := h.Tokens.IssueAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, "Access token refreshed successfully", session{AccessToken: access.Value, ExpiresAt: access.ExpiresAt, User: u.Public()})
}

// Logout expires the refresh cookie. Client script cannot clear an
// HTTP-only cookie, so the server does it.
func (h *AuthHandler) Logout(c echo.Context) error {
	ck := h.refreshCookie("", -1)
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
	return response.OK(c, "Logged out", nil)
}

func (h *AuthHandler) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

// bind decodes the request body. Malformed bodies become a validation error
// rather than echo's plain 400.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
