package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/policy"
)

// TokenVerifier verifies access tokens. *token.Service satisfies it.
type TokenVerifier interface {
	VerifyAccessToken(raw string) (identity.Identity, error)
}

// GateConfig wires the request gate.
type GateConfig struct {
	Policy   *policy.Policy
	Verifier TokenVerifier
	CORS     CORSConfig
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Gate is the per-request authentication and authorization boundary. It runs
// on every request before any handler:
//
//  1. OPTIONS preflight is answered here and never reaches a handler.
//  2. Paths outside the protected prefixes pass through without a token.
//  3. A Bearer token is required (401 MISSING_TOKEN).
//  4. The token must verify (401 INVALID_TOKEN).
//  5. Admin-only prefixes require role admin (403 ADMIN_ACCESS_REQUIRED).
//  6. The verified identity is attached to the request context and mirrored
//     into the trusted X-User-* headers.
//
// Client-supplied X-User-* headers are removed before any of this, so the
// only copies a handler can ever see are the gate's.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	cs := newCORS(cfg.CORS)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			stripIdentityHeaders(req.Header)
			origin := req.Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()

			if req.Method == http.MethodOptions {
				cfg.Metrics.gateDecision(OutcomePreflight)
				if cs.applyPreflight(h, origin) {
					return c.NoContent(http.StatusOK)
				}
				return c.NoContent(http.StatusNoContent)
			}

			// CORS headers ride on every outcome, failures included, so
			// browsers can read the error body.
			cs.apply(h, origin)

			if !isProtected(cfg.Policy, req) {
				cfg.Metrics.gateDecision(OutcomePublic)
				return next(c)
			}

			raw, ok := bearerToken(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				cfg.Metrics.gateDecision(OutcomeMissingToken)
				logger.Warn("gate: missing token", zap.String("path", req.URL.Path))
				return apperr.MissingToken()
			}

			id, err := cfg.Verifier.VerifyAccessToken(raw)
			if err != nil {
				cfg.Metrics.gateDecision(OutcomeInvalidToken)
				logger.Warn("gate: invalid token", zap.String("path", req.URL.Path))
				return apperr.InvalidToken()
			}

			if isAdmin(cfg.Policy, req) && id.Role != policy.RoleAdmin {
				cfg.Metrics.gateDecision(OutcomeAdminRequired)
				logger.Warn("gate: admin required",
					zap.String("path", req.URL.Path),
					zap.Uint64("user_id", id.UserID),
					zap.String("role", string(id.Role)))
				return apperr.AdminAccessRequired()
			}

			req.Header.Set(identity.HeaderUserID, id.IDString())
			req.Header.Set(identity.HeaderUserEmail, id.Email)
			req.Header.Set(identity.HeaderUserRole, string(id.Role))
			c.SetRequest(req.WithContext(identity.NewContext(req.Context(), id)))

			cfg.Metrics.gateDecision(OutcomeAllowed)
			return next(c)
		}
	}
}

func stripIdentityHeaders(h http.Header) {
	h.Del(identity.HeaderUserID)
	h.Del(identity.HeaderUserEmail)
	h.Del(identity.HeaderUserRole)
}

// isProtected classifies both the decoded and the raw path. Echo routes on
// the raw path, so an encoded segment must not slip past the prefix check.
func isProtected(p *policy.Policy, req *http.Request) bool {
	return p.IsProtectedRoute(req.URL.Path) || (req.URL.RawPath != "" && p.IsProtectedRoute(req.URL.RawPath))
}

func isAdmin(p *policy.Policy, req *http.Request) bool {
	return p.IsAdminRoute(req.URL.Path) || (req.URL.RawPath != "" && p.IsAdminRoute(req.URL.RawPath))
}

const bearerPrefix = "bearer "

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}
