package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig is the cross-origin policy applied by the request gate. Origins
// are matched exactly; there is no wildcard and no fallback origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// DefaultCORSConfig returns the policy for the given origins.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch,
			http.MethodPost, http.MethodDelete,
		},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		ExposeHeaders:    []string{echo.HeaderXRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

type cors struct {
	origins      map[string]struct{}
	allowMethods string
	allowHeaders string
	expose       string
	credentials  bool
	maxAge       string
}

func newCORS(cfg CORSConfig) *cors {
	c := &cors{
		origins:      make(map[string]struct{}, len(cfg.AllowedOrigins)),
		allowMethods: strings.Join(cfg.AllowMethods, ","),
		allowHeaders: strings.Join(cfg.AllowHeaders, ","),
		expose:       strings.Join(cfg.ExposeHeaders, ","),
		credentials:  cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowedOrigins {
		c.origins[o] = struct{}{}
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return c
}

// allowed reports whether origin is on the allow-list.
func (c *cors) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := c.origins[origin]
	return ok
}

// apply writes the simple-request CORS headers when origin is allowed.
func (c *cors) apply(h http.Header, origin string) bool {
	h.Add(echo.HeaderVary, echo.HeaderOrigin)
	if !c.allowed(origin) {
		return false
	}
	h.Set(echo.HeaderAccessControlAllowOrigin, origin)
	if c.credentials {
		h.Set(echo.HeaderAccessControlAllowCredentials, "true")
	}
	if c.expose != "" {
		h.Set(echo.HeaderAccessControlExposeHeaders, c.expose)
	}
	return true
}

// applyPreflight writes the preflight headers when origin is allowed.
func (c *cors) applyPreflight(h http.Header, origin string) bool {
	h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestMethod)
	h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestHeaders)
	if !c.apply(h, origin) {
		return false
	}
	h.Set(echo.HeaderAccessControlAllowMethods, c.allowMethods)
	h.Set(echo.HeaderAccessControlAllowHeaders, c.allowHeaders)
	if c.maxAge != "" {
		h.Set(echo.HeaderAccessControlMaxAge, c.maxAge)
	}
	return true
}
