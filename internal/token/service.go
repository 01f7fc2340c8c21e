// Package token issues and verifies the signed access and refresh tokens.
//
// Access and refresh tokens are signed with distinct secrets and carry
// distinct audiences, so a token of one class never verifies as the other.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/policy"
)

const (
	issuer          = "segregate"
	audienceAccess  = "access"
	audienceRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalid is the only verification failure. Expired, forged and malformed
// tokens are indistinguishable to callers.
var ErrInvalid = errors.New("token: invalid or expired")

// Token is a signed token string and its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type accessClaims struct {
	UserID uint64 `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// refreshClaims deliberately omit email and role: the refresh path re-reads
// the current identity from the store.
type refreshClaims struct {
	UserID uint64 `json:"userId"`
	jwt.RegisteredClaims
}

// Options configures a Service. Secrets are required and must differ.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock; tests use it to step past expiry.
	Now func() time.Time
}

// Service mints and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.AccessSecret == "" || opts.RefreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if opts.AccessSecret == opts.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	s := &Service{
		accessSecret:  []byte(opts.AccessSecret),
		refreshSecret: []byte(opts.RefreshSecret),
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		now:           opts.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// AccessTTL is the lifetime of newly issued access tokens.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the lifetime of newly issued refresh tokens.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a token embedding the caller's id, email and role.
func (s *Service) IssueAccessToken(userID uint64, email string, role policy.Role) (Token, error) {
	if userID == 0 {
		return Token{}, errors.New("token: user id is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		UserID:           userID,
		Email:            email,
		Role:             string(role),
		RegisteredClaims: registered(userID, audienceAccess, now, exp),
	}
	return sign(claims, s.accessSecret, exp)
}

// IssueRefreshToken signs a token embedding only the user id.
func (s *Service) IssueRefreshToken(userID uint64) (Token, error) {
	if userID == 0 {
		return Token{}, errors.New("token: user id is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.refreshTTL)
	claims := refreshClaims{
		UserID:           userID,
		RegisteredClaims: registered(userID, audienceRefresh, now, exp),
	}
	return sign(claims, s.refreshSecret, exp)
}

// VerifyAccessToken returns the identity embedded in raw, or ErrInvalid.
func (s *Service) VerifyAccessToken(raw string) (identity.Identity, error) {
	var claims accessClaims
	if err := s.parse(raw, &claims, s.accessSecret, audienceAccess); err != nil {
		return identity.Identity{}, ErrInvalid
	}
	role := policy.Role(claims.Role)
	if claims.UserID == 0 || !role.Valid() || claims.Subject != strconv.FormatUint(claims.UserID, 10) {
		return identity.Identity{}, ErrInvalid
	}
	return identity.Identity{UserID: claims.UserID, Email: claims.Email, Role: role}, nil
}

// VerifyRefreshToken returns the user id embedded in raw, or ErrInvalid.
func (s *Service) VerifyRefreshToken(raw string) (uint64, error) {
	var claims refreshClaims
	if err := s.parse(raw, &claims, s.refreshSecret, audienceRefresh); err != nil {
		return 0, ErrInvalid
	}
	if claims.UserID == 0 || claims.Subject != strconv.FormatUint(claims.UserID, 10) {
		return 0, ErrInvalid
	}
	return claims.UserID, nil
}

func (s *Service) parse(raw string, claims jwt.Claims, secret []byte, audience string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

func registered(userID uint64, audience string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatUint(userID, 10),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func sign(claims jwt.Claims, secret []byte, exp time.Time) (Token, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}
	// NumericDate has second precision; report the expiry the token carries.
	return Token{Value: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}
