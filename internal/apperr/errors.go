// Package apperr defines the closed set of error kinds the API can surface.
// Every failure leaving a handler or middleware is an *Error of one of these
// kinds; anything else is treated as Internal by the HTTP error handler.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failure. The set is closed: do not add kinds
// without adding a status mapping in Status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindMissingToken
	KindInvalidToken
	KindInsufficientRole
	KindNotFound
	KindConflict
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation",
	KindInvalidCredentials: "invalid_credentials",
	KindMissingToken:       "missing_token",
	KindInvalidToken:       "invalid_token",
	KindInsufficientRole:   "insufficient_role",
	KindNotFound:           "not_found",
	KindConflict:           "conflict",
	KindRateLimited:        "rate_limited",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindMissingToken, KindInvalidToken:
		return http.StatusUnauthorized
	case KindInsufficientRole:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Wire codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeAdminAccessRequired = "ADMIN_ACCESS_REQUIRED"
	CodeForbidden           = "FORBIDDEN"
	CodeRefreshMissing      = "REFRESH_TOKEN_MISSING"
	CodeRefreshInvalid      = "REFRESH_TOKEN_INVALID"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeEmailExists         = "EMAIL_ALREADY_EXISTS"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInvalidFileType     = "INVALID_FILE_TYPE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeInternal            = "INTERNAL_ERROR"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the only error shape rendered to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and code so sentinel-style comparisons work with
// errors.Is(err, apperr.InvalidToken()).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an underlying cause. The cause is logged, never rendered.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// From returns err as an *Error, converting anything foreign to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// KindOf reports the kind of err, Internal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

func Validation(message string, fields ...FieldError) *Error {
	if message == "" {
		message = "Validation failed"
	}
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Fields: fields}
}

// InvalidCredentials is deliberately identical for unknown email and wrong
// password.
func InvalidCredentials() *Error {
	return New(KindInvalidCredentials, CodeInvalidCredentials, "Invalid email or password")
}

func MissingToken() *Error {
	return New(KindMissingToken, CodeMissingToken, "Unauthorized: Missing authentication token")
}

// InvalidToken never says whether the token was expired, forged or malformed.
func InvalidToken() *Error {
	return New(KindInvalidToken, CodeInvalidToken, "Unauthorized: Invalid or expired token")
}

func AdminAccessRequired() *Error {
	return New(KindInsufficientRole, CodeAdminAccessRequired, "Forbidden: Admin access required")
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden: Insufficient permissions"
	}
	return New(KindInsufficientRole, CodeForbidden, message)
}

func RefreshMissing() *Error {
	return New(KindMissingToken, CodeRefreshMissing, "Refresh token not found. Please log in again.")
}

func RefreshInvalid() *Error {
	return New(KindInvalidToken, CodeRefreshInvalid, "Refresh token is invalid or expired")
}

func UserNotFound() *Error {
	return New(KindNotFound, CodeUserNotFound, "User not found")
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return New(KindNotFound, CodeNotFound, message)
}

func EmailExists() *Error {
	return New(KindConflict, CodeEmailExists, "User with this email already exists")
}

func RateLimited() *Error {
	return New(KindRateLimited, CodeRateLimited, "Rate limit exceeded")
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "Something went wrong. Please try again later.", Err: err}
}
