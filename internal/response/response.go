// Package response writes the JSON envelope shared by every endpoint and by
// the request gate.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the machine-readable part of a failure.
type ErrorBody struct {
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, message string, data any) error {
	return JSON(c, http.StatusOK, message, data)
}

// Created writes a 201 success envelope.
func Created(c echo.Context, message string, data any) error {
	return JSON(c, http.StatusCreated, message, data)
}

// JSON writes a success envelope with an explicit status.
func JSON(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Error writes err as an error envelope. When redact is set, internal errors
// carry only the generic message; otherwise the cause is shown to ease local
// debugging. The body contains nothing request-specific, so equal errors
// render byte-identical bodies.
func Error(c echo.Context, err error, redact bool) error {
	ae := Normalize(err)
	msg := ae.Message
	if ae.Kind == apperr.KindInternal && !redact && ae.Err != nil {
		msg = ae.Err.Error()
	}
	body := Envelope{
		Success: false,
		Message: msg,
		Error:   &ErrorBody{Code: ae.Code, Details: ae.Fields},
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(ae.Status())
	}
	return c.JSON(ae.Status(), body)
}

// Normalize maps any error, including echo's own HTTP errors, onto the
// closed taxonomy.
func Normalize(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return apperr.Internal(err)
	}
	switch he.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.NotFound("Route not found")
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return apperr.Validation("Invalid request body")
	case http.StatusRequestEntityTooLarge:
		return apperr.Validation("Request body too large")
	case http.StatusTooManyRequests:
		return apperr.RateLimited()
	case http.StatusUnauthorized:
		return apperr.MissingToken()
	case http.StatusForbidden:
		return apperr.Forbidden("")
	}
	return apperr.Internal(err)
}
