package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segregate/internal/apperr"
)

func render(t *testing.T, method string, err error, redact bool) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(method, "/", nil), rec)
	require.NoError(t, Error(c, err, redact))
	return rec
}

func TestErrorEnvelope(t *testing.T) {
	rec := render(t, http.MethodGet, apperr.Validation("", apperr.FieldError{Field: "email", Message: "Invalid email address"}), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Validation failed","error":{"code":"VALIDATION_ERROR","details":[{"field":"email","message":"Invalid email address"}]}}`, rec.Body.String())
}

func TestInternalErrorRedaction(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.3:3306: connection refused")

	rec := render(t, http.MethodGet, cause, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	assert.Contains(t, rec.Body.String(), "Something went wrong")

	rec = render(t, http.MethodGet, cause, false)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestEqualErrorsRenderIdentically(t *testing.T) {
	a := render(t, http.MethodPost, apperr.InvalidCredentials(), true)
	b := render(t, http.MethodPost, apperr.InvalidCredentials(), true)
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestHeadHasNoBody(t *testing.T) {
	rec := render(t, http.MethodHead, apperr.NotFound(""), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestNormalizeEchoErrors(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusNotFound, apperr.CodeNotFound},
		{http.StatusMethodNotAllowed, apperr.CodeNotFound},
		{http.StatusBadRequest, apperr.CodeValidation},
		{http.StatusRequestEntityTooLarge, apperr.CodeValidation},
		{http.StatusTooManyRequests, apperr.CodeRateLimited},
		{http.StatusUnauthorized, apperr.CodeMissingToken},
		{http.StatusForbidden, apperr.CodeForbidden},
		{http.StatusTeapot, apperr.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(echo.NewHTTPError(tt.code)).Code)
		})
	}
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, Created(c, "Report created successfully", map[string]int{"id": 7}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Report created successfully","data":{"id":7}}`, rec.Body.String())
}
