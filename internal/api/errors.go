package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"clinic-management-api/internal/auth"
	"clinic-management-api/internal/clinic"
	"clinic-management-api/internal/store"
)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// classify maps an error to a status and client-safe message. ok is false
// for unexpected failures.
func classify(err error) (code int, msg string, ok bool) {
	var ve clinic.ValidationError
	var he *echo.HTTPError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Resource not found", true
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusBadRequest, "Duplicate field value entered", true
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error(), true
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired", true
	case errors.Is(err, auth.ErrBadToken):
		return http.StatusUnauthorized, "Invalid token", true
	case errors.Is(err, clinic.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials", true
	case errors.Is(err, clinic.ErrSelfDelete):
		return http.StatusBadRequest, "Cannot delete your own account", true
	case errors.Is(err, clinic.ErrForbidden):
		return http.StatusForbidden, "Not authorized to perform this action", true
	case errors.As(err, &he):
		if m, isStr := he.Message.(string); isStr {
			return he.Code, m, he.Code < 500
		}
		return he.Code, http.StatusText(he.Code), he.Code < 500
	}
	return http.StatusInternalServerError, "Server Error", false
}

// ErrorHandler renders every error as {success:false, message}. In
// development unexpected errors also carry their text. Logging is left to
// the request logger.
func ErrorHandler(log zerolog.Logger, dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg, ok := classify(err)
		body := errorBody{Message: msg}
		if dev && !ok {
			body.Error = err.Error()
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}
