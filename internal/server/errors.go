// Package server provides the HTTP REST API for the readiness engine.
package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

// HTTPStatus maps taxonomy errors to status codes. Unknown errors are
// internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrExternalUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

// serviceError writes an error response at the status its taxonomy
// wrapping implies, hiding internal detail on 500s.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("internal error", "error", err)
		message = "internal server error"
	}
	s.errorResponse(w, status, message)
}
