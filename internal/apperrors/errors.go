// Package apperrors defines the error taxonomy shared by services and the HTTP layer.
package apperrors

import "errors"

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation was attempted against an entity
	// whose lifecycle status does not permit it.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict indicates the operation collides with an existing entity,
	// e.g. a second draft for a pathway that already has one.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates the input failed structural or semantic checks.
	ErrValidation = errors.New("validation error")

	// ErrExternalUnavailable indicates a dependent provider (LLM, market
	// feed, repository host) failed or timed out.
	ErrExternalUnavailable = errors.New("external provider unavailable")

	// ErrRateLimited indicates the caller exceeded a request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates valid credentials without sufficient role.
	ErrForbidden = errors.New("forbidden")
)
