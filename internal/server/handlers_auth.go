package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
)

// registerRequest is the payload for POST /auth/register. Accounts always
// start as students; admins are created by the seed command.
type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User  *db.User `json:"user"`
	Token string   `json:"token"`
}

// handleRegister creates a student account and returns a token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	user, err := s.db.CreateUser(r.Context(), req.Username, strings.ToLower(req.Email), hash, db.RoleStudent)
	if err != nil {
		if isUniqueViolation(err) {
			s.serviceError(w, fmt.Errorf("username or email already taken: %w", apperrors.ErrConflict))
			return
		}
		s.serviceError(w, err)
		return
	}

	token, err := s.jwtService.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	s.jsonResponse(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// handleLogin verifies credentials and returns a token. Wrong username and
// wrong password produce the same response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	user, err := s.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if user == nil || !s.passwords.VerifyPassword(req.Password, user.PasswordHash) {
		s.errorResponse(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.db.TouchLastLogin(r.Context(), user.ID); err != nil {
		s.log.Warn("failed to record login", "error", err)
	}

	token, err := s.jwtService.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	s.jsonResponse(w, http.StatusOK, authResponse{User: user, Token: token})
}

// isUniqueViolation matches postgres unique constraint errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			ve := validationErrors[0]
			return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
		}
	}
	return "validation error: invalid request"
}
