// Package http provides HTTP handlers for account signup, login and
// session introspection.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akorchagin/stash/internal/middleware"
	"github.com/akorchagin/stash/internal/models"
	"github.com/akorchagin/stash/internal/service"
)

// AuthService defines the interface for authentication operations
// required by the HTTP handlers.
type AuthService interface {
	// Signup registers a new account and issues a session for it.
	Signup(ctx context.Context, email, password string) (*models.User, *models.Session, error)
	// Login verifies credentials and issues a session.
	Login(ctx context.Context, email, password string) (*models.User, *models.Session, error)
	// Logout revokes a token server-side.
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles HTTP requests for signup, login and logout.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
}

// CredentialsRequest represents the JSON payload for signup and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is the success body for signup and login: the opaque
// token plus the user it belongs to.
type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Signup handles POST /auth/signup.
// It expects a JSON body with "email" and "password". Malformed input and
// duplicate accounts come back as inline error messages, not server errors.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, sess, err := h.AuthService.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{Token: sess.Token, User: *user})
}

// Login handles POST /auth/login.
// Bad credentials yield 401 with an inline message; the client treats this
// as a user-facing validation failure, not a session invalidation (it has
// no stored credential yet on this path).
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, sess, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, User: *user})
}

// Me handles GET /auth/me. The token middleware has already resolved the
// user; reaching this handler means the token is valid.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.User{"user": *user})
}

// Logout handles POST /auth/logout, revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerFromRequest(r)
	if err := h.AuthService.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError maps service errors onto the status codes the client
// contract distinguishes: 400 malformed, 401 bad credentials, 409 duplicate.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerFromRequest(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
