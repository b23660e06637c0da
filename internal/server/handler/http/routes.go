// Package http provides HTTP routing and middleware configuration
// for the stash API.
package http

import (
	"net/http"

	"github.com/akorchagin/stash/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the stash
// API. It applies JSON content-type enforcement, request logging and
// bearer-token authentication, and mounts the auth and item endpoints.
//
// Routes:
//
//	POST /auth/signup       → authHandler.Signup
//	POST /auth/login        → authHandler.Login
//	POST /auth/logout       → authHandler.Logout   (token required)
//	GET  /auth/me           → authHandler.Me       (token required)
//	GET  /items             → itemsHandler.List    (token required)
//	POST /items             → itemsHandler.Create  (token required)
//	POST /items/import      → itemsHandler.Import  (token required)
//	PUT  /items/{id}        → itemsHandler.Update  (token required)
//	DELETE /items/{id}      → itemsHandler.Delete  (token required)
//
// Every protected endpoint answers 401 for a missing, unknown or expired
// token; clients treat that status as the session-invalidation signal.
func NewRouter(
	authHandler *AuthHandler,
	itemsHandler *ItemsHandler,
	validator middleware.TokenValidator,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))
	// Enforce bearer-token authentication (auth endpoints exempt)
	r.Use(middleware.TokenAuth(validator))

	r.Route("/auth", func(r chi.Router) {
		// Public endpoints
		r.With(chiMiddleware.AllowContentType("application/json")).
			Post("/signup", authHandler.Signup)
		r.With(chiMiddleware.AllowContentType("application/json")).
			Post("/login", authHandler.Login)

		// Protected
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", itemsHandler.List)
		r.Post("/", itemsHandler.Create)
		r.Post("/import", itemsHandler.Import)
		r.Put("/{id}", itemsHandler.Update)
		r.Delete("/{id}", itemsHandler.Delete)
	})

	return r
}
