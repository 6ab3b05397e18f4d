package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/handlers"
	"github.com/quicknotes/quicknotes/internal/middleware"
	"github.com/quicknotes/quicknotes/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	noteHandler *handlers.NoteHandler,
	userHandler *handlers.UserHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
) {
	authRateLimit := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required. Everything that accepts
	// credentials or redeems tokens is rate limited by IP.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authRateLimit))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Post("/auth/resend-verification", authHandler.ResendVerification)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/reset-password", authHandler.ResetPassword)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, userRepo))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/change-password", authHandler.ChangePassword)

		r.Post("/auth/2fa/setup", twoFactorHandler.Setup)
		r.Post("/auth/2fa/enable", twoFactorHandler.Enable)
		r.Post("/auth/2fa/disable", twoFactorHandler.Disable)

		r.Get("/users/me", userHandler.Me)
		r.Put("/users/me", userHandler.UpdateMe)

		// Notes require a verified email address
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireVerifiedEmail(userRepo))

			r.Get("/notes", noteHandler.List)
			r.Post("/notes", noteHandler.Create)
			r.Get("/notes/{id}", noteHandler.Get)
			r.Put("/notes/{id}", noteHandler.Update)
			r.Delete("/notes/{id}", noteHandler.Delete)
			r.Post("/notes/{id}/share", noteHandler.Share)
			r.Delete("/notes/{id}/share/{userID}", noteHandler.Unshare)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))

			r.Get("/users", userHandler.ListUsers)
			r.Get("/users/{id}", userHandler.GetUser)
			r.Delete("/users/{id}", userHandler.DeleteUser)
		})
	})
}
