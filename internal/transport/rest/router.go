package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/dashboard-management/internal/audit"
	"github.com/frahmantamala/dashboard-management/internal/auth"
	"github.com/frahmantamala/dashboard-management/internal/rbac"
	"github.com/frahmantamala/dashboard-management/internal/transport/middleware"
	"github.com/frahmantamala/dashboard-management/internal/transport/swagger"
	"github.com/frahmantamala/dashboard-management/internal/user"
)

// RegisterAllRoutes wires the HTTP surface. Route protection is declared
// here, not inside handlers: every group names the permission it requires
// and the gate middleware enforces it.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, gate middleware.Authorizer,
	authHandler *auth.Handler, userHandler *user.Handler, rbacHandler *rbac.Handler,
	auditHandler *audit.Handler, loginRatePerMinute int, logger *slog.Logger) {

	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.readinessHandler)
		r.Get("/ping", healthHandler.livenessHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Group(func(lr chi.Router) {
				lr.Use(middleware.RateLimit(loginRatePerMinute, logger))
				lr.Post("/login", authHandler.Login)
			})
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/logout", authHandler.Logout)
			sr.Group(func(ar chi.Router) {
				ar.Use(middleware.RequireAuth(gate, logger))
				ar.Post("/logout-all", authHandler.LogoutAll)
			})
		})

		// Self-service registration is open; management of other accounts
		// is not.
		r.Post("/users", userHandler.Register)

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.RequireAuth(gate, logger))
			pr.Get("/users/me", userHandler.GetCurrentUser)
			pr.Post("/users/me/password", userHandler.ChangePassword)
		})

		r.Group(func(ur chi.Router) {
			ur.Use(middleware.RequirePermission(gate, logger, rbac.PermUserManage))
			ur.Get("/users", userHandler.ListUsers)
			ur.Get("/users/{id}", userHandler.GetUser)
			ur.Patch("/users/{id}/activate", userHandler.ActivateUser)
			ur.Patch("/users/{id}/deactivate", userHandler.DeactivateUser)
			ur.Patch("/users/{id}/unlock", userHandler.UnlockUser)
			ur.Delete("/users/{id}", userHandler.DeleteUser)
		})

		r.Group(func(rr chi.Router) {
			rr.Use(middleware.RequirePermission(gate, logger, rbac.PermRbacManage))
			rr.Post("/roles", rbacHandler.CreateRole)
			rr.Patch("/roles/{name}/deactivate", rbacHandler.DeactivateRole)
			rr.Post("/permissions", rbacHandler.CreatePermission)
			rr.Post("/roles/{name}/permissions", rbacHandler.GrantPermission)
			rr.Delete("/roles/{name}/permissions/{permission}", rbacHandler.RevokePermission)
			rr.Post("/users/{id}/roles", rbacHandler.AssignRole)
			rr.Delete("/users/{id}/roles/{name}", rbacHandler.UnassignRole)
		})

		r.Group(func(ar chi.Router) {
			ar.Use(middleware.RequirePermission(gate, logger, rbac.PermAuditRead))
			ar.Get("/audit", auditHandler.ListEntries)
		})
	})
}
