package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/frahmantamala/dashboard-management/internal"
)

// Authorizer is the access gate slice the HTTP middleware needs.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken, requiredPermission, ip string) (*internal.Identity, error)
}

// RequireAuth validates the bearer token and attaches the resolved identity
// to the request context. No permission is required beyond a valid session.
func RequireAuth(gate Authorizer, logger *slog.Logger) func(next http.Handler) http.Handler {
	return requirePermission(gate, logger, "")
}

// RequirePermission validates the bearer token and checks the caller holds
// the named permission before the handler runs.
func RequirePermission(gate Authorizer, logger *slog.Logger, permission string) func(next http.Handler) http.Handler {
	return requirePermission(gate, logger, permission)
}

func requirePermission(gate Authorizer, logger *slog.Logger, permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeJSONError(w, logger, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			identity, err := gate.Authorize(r.Context(), token, permission, remoteIP(r))
			if err != nil {
				status, message := authFailureResponse(err)
				if status == http.StatusInternalServerError {
					logger.Error("authorization check failed", "error", err, "path", r.URL.Path)
				}
				writeJSONError(w, logger, status, message)
				return
			}

			ctx := internal.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFailureResponse collapses gate errors into the two client-facing
// outcomes: the token is bad (401) or the permission is missing (403).
// Everything else is a server fault.
func authFailureResponse(err error) (int, string) {
	switch {
	case errors.Is(err, internal.ErrTokenExpired):
		return http.StatusUnauthorized, "access token expired"
	case errors.Is(err, internal.ErrTokenMalformed),
		errors.Is(err, internal.ErrTokenRevoked):
		return http.StatusUnauthorized, "invalid access token"
	case errors.Is(err, internal.ErrInsufficientPermission):
		return http.StatusForbidden, "insufficient permission"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSONError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    status,
		"message": message,
	}); err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
