package gate

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	"github.com/frahmantamala/dashboard-management/internal/token"
)

type TokenValidator interface {
	ValidateAccess(tokenString string) (*token.Claims, error)
}

type PermissionResolver interface {
	HasPermission(ctx context.Context, userID int64, permissionName string) (bool, error)
	PermissionsForUser(ctx context.Context, userID int64) ([]string, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Gate is the single entry point request handlers use to authenticate and
// authorize. It validates the access token, resolves the required
// permission, and audits denials; it performs no business logic itself.
type Gate struct {
	tokens   TokenValidator
	resolver PermissionResolver
	recorder AuditRecorder
	logger   *slog.Logger
}

func NewGate(tokens TokenValidator, resolver PermissionResolver, recorder AuditRecorder, logger *slog.Logger) *Gate {
	return &Gate{
		tokens:   tokens,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// Authorize validates the access token and, when requiredPermission is
// non-empty, checks the caller holds it. Denials are audited before the
// error returns.
func (g *Gate) Authorize(ctx context.Context, accessToken, requiredPermission, ip string) (*internal.Identity, error) {
	claims, err := g.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, internal.ErrTokenMalformed.WithCause(err)
	}

	permissions, err := g.resolver.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	identity := &internal.Identity{
		UserID:      userID,
		Username:    claims.Username,
		IsAdmin:     claims.IsAdmin,
		Permissions: permissions,
	}

	if requiredPermission != "" {
		allowed, err := g.resolver.HasPermission(ctx, userID, requiredPermission)
		if err != nil {
			return nil, err
		}
		if !allowed {
			g.logger.Warn("access denied",
				"user_id", userID,
				"username", claims.Username,
				"required_permission", requiredPermission)

			entry, auditErr := audit.NewEntry("permissions", requiredPermission,
				audit.OpAccessDenied, claims.Username, ip, nil,
				map[string]interface{}{"user_id": userID, "required_permission": requiredPermission})
			if auditErr != nil {
				return nil, auditErr
			}
			if auditErr := g.recorder.Record(ctx, entry); auditErr != nil {
				return nil, auditErr
			}
			return nil, internal.ErrInsufficientPermission
		}
	}

	return identity, nil
}
