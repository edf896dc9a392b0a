package auth

import (
	"context"
	"errors"
	"time"

	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/dashboard-management/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned by CredentialStore lookups; the service folds
// it into the invalid-credentials outcome so callers cannot enumerate users.
var ErrUserNotFound = errors.New("user not found")

// CredentialStore is the persistence surface for credential verification and
// lockout bookkeeping. RecordFailedAttempt must be a single atomic statement:
// two concurrent wrong attempts must not both read a stale counter and miss
// the lockout threshold.
type CredentialStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*userDatamodel.User, error)
	RecordFailedAttempt(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (newCount int, locked bool, err error)
	ResetLockout(ctx context.Context, userID int64, lastLogin time.Time) error
}

// RoleResolver supplies the role and admin information embedded in issued
// tokens.
type RoleResolver interface {
	RolesForUser(ctx context.Context, userID int64) ([]string, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	PermissionsForUser(ctx context.Context, userID int64) ([]string, error)
}

// TokenIssuer is the slice of the token service the login flow needs.
type TokenIssuer interface {
	Issue(ctx context.Context, subject *token.Subject, ip string) (*token.TokenPair, error)
	Rotate(ctx context.Context, refreshToken, ip string) (*token.TokenPair, error)
	RevokeByToken(ctx context.Context, refreshToken, actor, ip string) error
	RevokeAllForUser(ctx context.Context, userID int64, actor, ip string) error
	ValidateAccess(tokenString string) (*token.Claims, error)
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
