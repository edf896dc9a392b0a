package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	sessionDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/session"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrSessionNotFound is returned by SessionStore when no row matches the
// presented refresh token.
var ErrSessionNotFound = errors.New("session not found")

// Claims is the self-contained access-token payload. Validation needs only
// the signature and time-window checks, never a store lookup.
type Claims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SubjectProvider resolves the current identity attributes when rotating,
// so a fresh access token reflects role changes made since login.
type SubjectProvider interface {
	SubjectByID(ctx context.Context, userID int64) (*Subject, error)
}

// SessionStore persists refresh-token chains. Revoke is compare-and-swap on
// revoked_at so two concurrent rotations of the same token cannot both win.
type SessionStore interface {
	Create(ctx context.Context, row *sessionDatamodel.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*sessionDatamodel.RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time, ip string, replacedBy *string) (int64, error)
	RevokeChain(ctx context.Context, sessionID string, at time.Time, ip string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID int64, at time.Time, ip string) (int64, error)
	ActiveChainsForUser(ctx context.Context, userID int64, now time.Time) ([]string, error)
}

// GenerateOpaqueToken returns a cryptographically random refresh-token
// value. Refresh tokens carry no claims; everything lives server-side.
func GenerateOpaqueToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
