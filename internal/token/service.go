package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	sessionDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Transactor runs a function inside one storage transaction. A session
// mutation and its audit append commit or roll back together.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service issues, validates, rotates, and revokes token pairs.
type Service struct {
	store      SessionStore
	subjects   SubjectProvider
	tx         Transactor
	recorder   AuditRecorder
	logger     *slog.Logger
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(store SessionStore, subjects SubjectProvider, tx Transactor, recorder AuditRecorder,
	logger *slog.Logger, secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		subjects:   subjects,
		tx:         tx,
		recorder:   recorder,
		logger:     logger,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue starts a new session chain for the subject and returns a token pair.
func (s *Service) Issue(ctx context.Context, subject *Subject, ip string) (*TokenPair, error) {
	sessionID := uuid.NewString()
	return s.issueIntoChain(ctx, subject, sessionID, ip, audit.OpTokenIssued)
}

func (s *Service) issueIntoChain(ctx context.Context, subject *Subject, sessionID, ip, op string) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(subject)
	if err != nil {
		return nil, err
	}

	refreshToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := &sessionDatamodel.RefreshToken{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    subject.UserID,
		Token:     refreshToken,
		IssuedIP:  ip,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, row); err != nil {
			return err
		}

		entry, err := audit.NewEntry("refresh_tokens", row.ID, op, subject.Username, ip, nil,
			map[string]interface{}{"session_id": sessionID, "user_id": subject.UserID, "expires_at": row.ExpiresAt})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) generateAccessToken(subject *Subject) (string, error) {
	now := s.now()

	claims := &Claims{
		UserID:    strconv.FormatInt(subject.UserID, 10),
		Username:  subject.Username,
		IsAdmin:   subject.IsAdmin,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateAccess checks signature and time window only. It never touches the
// store, so it is non-blocking and side-effect-free.
func (s *Service) ValidateAccess(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrTokenMalformed.WithCause(err)
	}

	if !parsed.Valid || claims.TokenType != TokenTypeAccess || claims.Subject == "" {
		return nil, internal.ErrTokenMalformed
	}

	return claims, nil
}

// Rotate exchanges a live refresh token for a new pair in the same chain.
// Presenting an already-revoked token is a compromise signal: the whole
// chain is revoked before the reuse error returns.
func (s *Service) Rotate(ctx context.Context, refreshToken, ip string) (*TokenPair, error) {
	row, err := s.store.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, internal.ErrTokenMalformed
		}
		return nil, err
	}

	if row.RevokedAt != nil {
		return nil, s.handleReuse(ctx, row, ip)
	}

	now := s.now()
	if now.After(row.ExpiresAt) {
		return nil, internal.ErrTokenExpired
	}

	subject, err := s.subjects.SubjectByID(ctx, row.UserID)
	if err != nil {
		return nil, err
	}

	newID := uuid.NewString()
	var pair *TokenPair
	var raced bool
	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		affected, err := s.store.Revoke(txCtx, row.ID, now, ip, &newID)
		if err != nil {
			return err
		}
		if affected == 0 {
			// Lost a race with a concurrent rotation of the same token; the
			// token has effectively been used twice.
			raced = true
			return nil
		}

		pair, err = s.issueRotated(txCtx, subject, row.SessionID, newID, ip)
		if err != nil {
			return err
		}

		entry, err := audit.NewEntry("refresh_tokens", row.ID, audit.OpTokenRotated, subject.Username, ip,
			map[string]interface{}{"session_id": row.SessionID, "revoked": false},
			map[string]interface{}{"session_id": row.SessionID, "revoked": true, "replaced_by": newID})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}
	// Chain revocation must commit even though the rotation itself did not,
	// so it runs in its own transaction.
	if raced {
		return nil, s.handleReuse(ctx, row, ip)
	}

	return pair, nil
}

func (s *Service) issueRotated(ctx context.Context, subject *Subject, sessionID, newID, ip string) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(subject)
	if err != nil {
		return nil, err
	}

	refreshToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := &sessionDatamodel.RefreshToken{
		ID:        newID,
		SessionID: sessionID,
		UserID:    subject.UserID,
		Token:     refreshToken,
		IssuedIP:  ip,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) handleReuse(ctx context.Context, row *sessionDatamodel.RefreshToken, ip string) error {
	now := s.now()
	err := s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		revoked, err := s.store.RevokeChain(txCtx, row.SessionID, now, ip)
		if err != nil {
			s.logger.Error("chain revocation after reuse failed",
				"session_id", row.SessionID, "error", err)
			return err
		}

		s.logger.Warn("refresh token reuse detected, chain revoked",
			"session_id", row.SessionID,
			"user_id", row.UserID,
			"tokens_revoked", revoked)

		entry, err := audit.NewEntry("refresh_tokens", row.ID, audit.OpReuseDetected,
			strconv.FormatInt(row.UserID, 10), ip, nil,
			map[string]interface{}{"session_id": row.SessionID, "tokens_revoked": revoked})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return err
	}

	return internal.ErrTokenReuseDetected
}

// RevokeByToken revokes exactly the chain the presented refresh token
// belongs to. Used by logout; other sessions for the same user stay valid.
func (s *Service) RevokeByToken(ctx context.Context, refreshToken, actor, ip string) error {
	row, err := s.store.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return internal.ErrTokenMalformed
		}
		return err
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.store.RevokeChain(txCtx, row.SessionID, s.now(), ip); err != nil {
			return err
		}

		entry, err := audit.NewEntry("refresh_tokens", row.ID, audit.OpChainRevoked, actor, ip,
			nil, map[string]interface{}{"session_id": row.SessionID})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// RevokeAllForUser revokes every chain belonging to the user id. Used by the
// administrative revoke-all operation and after password changes.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64, actor, ip string) error {
	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		revoked, err := s.store.RevokeAllForUser(txCtx, userID, s.now(), ip)
		if err != nil {
			return err
		}

		entry, err := audit.NewEntry("refresh_tokens", strconv.FormatInt(userID, 10),
			audit.OpChainRevoked, actor, ip, nil,
			map[string]interface{}{"user_id": userID, "tokens_revoked": revoked})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// ActiveSessions lists the live chain ids for a user.
func (s *Service) ActiveSessions(ctx context.Context, userID int64) ([]string, error) {
	return s.store.ActiveChainsForUser(ctx, userID, s.now())
}
