package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	"github.com/frahmantamala/dashboard-management/internal/token"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO, ip string) (*token.TokenPair, error)
	RefreshTokens(ctx context.Context, refreshToken, ip string) (*token.TokenPair, error)
	Logout(ctx context.Context, refreshToken, ip string) error
	LogoutAll(ctx context.Context, userID int64, actor, ip string) error
	ValidateAccessToken(tokenString string) (*token.Claims, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Transactor runs a function inside one storage transaction. Lockout
// bookkeeping and its audit append commit or roll back together.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the credential and lockout manager plus the login/refresh/logout
// orchestration on top of the token service.
type Service struct {
	credentials     CredentialStore
	roles           RoleResolver
	tokens          TokenIssuer
	tx              Transactor
	recorder        AuditRecorder
	logger          *slog.Logger
	maxFailedLogins int
	lockoutDuration time.Duration
	now             func() time.Time
}

func NewService(credentials CredentialStore, roles RoleResolver, tokens TokenIssuer,
	tx Transactor, recorder AuditRecorder, logger *slog.Logger, maxFailedLogins int, lockoutDuration time.Duration) *Service {
	if maxFailedLogins <= 0 {
		maxFailedLogins = internal.DefaultMaxFailedLogins
	}
	if lockoutDuration <= 0 {
		lockoutDuration = internal.DefaultLockoutDuration
	}
	return &Service{
		credentials:     credentials,
		roles:           roles,
		tokens:          tokens,
		tx:              tx,
		recorder:        recorder,
		logger:          logger,
		maxFailedLogins: maxFailedLogins,
		lockoutDuration: lockoutDuration,
		now:             time.Now,
	}
}

// Authenticate verifies credentials and enforces the lockout policy, then
// issues a token pair. Every outcome is audited before it is returned; the
// presented secret never reaches the trail.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO, ip string) (*token.TokenPair, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, err := s.credentials.GetByIdentifier(ctx, dto.Identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown identifier is indistinguishable from a wrong password.
			return nil, s.failLogin(ctx, dto.Identifier, ip, "unknown_identifier", internal.ErrInvalidCredentials)
		}
		return nil, internal.NewInternalError("credential lookup failed", err)
	}

	now := s.now()

	// Lockout gates unconditionally: the stored hash is not consulted while
	// the window is open, and the counter is not incremented further.
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, s.failLogin(ctx, dto.Identifier, ip, "locked", internal.ErrAccountLocked)
	}

	if !user.IsActive {
		return nil, s.failLogin(ctx, dto.Identifier, ip, "inactive", internal.ErrAccountInactive)
	}

	if err := VerifyPassword(user.PasswordHash, dto.Password); err != nil {
		// The increment commits only after the comparison completed, and
		// only together with its audit entry.
		var outcome error
		txErr := s.tx.InTransaction(ctx, func(txCtx context.Context) error {
			newCount, locked, storeErr := s.credentials.RecordFailedAttempt(txCtx, user.ID,
				s.maxFailedLogins, now.Add(s.lockoutDuration))
			if storeErr != nil {
				return internal.NewInternalError("failed to record login attempt", storeErr)
			}

			if locked {
				s.logger.Warn("account locked after repeated failures",
					"user_id", user.ID, "failed_attempts", newCount)
				if auditErr := s.recordLockout(txCtx, user.ID, dto.Identifier, ip, newCount); auditErr != nil {
					return auditErr
				}
				outcome = internal.ErrAccountLocked
				return s.auditFailure(txCtx, dto.Identifier, ip, "threshold_reached")
			}

			outcome = internal.ErrInvalidCredentials
			return s.auditFailure(txCtx, dto.Identifier, ip, "wrong_password")
		})
		if txErr != nil {
			return nil, txErr
		}
		return nil, outcome
	}

	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	isAdmin, err := s.roles.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.credentials.ResetLockout(txCtx, user.ID, now); err != nil {
			return internal.NewInternalError("failed to reset lockout state", err)
		}

		entry, err := audit.NewEntry("users", strconv.FormatInt(user.ID, 10), audit.OpLoginAttempt,
			user.Username, ip, nil,
			map[string]interface{}{"outcome": "success", "roles": roles})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return s.tokens.Issue(ctx, &token.Subject{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  isAdmin,
	}, ip)
}

// failLogin audits the failed outcome synchronously and returns the caller's
// error. An audit failure takes precedence: the attempt must not complete
// unrecorded.
func (s *Service) failLogin(ctx context.Context, identifier, ip, reason string, cause *internal.AppError) error {
	if err := s.auditFailure(ctx, identifier, ip, reason); err != nil {
		return err
	}
	return cause
}

func (s *Service) auditFailure(ctx context.Context, identifier, ip, reason string) error {
	entry, err := audit.NewEntry("users", identifier, audit.OpLoginAttempt, identifier, ip, nil,
		map[string]interface{}{"outcome": "failure", "reason": reason})
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, entry)
}

func (s *Service) recordLockout(ctx context.Context, userID int64, identifier, ip string, attempts int) error {
	entry, err := audit.NewEntry("users", strconv.FormatInt(userID, 10), audit.OpAccountLocked,
		identifier, ip,
		map[string]interface{}{"locked": false},
		map[string]interface{}{"locked": true, "failed_attempts": attempts})
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, entry)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken, ip string) (*token.TokenPair, error) {
	return s.tokens.Rotate(ctx, refreshToken, ip)
}

func (s *Service) Logout(ctx context.Context, refreshToken, ip string) error {
	actor := "anonymous"
	if id, ok := internal.IdentityFromContext(ctx); ok {
		actor = id.Username
	}
	return s.tokens.RevokeByToken(ctx, refreshToken, actor, ip)
}

func (s *Service) LogoutAll(ctx context.Context, userID int64, actor, ip string) error {
	return s.tokens.RevokeAllForUser(ctx, userID, actor, ip)
}

func (s *Service) ValidateAccessToken(tokenString string) (*token.Claims, error) {
	return s.tokens.ValidateAccess(tokenString)
}
