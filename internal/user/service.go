package user

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/dashboard-management/internal/rbac"
)

type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
	RecordAsync(ctx context.Context, entry *audit.Entry)
}

// RoleAssigner grants the default role to newly registered accounts.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID int64, roleName string, expiresAt *time.Time) error
}

// RoleResolver enriches the domain user with its effective roles and
// permissions.
type RoleResolver interface {
	RolesForUser(ctx context.Context, userID int64) ([]string, error)
	PermissionsForUser(ctx context.Context, userID int64) ([]string, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// SessionRevoker cuts all refresh chains for a user, used after password
// changes and account deletion.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64, actor, ip string) error
}

// Transactor runs a function inside one storage transaction. An account
// mutation and its audit append commit or roll back together.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo       Repository
	roles      RoleAssigner
	resolver   RoleResolver
	sessions   SessionRevoker
	tx         Transactor
	recorder   AuditRecorder
	logger     *slog.Logger
	bcryptCost int
}

func NewService(repo Repository, roles RoleAssigner, resolver RoleResolver,
	sessions SessionRevoker, tx Transactor, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		roles:      roles,
		resolver:   resolver,
		sessions:   sessions,
		tx:         tx,
		recorder:   recorder,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates an account and grants it the default role. Duplicate
// username and email surface as distinct conflict errors, and a conflict
// leaves no partial row behind.
func (s *Service) Register(ctx context.Context, dto RegisterDTO, actor, ip string) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	now := time.Now()
	model := &userDatamodel.User{
		Username:     dto.Username,
		Email:        dto.Email,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		PasswordHash: string(hash),
		PasswordAlgo: "bcrypt",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var created *User
	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, model); err != nil {
			return err
		}

		if err := s.roles.AssignRole(txCtx, model.ID, rbac.DefaultRoleName, nil); err != nil {
			// The account exists but carries no role; it can authenticate and
			// will simply hold no permissions until an admin assigns one.
			s.logger.Error("default role assignment failed",
				"user_id", model.ID, "role", rbac.DefaultRoleName, "error", err)
		}

		created = FromDataModel(model)

		entry, err := audit.NewEntry("users", strconv.FormatInt(model.ID, 10), audit.OpUserCreated,
			actor, ip, nil, created)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID returns the domain user with effective roles and permissions
// resolved.
func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	model, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}

	u := FromDataModel(model)

	if u.Roles, err = s.resolver.RolesForUser(ctx, userID); err != nil {
		return nil, err
	}
	if u.Permissions, err = s.resolver.PermissionsForUser(ctx, userID); err != nil {
		return nil, err
	}
	if u.IsAdmin, err = s.resolver.IsAdmin(ctx, userID); err != nil {
		return nil, err
	}

	return u, nil
}

func (s *Service) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*User, error) {
	models, err := s.repo.List(ctx, includeInactive, limit, offset)
	if err != nil {
		return nil, internal.NewInternalError("failed to list users", err)
	}

	users := make([]*User, 0, len(models))
	for _, m := range models {
		users = append(users, FromDataModel(m))
	}
	return users, nil
}

// ChangePassword verifies the current password before storing the new hash.
// All refresh chains are revoked so stolen sessions die with the old
// password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, dto ChangePasswordDTO, actor, ip string) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	model, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(model.PasswordHash), []byte(dto.CurrentPassword)); err != nil {
		return internal.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpdatePassword(txCtx, userID, string(hash)); err != nil {
			return internal.NewInternalError("failed to update password", err)
		}

		if err := s.sessions.RevokeAllForUser(txCtx, userID, actor, ip); err != nil {
			return err
		}

		entry, err := audit.NewEntry("users", strconv.FormatInt(userID, 10), audit.OpPasswordChanged,
			actor, ip, nil, map[string]interface{}{"user_id": userID})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// SetActive enables or disables an account. Deactivation does not revoke
// refresh chains; the login inactive check and rotation both consult the
// flag through the subject lookup.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool, actor, ip string) error {
	model, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to load user", err)
	}
	if model.IsActive == active {
		return nil
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.SetActive(txCtx, userID, active); err != nil {
			return internal.NewInternalError("failed to update account state", err)
		}

		op := audit.OpUserUpdated
		if !active {
			op = audit.OpUserDeactivated
		}
		entry, err := audit.NewEntry("users", strconv.FormatInt(userID, 10), op, actor, ip,
			map[string]interface{}{"is_active": model.IsActive},
			map[string]interface{}{"is_active": active})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// Unlock clears the lockout window and failure counter ahead of its natural
// expiry.
func (s *Service) Unlock(ctx context.Context, userID int64, actor, ip string) error {
	model, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to load user", err)
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.ClearLockout(txCtx, userID); err != nil {
			return internal.NewInternalError("failed to clear lockout", err)
		}

		entry, err := audit.NewEntry("users", strconv.FormatInt(userID, 10), audit.OpAccountUnlocked,
			actor, ip,
			map[string]interface{}{"failed_login_count": model.FailedLoginCount, "locked_until": model.LockedUntil},
			map[string]interface{}{"failed_login_count": 0, "locked_until": nil})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// Delete soft-deletes the account and revokes every refresh chain. The row
// stays behind so audit entries keep a referent.
func (s *Service) Delete(ctx context.Context, userID int64, actor, ip string) error {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to load user", err)
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.SoftDelete(txCtx, userID); err != nil {
			return internal.NewInternalError("failed to delete user", err)
		}

		if err := s.sessions.RevokeAllForUser(txCtx, userID, actor, ip); err != nil {
			return err
		}

		entry, err := audit.NewEntry("users", strconv.FormatInt(userID, 10), audit.OpUserDeleted,
			actor, ip, map[string]interface{}{"is_deleted": false},
			map[string]interface{}{"is_deleted": true})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}
