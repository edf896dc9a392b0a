package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	rbacDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/rbac"
)

type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Transactor runs a function inside one storage transaction. A mutation and
// its audit append commit or roll back together.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service carries the role/permission management operations. Every mutation
// is audited synchronously inside the same transaction; a failed audit write
// rolls the mutation back.
type Service struct {
	store    Store
	tx       Transactor
	recorder AuditRecorder
	logger   *slog.Logger
}

func NewService(store Store, tx Transactor, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tx:       tx,
		recorder: recorder,
		logger:   logger,
	}
}

func actorFromContext(ctx context.Context) string {
	if id, ok := internal.IdentityFromContext(ctx); ok {
		return id.Username
	}
	return "system"
}

func (s *Service) CreateRole(ctx context.Context, name string) (*rbacDatamodel.Role, error) {
	if name == "" {
		return nil, internal.NewValidationFieldError("name", "name is required")
	}

	role := &rbacDatamodel.Role{
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	err := s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateRole(txCtx, role); err != nil {
			return err
		}

		entry, err := audit.NewEntry("roles", strconv.FormatInt(role.ID, 10), audit.OpRoleCreated,
			actorFromContext(ctx), "", nil, role)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return role, nil
}

func (s *Service) CreatePermission(ctx context.Context, resource, operation string) (*rbacDatamodel.Permission, error) {
	if resource == "" || operation == "" {
		return nil, internal.NewValidationFieldError("permission", "resource and operation are required")
	}

	perm := &rbacDatamodel.Permission{
		Name:      fmt.Sprintf("%s.%s", resource, operation),
		Resource:  resource,
		Operation: operation,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	err := s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.CreatePermission(txCtx, perm); err != nil {
			return err
		}

		entry, err := audit.NewEntry("permissions", strconv.FormatInt(perm.ID, 10), audit.OpPermissionCreated,
			actorFromContext(ctx), "", nil, perm)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return perm, nil
}

// AssignRole gives userID an active assignment for the named role. The
// unique-active-assignment invariant per (user, role) is enforced here and
// by a partial unique index in the store.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string, expiresAt *time.Time) error {
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	already, err := s.store.HasActiveRole(ctx, userID, roleName, time.Now())
	if err != nil {
		return err
	}
	if already {
		return ErrDuplicateAssignment
	}

	assignment := &rbacDatamodel.RoleAssignment{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedAt: time.Now(),
		ExpiresAt:  expiresAt,
		IsActive:   true,
	}
	if actor, ok := internal.IdentityFromContext(ctx); ok {
		assignment.AssignedBy = &actor.UserID
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateAssignment(txCtx, assignment); err != nil {
			return err
		}

		entry, err := audit.NewEntry("role_assignments", strconv.FormatInt(assignment.ID, 10),
			audit.OpRoleAssigned, actorFromContext(ctx), "", nil, assignment)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

func (s *Service) UnassignRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		affected, err := s.store.DeactivateAssignment(txCtx, userID, role.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrAssignmentNotFound
		}

		entry, err := audit.NewEntry("role_assignments", strconv.FormatInt(userID, 10),
			audit.OpRoleUnassigned, actorFromContext(ctx), "",
			map[string]interface{}{"user_id": userID, "role": roleName, "is_active": true},
			map[string]interface{}{"user_id": userID, "role": roleName, "is_active": false})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

func (s *Service) GrantPermission(ctx context.Context, roleName, permissionName string) error {
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	perm, err := s.store.GetPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}

	grant := &rbacDatamodel.RolePermission{
		RoleID:       role.ID,
		PermissionID: perm.ID,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if actor, ok := internal.IdentityFromContext(ctx); ok {
		grant.GrantedBy = &actor.UserID
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateGrant(txCtx, grant); err != nil {
			return err
		}

		entry, err := audit.NewEntry("role_permissions", strconv.FormatInt(grant.ID, 10),
			audit.OpPermissionGranted, actorFromContext(ctx), "", nil, grant)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// RevokePermission deactivates a grant. Grants on the super role are
// immutable.
func (s *Service) RevokePermission(ctx context.Context, roleName, permissionName string) error {
	if roleName == SuperRoleName {
		return ErrSystemRoleImmutable
	}

	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	perm, err := s.store.GetPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		affected, err := s.store.DeactivateGrant(txCtx, role.ID, perm.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrGrantNotFound
		}

		entry, err := audit.NewEntry("role_permissions", strconv.FormatInt(role.ID, 10),
			audit.OpPermissionRevoked, actorFromContext(ctx), "",
			map[string]interface{}{"role": roleName, "permission": permissionName, "is_active": true},
			map[string]interface{}{"role": roleName, "permission": permissionName, "is_active": false})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}

// DeactivateRole retires a non-system role. Assignments and grants stay in
// place but stop being effective because the role itself is inactive.
func (s *Service) DeactivateRole(ctx context.Context, roleName string) error {
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRoleImmutable
	}

	return s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.SetRoleActive(txCtx, role.ID, false); err != nil {
			return err
		}

		entry, err := audit.NewEntry("roles", strconv.FormatInt(role.ID, 10), audit.OpRoleDeactivated,
			actorFromContext(ctx), "",
			map[string]interface{}{"name": role.Name, "is_active": true},
			map[string]interface{}{"name": role.Name, "is_active": false})
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, entry)
	})
}
