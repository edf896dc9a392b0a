package rbac

import (
	"context"
	"errors"
	"time"

	rbacDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/rbac"
)

// SuperRoleName is the distinguished system role that bypasses permission
// resolution. It cannot be deleted, deactivated, or have grants revoked.
const SuperRoleName = "superadmin"

// DefaultRoleName is assigned to newly registered accounts.
const DefaultRoleName = "viewer"

// Well-known permission names, resource-dot-operation.
const (
	PermDashboardRead   = "Dashboard.Read"
	PermDashboardWrite  = "Dashboard.Write"
	PermDashboardDelete = "Dashboard.Delete"
	PermEmployeeRead    = "Employee.Read"
	PermEmployeeManage  = "Employee.Manage"
	PermUserManage      = "User.Manage"
	PermRbacManage      = "Rbac.Manage"
	PermAuditRead       = "Audit.Read"
)

var (
	ErrRoleNotFound        = errors.New("role not found")
	ErrPermissionNotFound  = errors.New("permission not found")
	ErrSystemRoleImmutable = errors.New("system role cannot be modified")
	ErrDuplicateRole       = errors.New("role already exists")
	ErrDuplicatePermission = errors.New("permission already exists")
	ErrDuplicateAssignment = errors.New("user already holds an active assignment for this role")
	ErrAssignmentNotFound  = errors.New("active role assignment not found")
	ErrGrantNotFound       = errors.New("active permission grant not found")
)

// Store is the persistence surface for role and grant state. Reads used by
// the resolver evaluate activity and expiry against the supplied time so
// resolution stays a pure read over current state.
type Store interface {
	CreateRole(ctx context.Context, role *rbacDatamodel.Role) error
	GetRoleByName(ctx context.Context, name string) (*rbacDatamodel.Role, error)
	SetRoleActive(ctx context.Context, roleID int64, active bool) error

	CreatePermission(ctx context.Context, perm *rbacDatamodel.Permission) error
	GetPermissionByName(ctx context.Context, name string) (*rbacDatamodel.Permission, error)

	CreateAssignment(ctx context.Context, assignment *rbacDatamodel.RoleAssignment) error
	DeactivateAssignment(ctx context.Context, userID, roleID int64) (int64, error)
	HasActiveRole(ctx context.Context, userID int64, roleName string, now time.Time) (bool, error)

	CreateGrant(ctx context.Context, grant *rbacDatamodel.RolePermission) error
	DeactivateGrant(ctx context.Context, roleID, permissionID int64) (int64, error)

	HasEffectiveGrant(ctx context.Context, userID int64, permissionName string, now time.Time) (bool, error)
	EffectivePermissions(ctx context.Context, userID int64, now time.Time) ([]string, error)
	RoleNamesForUser(ctx context.Context, userID int64, now time.Time) ([]string, error)
}
