package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/dashboard-management/internal/core/database"
	rbacDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/rbac"
	"github.com/frahmantamala/dashboard-management/internal/rbac"
	"gorm.io/gorm"
)

type RbacStore struct {
	db *gorm.DB
}

func NewRbacStore(db *gorm.DB) rbac.Store {
	return &RbacStore{db: db}
}

func (s *RbacStore) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db).WithContext(ctx)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

func (s *RbacStore) CreateRole(ctx context.Context, role *rbacDatamodel.Role) error {
	if err := s.conn(ctx).Create(role).Error; err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrDuplicateRole
		}
		return err
	}
	return nil
}

func (s *RbacStore) GetRoleByName(ctx context.Context, name string) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	err := s.conn(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rbac.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *RbacStore) SetRoleActive(ctx context.Context, roleID int64, active bool) error {
	return s.conn(ctx).Model(&rbacDatamodel.Role{}).
		Where("id = ?", roleID).
		Update("is_active", active).Error
}

func (s *RbacStore) CreatePermission(ctx context.Context, perm *rbacDatamodel.Permission) error {
	if err := s.conn(ctx).Create(perm).Error; err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrDuplicatePermission
		}
		return err
	}
	return nil
}

func (s *RbacStore) GetPermissionByName(ctx context.Context, name string) (*rbacDatamodel.Permission, error) {
	var perm rbacDatamodel.Permission
	err := s.conn(ctx).Where("name = ?", name).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rbac.ErrPermissionNotFound
		}
		return nil, err
	}
	return &perm, nil
}

func (s *RbacStore) CreateAssignment(ctx context.Context, assignment *rbacDatamodel.RoleAssignment) error {
	if err := s.conn(ctx).Create(assignment).Error; err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrDuplicateAssignment
		}
		return err
	}
	return nil
}

func (s *RbacStore) DeactivateAssignment(ctx context.Context, userID, roleID int64) (int64, error) {
	result := s.conn(ctx).Model(&rbacDatamodel.RoleAssignment{}).
		Where("user_id = ? AND role_id = ? AND is_active = ?", userID, roleID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (s *RbacStore) HasActiveRole(ctx context.Context, userID int64, roleName string, now time.Time) (bool, error) {
	var count int64
	err := s.conn(ctx).
		Table("role_assignments ra").
		Joins("JOIN roles r ON r.id = ra.role_id").
		Where("ra.user_id = ? AND ra.is_active = ?", userID, true).
		Where("ra.expires_at IS NULL OR ra.expires_at > ?", now).
		Where("r.name = ? AND r.is_active = ?", roleName, true).
		Count(&count).Error
	return count > 0, err
}

func (s *RbacStore) CreateGrant(ctx context.Context, grant *rbacDatamodel.RolePermission) error {
	return s.conn(ctx).Create(grant).Error
}

func (s *RbacStore) DeactivateGrant(ctx context.Context, roleID, permissionID int64) (int64, error) {
	result := s.conn(ctx).Model(&rbacDatamodel.RolePermission{}).
		Where("role_id = ? AND permission_id = ? AND is_active = ?", roleID, permissionID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// HasEffectiveGrant evaluates the full effective-permission join: active
// unexpired assignment, active grant, active role, active permission.
func (s *RbacStore) HasEffectiveGrant(ctx context.Context, userID int64, permissionName string, now time.Time) (bool, error) {
	var count int64
	err := s.conn(ctx).
		Table("role_assignments ra").
		Joins("JOIN roles r ON r.id = ra.role_id AND r.is_active = ?", true).
		Joins("JOIN role_permissions rp ON rp.role_id = ra.role_id AND rp.is_active = ?", true).
		Joins("JOIN permissions p ON p.id = rp.permission_id AND p.is_active = ?", true).
		Where("ra.user_id = ? AND ra.is_active = ?", userID, true).
		Where("ra.expires_at IS NULL OR ra.expires_at > ?", now).
		Where("p.name = ?", permissionName).
		Count(&count).Error
	return count > 0, err
}

func (s *RbacStore) EffectivePermissions(ctx context.Context, userID int64, now time.Time) ([]string, error) {
	var names []string
	err := s.conn(ctx).
		Table("role_assignments ra").
		Joins("JOIN roles r ON r.id = ra.role_id AND r.is_active = ?", true).
		Joins("JOIN role_permissions rp ON rp.role_id = ra.role_id AND rp.is_active = ?", true).
		Joins("JOIN permissions p ON p.id = rp.permission_id AND p.is_active = ?", true).
		Where("ra.user_id = ? AND ra.is_active = ?", userID, true).
		Where("ra.expires_at IS NULL OR ra.expires_at > ?", now).
		Distinct().
		Pluck("p.name", &names).Error
	return names, err
}

func (s *RbacStore) RoleNamesForUser(ctx context.Context, userID int64, now time.Time) ([]string, error) {
	var names []string
	err := s.conn(ctx).
		Table("role_assignments ra").
		Joins("JOIN roles r ON r.id = ra.role_id AND r.is_active = ?", true).
		Where("ra.user_id = ? AND ra.is_active = ?", userID, true).
		Where("ra.expires_at IS NULL OR ra.expires_at > ?", now).
		Distinct().
		Pluck("r.name", &names).Error
	return names, err
}
