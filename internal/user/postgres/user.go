package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/core/database"
	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/dashboard-management/internal/user"
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) user.Repository {
	return &UserStore{db: db}
}

func (s *UserStore) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db).WithContext(ctx)
}

// Create inserts the account. Unique violations map to distinct conflict
// errors by inspecting which column collided; the insert itself rolls back,
// so no partial row survives a conflict.
func (s *UserStore) Create(ctx context.Context, u *userDatamodel.User) error {
	if err := s.conn(ctx).Create(u).Error; err != nil {
		msg := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint") {
			if strings.Contains(msg, "email") {
				return internal.ErrDuplicateEmail
			}
			return internal.ErrDuplicateUsername
		}
		return err
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := s.conn(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := s.conn(ctx).
		Where("username = ? AND is_deleted = ?", username, false).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*userDatamodel.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.conn(ctx).
		Where("is_deleted = ?", false).
		Order("id").
		Limit(limit).
		Offset(offset)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	var users []*userDatamodel.User
	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePassword stores the new hash and clears must_change_password in the
// same statement.
func (s *UserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash":        passwordHash,
			"password_algo":        "bcrypt",
			"must_change_password": false,
			"updated_at":           time.Now(),
		}).Error
}

func (s *UserStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
}

func (s *UserStore) ClearLockout(ctx context.Context, id int64) error {
	return s.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_login_count": 0,
			"locked_until":       nil,
			"updated_at":         time.Now(),
		}).Error
}

func (s *UserStore) SoftDelete(ctx context.Context, id int64) error {
	return s.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"is_active":  false,
			"updated_at": time.Now(),
		}).Error
}
